package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/muurk/proxiscan/internal/logging"
	"github.com/muurk/proxiscan/internal/session"
)

const fileVersion = 1

// fileDocument is the on-disk layout of a FileStore.
type fileDocument struct {
	Version  int                   `yaml:"version"`
	Sessions []session.ScanSession `yaml:"sessions"`
}

// FileStore persists sessions in a single YAML file.
type FileStore struct {
	path string

	mu      sync.Mutex
	written []byte // last content this store wrote
}

// NewFileStore returns a store backed by the YAML file at path. The file is
// created on first write.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("file store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

// Save inserts or replaces a session.
func (s *FileStore) Save(ctx context.Context, sess session.ScanSession) error {
	if sess.ID == "" {
		return fmt.Errorf("session has no id")
	}
	return s.modify(ctx, func(sessions []session.ScanSession) ([]session.ScanSession, error) {
		i := slices.IndexFunc(sessions, func(x session.ScanSession) bool { return x.ID == sess.ID })
		if i >= 0 {
			sessions[i] = sess
		} else {
			sessions = append(sessions, sess)
		}
		return sessions, nil
	})
}

// Delete removes a session. A missing id returns session.ErrNotFound.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	return s.modify(ctx, func(sessions []session.ScanSession) ([]session.ScanSession, error) {
		i := slices.IndexFunc(sessions, func(x session.ScanSession) bool { return x.ID == id })
		if i < 0 {
			return nil, notFound(id)
		}
		return slices.Delete(sessions, i, i+1), nil
	})
}

// LoadAll returns every session, newest first.
func (s *FileStore) LoadAll(ctx context.Context) ([]session.ScanSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.read()
	if err != nil {
		return nil, err
	}
	session.SortNewestFirst(sessions)
	return sessions, nil
}

// ClearAll removes every session.
func (s *FileStore) ClearAll(ctx context.Context) error {
	return s.modify(ctx, func([]session.ScanSession) ([]session.ScanSession, error) {
		return nil, nil
	})
}

// Close is a no-op; the file is only open during reads and writes.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) modify(ctx context.Context, fn func([]session.ScanSession) ([]session.ScanSession, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.read()
	if err != nil {
		return err
	}
	sessions, err = fn(sessions)
	if err != nil {
		return err
	}
	session.SortNewestFirst(sessions)
	return s.write(sessions)
}

func (s *FileStore) read() ([]session.ScanSession, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	if doc.Version != fileVersion {
		return nil, fmt.Errorf("unsupported session file version: %d (expected %d)", doc.Version, fileVersion)
	}
	return doc.Sessions, nil
}

func (s *FileStore) write(sessions []session.ScanSession) error {
	if sessions == nil {
		sessions = []session.ScanSession{}
	}
	data, err := yaml.Marshal(fileDocument{Version: fileVersion, Sessions: sessions})
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary session file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save session file: %w", err)
	}
	s.written = data
	return nil
}

// changedExternally reports whether the file differs from what this store
// last wrote.
func (s *FileStore) changedExternally() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return !errors.Is(err, os.ErrNotExist) || s.written != nil
	}
	return !bytes.Equal(data, s.written)
}

// Watch calls onChange whenever another process modifies the session file.
// Changes made through this store are not reported. Watching stops when ctx
// is cancelled.
func (s *FileStore) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory: rename-based writes replace the file inode.
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(s.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
					!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}
				if !s.changedExternally() {
					continue
				}
				logging.Debug("Session file changed", zap.String("path", s.path), zap.String("op", event.Op.String()))
				s.mu.Lock()
				s.written = nil
				if data, err := os.ReadFile(s.path); err == nil {
					s.written = data
				}
				s.mu.Unlock()
				onChange()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Warn("Session file watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
