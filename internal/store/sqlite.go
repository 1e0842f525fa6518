package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/muurk/proxiscan/internal/device"
	"github.com/muurk/proxiscan/internal/session"
)

// Device lists are encoded with nanosecond timestamps and canonical key order.
var (
	blobEncMode cbor.EncMode
	blobDecMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	blobEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	blobDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// SQLiteStore persists sessions in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (creating if needed) the database at path.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases alive across queries.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// migrate creates the database schema.
func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		scan_type TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER,
		duration_ns INTEGER NOT NULL DEFAULT 0,
		radio_devices BLOB,
		network_devices BLOB
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_start_time ON sessions(start_time);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save inserts or replaces a session.
func (s *SQLiteStore) Save(ctx context.Context, sess session.ScanSession) error {
	if sess.ID == "" {
		return fmt.Errorf("session has no id")
	}
	radio, err := encodeBlob(sess.RadioDevices)
	if err != nil {
		return fmt.Errorf("failed to encode radio devices: %w", err)
	}
	network, err := encodeBlob(sess.NetworkDevices)
	if err != nil {
		return fmt.Errorf("failed to encode network devices: %w", err)
	}

	var end sql.NullInt64
	if !sess.EndTime.IsZero() {
		end = sql.NullInt64{Int64: sess.EndTime.UnixNano(), Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions
			(id, scan_type, start_time, end_time, duration_ns, radio_devices, network_devices)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sess.ID, string(sess.Type), sess.StartTime.UnixNano(), end, int64(sess.Duration), radio, network)
	return err
}

// Delete removes a session. A missing id returns session.ErrNotFound.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

// LoadAll returns every session ordered by most recent start first.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]session.ScanSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scan_type, start_time, end_time, duration_ns, radio_devices, network_devices
		FROM sessions
		ORDER BY start_time DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []session.ScanSession
	for rows.Next() {
		var (
			sess           session.ScanSession
			scanType       string
			start          int64
			end            sql.NullInt64
			duration       int64
			radio, network []byte
		)
		if err := rows.Scan(&sess.ID, &scanType, &start, &end, &duration, &radio, &network); err != nil {
			return nil, err
		}

		sess.Type = session.ScanType(scanType)
		sess.StartTime = time.Unix(0, start)
		if end.Valid {
			sess.EndTime = time.Unix(0, end.Int64)
		}
		sess.Duration = time.Duration(duration)

		if err := decodeBlob(radio, &sess.RadioDevices); err != nil {
			return nil, fmt.Errorf("session %s: failed to decode radio devices: %w", sess.ID, err)
		}
		if err := decodeBlob(network, &sess.NetworkDevices); err != nil {
			return nil, fmt.Errorf("session %s: failed to decode network devices: %w", sess.ID, err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// ClearAll removes every session.
func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions`)
	return err
}

func encodeBlob[T device.RadioDevice | device.NetworkDevice](devices []T) ([]byte, error) {
	if len(devices) == 0 {
		return nil, nil
	}
	return blobEncMode.Marshal(devices)
}

func decodeBlob[T device.RadioDevice | device.NetworkDevice](data []byte, out *[]T) error {
	if len(data) == 0 {
		return nil
	}
	return blobDecMode.Unmarshal(data, out)
}
