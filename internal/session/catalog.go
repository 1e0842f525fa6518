package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/proxiscan/internal/logging"
	"github.com/muurk/proxiscan/internal/scanerr"
)

// Observer receives the refreshed session list after every catalog write,
// along with the error of that write, if any.
type Observer func(sessions []ScanSession, err error)

// Catalog is the observable session history backed by a Store.
type Catalog struct {
	mu        sync.RWMutex
	store     Store
	sessions  []ScanSession
	observers map[int]Observer
	nextObs   int
}

// NewCatalog creates a catalog over store. Call Load to read existing
// sessions.
func NewCatalog(store Store) *Catalog {
	return &Catalog{
		store:     store,
		observers: make(map[int]Observer),
	}
}

// Load replaces the in-memory list with the store contents and notifies
// observers.
func (c *Catalog) Load(ctx context.Context) error {
	err := c.reload(ctx)
	c.notify(err)
	return err
}

func (c *Catalog) reload(ctx context.Context) error {
	sessions, err := c.store.LoadAll(ctx)
	if err != nil {
		return scanerr.PersistenceFailed("load sessions", err)
	}
	SortNewestFirst(sessions)

	c.mu.Lock()
	c.sessions = sessions
	c.mu.Unlock()
	return nil
}

// Save persists s and refreshes the list. On failure the in-memory list is
// left as it was.
func (c *Catalog) Save(ctx context.Context, s ScanSession) error {
	return c.write(ctx, "save session", func() error {
		return c.store.Save(ctx, s)
	})
}

// Delete removes the session with the given id.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	return c.write(ctx, "delete session", func() error {
		return c.store.Delete(ctx, id)
	})
}

// Clear removes every session.
func (c *Catalog) Clear(ctx context.Context) error {
	return c.write(ctx, "clear sessions", func() error {
		return c.store.ClearAll(ctx)
	})
}

// Update replaces the end time of an existing session and recomputes its
// duration.
func (c *Catalog) Update(ctx context.Context, id string, end time.Time) error {
	s, ok := c.Session(id)
	if !ok {
		return scanerr.PersistenceFailed("update session", fmt.Errorf("%w: %s", ErrNotFound, id))
	}
	if !end.IsZero() && end.Before(s.StartTime) {
		return fmt.Errorf("end time %s is before start time %s", end.Format(time.RFC3339), s.StartTime.Format(time.RFC3339))
	}
	patched := s.WithEndTime(end)
	return c.write(ctx, "update session", func() error {
		return c.store.Save(ctx, patched)
	})
}

func (c *Catalog) write(ctx context.Context, op string, fn func() error) error {
	if err := fn(); err != nil {
		failure := scanerr.PersistenceFailed(op, err)
		logging.Error("Session store write failed", zap.String("op", op), zap.Error(err))
		c.notify(failure)
		return failure
	}
	err := c.reload(ctx)
	c.notify(err)
	return err
}

// Subscribe registers obs and returns a function that removes it.
func (c *Catalog) Subscribe(obs Observer) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextObs
	c.nextObs++
	c.observers[id] = obs
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

func (c *Catalog) notify(err error) {
	c.mu.RLock()
	observers := make([]Observer, 0, len(c.observers))
	for _, obs := range c.observers {
		observers = append(observers, obs)
	}
	sessions := c.sessions
	c.mu.RUnlock()

	for _, obs := range observers {
		obs(cloneAll(sessions), err)
	}
}

// Sessions returns every session, newest first.
func (c *Catalog) Sessions() []ScanSession {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneAll(c.sessions)
}

// Session returns the session with the given id.
func (c *Catalog) Session(id string) (ScanSession, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i := slices.IndexFunc(c.sessions, func(s ScanSession) bool { return s.ID == id })
	if i < 0 {
		return ScanSession{}, false
	}
	return c.sessions[i].Clone(), true
}

// Recent returns at most limit sessions, newest first.
func (c *Catalog) Recent(limit int) []ScanSession {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if limit < 0 || limit > len(c.sessions) {
		limit = len(c.sessions)
	}
	return cloneAll(c.sessions[:limit])
}

// Count returns the number of sessions.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

// TotalDevicesScanned sums the device counts of every session.
func (c *Catalog) TotalDevicesScanned() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := 0
	for _, s := range c.sessions {
		total += s.TotalDevices()
	}
	return total
}

// SessionsByType returns the sessions containing devices of type t.
func (c *Catalog) SessionsByType(t DeviceType) []ScanSession {
	return c.Filter(Filter{Type: t})
}

// SessionsOn returns the sessions that started on the calendar day of date.
func (c *Catalog) SessionsOn(date time.Time) []ScanSession {
	return c.Filter(Filter{Date: date})
}

// Filter applies f to the current list.
func (c *Catalog) Filter(f Filter) []ScanSession {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ApplyFilters(c.sessions, f)
}

// Close closes the underlying store.
func (c *Catalog) Close() error {
	return c.store.Close()
}
