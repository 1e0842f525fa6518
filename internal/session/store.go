package session

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a session id is not in the store.
var ErrNotFound = errors.New("session not found")

// Store persists scan sessions.
type Store interface {
	// Save inserts a session. Saving an id that already exists replaces it.
	Save(ctx context.Context, s ScanSession) error

	// Delete removes a session by id.
	Delete(ctx context.Context, id string) error

	// LoadAll returns every session ordered by descending start time.
	LoadAll(ctx context.Context) ([]ScanSession, error)

	// ClearAll removes every session.
	ClearAll(ctx context.Context) error

	Close() error
}

// Saver is the part of a Store the Aggregator needs. Catalog implements it
// so saves made during a scan reach catalog subscribers.
type Saver interface {
	Save(ctx context.Context, s ScanSession) error
}
