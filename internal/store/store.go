package store

import (
	"fmt"

	"github.com/muurk/proxiscan/internal/session"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open returns the session store for backend at path.
func Open(backend, path string) (session.Store, error) {
	switch backend {
	case BackendFile, "":
		return NewFileStore(path)
	case BackendSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", session.ErrNotFound, id)
}
