package app

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/remitwise/obligations/internal/obligations/audit"
	"github.com/remitwise/obligations/internal/obligations/domain"
	"github.com/remitwise/obligations/internal/obligations/storage"
	"github.com/remitwise/obligations/internal/obligations/storage/sqlite"
	"github.com/remitwise/obligations/internal/platform/identity"
)

// Runtime bundles the wired obligation service with its store handle.
type Runtime struct {
	Service *domain.Service
	store   *sqlite.Store
}

// Open builds a fully wired obligation service over a SQLite store at
// the given path.
func Open(path string, authorizer identity.Authorizer, log zerolog.Logger) (*Runtime, error) {
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, err
	}
	return &Runtime{
		Service: NewService(store, authorizer, log, nil),
		store:   store,
	}, nil
}

// Close releases the underlying store.
func (r *Runtime) Close() error {
	if r == nil || r.store == nil {
		return nil
	}
	return r.store.Close()
}

// NewService wires a domain service over any storage implementation.
// A nil clock falls back to wall time.
func NewService(store storage.Store, authorizer identity.Authorizer, log zerolog.Logger, clock func() time.Time) *domain.Service {
	adapter := newDomainStoreAdapter(store)
	emitter := audit.NewEmitter(store, log)
	return domain.NewService(adapter, authorizer, emitter, clock)
}
