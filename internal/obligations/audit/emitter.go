// Package audit journals domain mutations into the append-only event store.
package audit

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/remitwise/obligations/internal/obligations/domain"
	"github.com/remitwise/obligations/internal/obligations/storage"
)

// Emitter records domain audit events. Recording is best-effort: a
// failed append is logged and dropped, never surfaced to the mutation
// that produced it.
type Emitter struct {
	store storage.AuditStore
	log   zerolog.Logger
}

// NewEmitter constructs an audit emitter over the given journal store.
func NewEmitter(store storage.AuditStore, log zerolog.Logger) *Emitter {
	return &Emitter{store: store, log: log}
}

// Record implements domain.AuditSink.
func (e *Emitter) Record(ctx context.Context, event domain.AuditEvent) {
	if e == nil || e.store == nil {
		return
	}
	err := e.store.AppendAuditEvent(ctx, storage.AuditRecord{
		Kind:      event.Kind,
		Owner:     event.Owner,
		SubjectID: event.SubjectID,
		Detail:    event.Detail,
		At:        event.At,
	})
	if err != nil {
		e.log.Warn().Err(err).Str("kind", event.Kind).Msg("drop audit event")
	}
}
