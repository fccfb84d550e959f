package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/log"
	"github.com/cuemby/agora/pkg/metrics"
	"github.com/cuemby/agora/pkg/tenant"
	"github.com/cuemby/agora/pkg/types"
)

// Sink records audit events. Implementations must be synchronous: when
// Record returns nil the event is durable, and when it returns an error the
// caller must abort the action it was about to confirm.
type Sink interface {
	Record(ctx context.Context, action, resourceType, resourceID string, detail map[string]string) error
}

// Store is the slice of the storage layer the bolt sink needs.
type Store interface {
	AppendAuditEvent(e *types.AuditEvent) error
}

// BoltSink writes audit rows to the embedded store. The actor, tenant, and
// impersonation marker all come from the context binding, so a caller cannot
// forge an audit row for someone else.
type BoltSink struct {
	store  Store
	logger zerolog.Logger
}

// NewBoltSink creates a store-backed audit sink.
func NewBoltSink(store Store) *BoltSink {
	return &BoltSink{store: store, logger: log.WithComponent("audit")}
}

// Record writes one audit row. A failed write is a fatal invariant breach:
// the returned error wraps errdefs.ErrFatal and the initiating request must
// not proceed as if the action were unaudited.
func (s *BoltSink) Record(ctx context.Context, action, resourceType, resourceID string, detail map[string]string) error {
	b, err := tenant.Current(ctx)
	if err != nil {
		return err
	}
	e := &types.AuditEvent{
		ID:              uuid.New().String(),
		TenantID:        b.Tenant.ID,
		Actor:           b.Actor,
		ImpersonationID: b.ImpersonationID,
		Action:          action,
		ResourceType:    resourceType,
		ResourceID:      resourceID,
		Detail:          detail,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.store.AppendAuditEvent(e); err != nil {
		metrics.AuditWriteFailures.Inc()
		s.logger.Error().Err(err).
			Str("tenant_id", e.TenantID).
			Str("action", action).
			Str("resource", resourceType+"/"+resourceID).
			Msg("audit write failed; blocking initiating action")
		return fmt.Errorf("audit write for %s: %v: %w", action, err, errdefs.ErrFatal)
	}
	return nil
}

// Nop discards events. Test wiring only.
type Nop struct{}

func (Nop) Record(context.Context, string, string, string, map[string]string) error { return nil }
