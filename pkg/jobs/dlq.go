package jobs

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/events"
	"github.com/cuemby/agora/pkg/log"
	"github.com/cuemby/agora/pkg/metrics"
	"github.com/cuemby/agora/pkg/types"
)

// DLQStore is the persistence slice the dead letter queue needs.
type DLQStore interface {
	PushDLQEntry(e *types.DLQEntry) error
	GetDLQEntry(id string) (*types.DLQEntry, error)
	ListDLQEntries() ([]*types.DLQEntry, error)
	DeleteDLQEntry(id string) error
	CountDLQEntries() (int, error)
}

// Filter narrows DLQ listings and purges. Zero values match everything.
type Filter struct {
	TenantID string
	Kind     string
}

func (f Filter) matches(e *types.DLQEntry) bool {
	if f.TenantID != "" && e.TenantID != f.TenantID {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	return true
}

// DeadLetter holds jobs that exhausted their retry budget. Entries are
// persisted so restarts lose nothing; an operator inspects, requeues, or
// purges them through the admin API and CLI.
type DeadLetter struct {
	store  DLQStore
	broker *events.Broker
	logger zerolog.Logger
}

// NewDeadLetter creates a persistent dead letter queue.
func NewDeadLetter(store DLQStore, broker *events.Broker) *DeadLetter {
	return &DeadLetter{store: store, broker: broker, logger: log.WithComponent("jobs.dlq")}
}

// Push parks an exhausted item. The payload bytes ride along untouched so a
// later requeue replays exactly what failed.
func (d *DeadLetter) Push(item *Item, lastErr error) error {
	entry := &types.DLQEntry{
		ID:             item.ID,
		TenantID:       item.TenantID,
		Kind:           item.Kind,
		Priority:       item.Priority.String(),
		Attempts:       item.Attempts,
		Payload:        item.Payload,
		LastError:      lastErr.Error(),
		FirstFailedAt:  item.FirstFailedAt,
		DeadLetteredAt: time.Now().UTC(),
	}
	if entry.FirstFailedAt.IsZero() {
		entry.FirstFailedAt = entry.DeadLetteredAt
	}
	if err := d.store.PushDLQEntry(entry); err != nil {
		return fmt.Errorf("persist dlq entry %s: %w", entry.ID, err)
	}
	metrics.JobsDeadLettered.WithLabelValues(item.Kind).Inc()
	d.logger.Warn().
		Str("job_id", item.ID).
		Str("tenant_id", item.TenantID).
		Str("kind", item.Kind).
		Int("attempts", item.Attempts).
		Str("last_error", entry.LastError).
		Msg("job dead-lettered")
	if d.broker != nil {
		d.broker.Publish(&events.Event{
			Type:     events.EventJobDeadLettered,
			TenantID: item.TenantID,
			Message:  fmt.Sprintf("job %s (%s) dead-lettered after %d attempts", item.ID, item.Kind, item.Attempts),
			Metadata: map[string]string{"job_id": item.ID, "kind": item.Kind, "last_error": entry.LastError},
		})
	}
	return nil
}

// List returns matching entries, newest first.
func (d *DeadLetter) List(f Filter) ([]*types.DLQEntry, error) {
	all, err := d.store.ListDLQEntries()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeadLetteredAt.After(out[j].DeadLetteredAt) })
	return out, nil
}

// Requeue moves one entry back onto the live queue with a fresh attempt
// budget. The payload is re-validated first: an entry whose schema this
// binary no longer accepts stays parked instead of crash-looping a worker.
func (d *DeadLetter) Requeue(entryID string, q *Queue) error {
	entry, err := d.store.GetDLQEntry(entryID)
	if err != nil {
		return err
	}
	if _, err := ValidatePayload(entry.Payload); err != nil {
		return fmt.Errorf("dlq entry %s payload no longer valid: %w", entryID, err)
	}
	priority, err := ParsePriority(entry.Priority)
	if err != nil {
		return err
	}
	item := &Item{
		ID:       entry.ID,
		TenantID: entry.TenantID,
		Kind:     entry.Kind,
		Payload:  entry.Payload,
		Priority: priority,
	}
	if !q.Enqueue(item) {
		return errdefs.Conflictf("lane %s full, requeue of %s rejected", entry.Priority, entryID)
	}
	if err := d.store.DeleteDLQEntry(entryID); err != nil {
		return fmt.Errorf("remove requeued dlq entry %s: %w", entryID, err)
	}
	d.logger.Info().Str("job_id", entryID).Str("kind", entry.Kind).Msg("dlq entry requeued")
	return nil
}

// Purge deletes matching entries and returns how many were removed.
func (d *DeadLetter) Purge(f Filter) (int, error) {
	all, err := d.store.ListDLQEntries()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range all {
		if !f.matches(e) {
			continue
		}
		if err := d.store.DeleteDLQEntry(e.ID); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Depth returns the persisted backlog size.
func (d *DeadLetter) Depth() (int, error) {
	return d.store.CountDLQEntries()
}
