package cache

import (
	"context"
	"strings"

	"github.com/cuemby/agora/pkg/events"
	"github.com/cuemby/agora/pkg/log"
	"github.com/cuemby/agora/pkg/metrics"
)

// Invalidator subscribes to the event broker and drops cached entries that
// the event makes stale. Writers publish after a successful persist; the
// invalidator is how search pages, flag sets, and host lookups stay honest
// without per-read revalidation.
type Invalidator struct {
	cache  Cache
	broker *events.Broker
	sub    events.Subscriber
	stopCh chan struct{}
}

// NewInvalidator wires a cache to the broker. Call Start to begin.
func NewInvalidator(c Cache, broker *events.Broker) *Invalidator {
	return &Invalidator{
		cache:  c,
		broker: broker,
		stopCh: make(chan struct{}),
	}
}

// Start subscribes and processes events until Stop.
func (inv *Invalidator) Start() {
	inv.sub = inv.broker.Subscribe()
	go inv.run()
}

// Stop unsubscribes and halts processing. Safe to call without Start.
func (inv *Invalidator) Stop() {
	close(inv.stopCh)
	if inv.sub != nil {
		inv.broker.Unsubscribe(inv.sub)
	}
}

func (inv *Invalidator) run() {
	logger := log.WithComponent("cache-invalidator")
	for {
		select {
		case <-inv.stopCh:
			return
		case ev, ok := <-inv.sub:
			if !ok {
				return
			}
			if err := inv.handle(ev); err != nil {
				logger.Warn().Err(err).Str("event", string(ev.Type)).Str("tenant_id", ev.TenantID).
					Msg("Cache invalidation failed")
			}
		}
	}
}

func (inv *Invalidator) handle(ev *events.Event) error {
	ctx := context.Background()
	switch ev.Type {
	case events.EventCatalogChanged:
		metrics.CacheInvalidations.WithLabelValues("catalog_changed").Inc()
		return inv.cache.DeletePrefix(ctx, SearchPrefix(ev.TenantID))

	case events.EventFlagsChanged:
		metrics.CacheInvalidations.WithLabelValues("flags_changed").Inc()
		return inv.cache.Delete(ctx, FlagsKey(ev.TenantID))

	case events.EventTenantUpdated, events.EventTenantSuspended,
		events.EventTenantDeleted, events.EventDomainChanged:
		metrics.CacheInvalidations.WithLabelValues(reasonFor(ev.Type)).Inc()
		// Hostnames the tenant was reachable under ride in the event so the
		// resolver cache can be cleared without a reverse index.
		if hosts := ev.Metadata["hosts"]; hosts != "" {
			keys := make([]string, 0, 4)
			for _, h := range strings.Split(hosts, ",") {
				if h = strings.TrimSpace(h); h != "" {
					keys = append(keys, HostKey(h))
				}
			}
			if err := inv.cache.Delete(ctx, keys...); err != nil {
				return err
			}
		}
		return inv.cache.DeletePrefix(ctx, TenantPrefix(ev.TenantID))
	}
	return nil
}

func reasonFor(t events.EventType) string {
	switch t {
	case events.EventTenantSuspended:
		return "tenant_suspended"
	case events.EventTenantDeleted:
		return "tenant_deleted"
	case events.EventDomainChanged:
		return "domain_changed"
	default:
		return "tenant_updated"
	}
}
