/*
Package events provides in-process publish/subscribe for platform events.

The Broker fans out tenant lifecycle, catalog, order, media, and payout
events to any number of subscribers over buffered channels. Delivery is
best-effort: a subscriber that stops draining its channel is skipped, never
waited on, so a stuck consumer cannot stall publishers.

# Architecture

	Publisher ──▶ eventCh (100) ──▶ run() ──▶ subscriber chans (50 each)
	                                              │
	                         full buffer? skip ───┘

One goroutine owns distribution. Publish is non-blocking up to the event
channel buffer; broadcast is non-blocking per subscriber.

# Event Types

Tenancy:
  - tenant.resolved: a host resolved to an active tenant
  - tenant.created / tenant.updated / tenant.suspended / tenant.deleted
  - tenant.domain_changed: custom domain attached, verified, or removed

Commerce:
  - catalog.changed: product created, updated, or archived
  - order.completed / order.failed: checkout saga outcomes
  - inventory.transfer_received: destination stock credited

Operations:
  - flags.changed: feature flag toggled
  - media.ready / media.failed: processing pipeline outcomes
  - consignment.payout_completed
  - job.dead_lettered: a job exhausted its retries

# Usage

Publishing:

	broker.Publish(&events.Event{
		Type:     events.EventCatalogChanged,
		TenantID: tenantID,
		Metadata: map[string]string{"product_id": productID},
	})

Subscribing:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	for ev := range sub {
		// react
	}

# Integration Points

  - pkg/tenant: resolver emits tenant.resolved; tenant writes emit
    tenant.updated/suspended/domain_changed, which invalidate the host cache
  - pkg/cache: the invalidator subscribes and drops tenant-scoped entries
    on catalog.changed, flags.changed, and tenant lifecycle events
  - pkg/catalog, pkg/checkout, pkg/inventory, pkg/media, pkg/consignment:
    emit their domain events after successful writes
  - pkg/jobs: emits job.dead_lettered for operator visibility

# Limitations

Events are process-local and carry no delivery guarantee. Anything that
must survive a crash goes through pkg/storage or the job queue instead;
events only accelerate caches and dashboards.
*/
package events
