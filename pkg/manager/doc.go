/*
Package manager is the composition root of an Agora node.

NewManager builds the full component graph from config and hands out typed
accessors; Start and Stop run the long-lived parts in dependency order. One
process runs exactly one Manager. The API server and the reconciler are not
owned here: cmd/agora builds them over the Manager, which keeps this package
free of HTTP concerns.

	┌──────────────── PROCESS ────────────────┐
	│  api.Server          reconciler.Loop    │
	│        │                   │            │
	│        └───────┬───────────┘            │
	│                ▼                        │
	│             Manager                     │
	│   services: tenant catalog cart         │
	│     inventory checkout consignment      │
	│     media reporting                     │
	│   machinery: queue dlq processor cron   │
	│     cache limiter broker collector      │
	│                ▼                        │
	│   BoltStore ─ objstore ─ Postgres(RO)   │
	└─────────────────────────────────────────┘

# Lifecycle

Start launches the job dispatch loop, the metrics collector, and the cron
schedule (aggregate refresh sweep, media temp sweep). Stop reverses: cron
drains, the dispatcher stops pulling work, then the limiter, broker, cache,
reporting store and bolt store close. The event broker alone starts inside
NewManager so components constructed afterwards can publish immediately.

# Scheduled work

Cron covers recurring platform chores. State repair that must converge even
after crashes (expired holds, stale report jobs, old idempotency records)
belongs to pkg/reconciler, which polls on its own ticker.
*/
package manager
