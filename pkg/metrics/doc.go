/*
Package metrics provides Prometheus metrics collection and exposition for Agora.

All metrics carry the agora_ prefix and register at package init. Counters
are bumped inline by the owning packages; gauges that require sampling
(queue depth, DLQ depth, report job states, pending payouts) are refreshed
by the Collector on a fixed interval.

# Architecture

	┌──────────────┐   inline    ┌─────────────────────┐
	│ pkg/tenant   ├────────────▶│                     │
	│ pkg/jobs     ├────────────▶│  prometheus default │   /metrics
	│ pkg/api      ├────────────▶│      registry       │◀──────────── scrape
	│ pkg/checkout ├────────────▶│                     │
	└──────────────┘             └─────────▲───────────┘
	┌──────────────┐   sampled             │
	│  Collector   ├───────────────────────┘
	└──────────────┘  (15s ticker over Sources funcs)

# Metrics Catalog

Tenancy:
  - agora_tenant_resolutions_total{outcome}: resolved, not_found, suspended
  - agora_tenant_mismatch_total{op}: writes rejected for foreign rows
  - agora_cross_tenant_rows_elided_total: guard-dropped list rows
  - agora_impersonation_sessions_total: operator run-as sessions

Jobs:
  - agora_jobs_enqueued_total{kind,priority}
  - agora_jobs_enqueue_rejected_total{priority}: lane at capacity
  - agora_jobs_started_total{kind} / _succeeded_total / _failed_total
  - agora_jobs_dead_lettered_total{kind}
  - agora_job_duration_seconds{kind}
  - agora_queue_depth{priority} (sampled)
  - agora_dlq_depth (sampled)

API:
  - agora_api_requests_total{method,status}
  - agora_api_request_duration_seconds{method}
  - agora_rate_limited_total
  - agora_idempotent_replays_total

Caching:
  - agora_cache_hits_total{cache} / agora_cache_misses_total{cache}
  - agora_cache_invalidations_total{reason}

Checkout and payments:
  - agora_checkout_sagas_total{outcome}
  - agora_checkout_compensations_total{step}
  - agora_payment_provider_errors_total{op}
  - agora_breaker_open{name}

Media, reporting, audit:
  - agora_media_quota_rejections_total
  - agora_media_bytes_stored (sampled)
  - agora_report_jobs_active{status} (sampled)
  - agora_payouts_pending (sampled)
  - agora_audit_write_failures_total

# Usage

Bumping a counter inline:

	metrics.JobsEnqueued.WithLabelValues(job.Kind, string(job.Priority)).Inc()

Timing an operation:

	timer := metrics.NewTimer()
	err := handler.Run(ctx, job)
	timer.ObserveDurationVec(metrics.JobDuration, job.Kind)

Running the collector:

	collector := metrics.NewCollector(metrics.Sources{
		QueueDepths: queue.Depths,
		DLQDepth:    dlq.Depth,
	}, 15*time.Second)
	collector.Start()
	defer collector.Stop()

Serving the endpoint:

	mux.Handle("/metrics", metrics.Handler())

# Health Endpoints

The package also carries the process health registry. Components report
their state with RegisterComponent/UpdateComponent; /healthz reflects them
all, /readyz gates on the critical set (storage, queue, api by default).
Optional backends such as redis and the reporting Postgres degrade health
without blocking readiness.

# Cardinality

Tenant ids are deliberately not metric labels. Per-tenant series grow
unbounded with signups; tenant-level investigation belongs in logs, which
carry tenant_id on every line.

# Alerting Rules

Example alerts:

	- alert: AuditWritesFailing
	  expr: rate(agora_audit_write_failures_total[5m]) > 0
	  for: 5m

	- alert: DLQGrowing
	  expr: delta(agora_dlq_depth[30m]) > 100

	- alert: CrossTenantElision
	  expr: rate(agora_cross_tenant_rows_elided_total[5m]) > 0

The last one should stay at zero in a healthy system; any signal means a
caller is composing queries without a tenant filter.

# See Also

  - pkg/jobs for queue instrumentation points
  - pkg/api for request metrics middleware
  - pkg/manager for collector wiring
*/
package metrics
