package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Tenancy metrics
	TenantResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_tenant_resolutions_total",
			Help: "Host resolution attempts by outcome",
		},
		[]string{"outcome"}, // resolved, not_found, suspended
	)

	TenantMismatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_tenant_mismatch_total",
			Help: "Operations rejected because the row belongs to another tenant",
		},
		[]string{"op"},
	)

	CrossTenantRowsElided = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agora_cross_tenant_rows_elided_total",
			Help: "Rows silently dropped from list results by the repository guard",
		},
	)

	ImpersonationSessions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agora_impersonation_sessions_total",
			Help: "Operator run-as sessions started",
		},
	)

	TenantsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agora_tenants",
			Help: "Tenants by lifecycle status",
		},
		[]string{"status"},
	)

	// Job metrics
	JobsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_jobs_enqueued_total",
			Help: "Jobs accepted into the queue by kind and priority",
		},
		[]string{"kind", "priority"},
	)

	JobsEnqueueRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_jobs_enqueue_rejected_total",
			Help: "Jobs rejected because a priority lane was full",
		},
		[]string{"priority"},
	)

	JobsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_jobs_started_total",
			Help: "Job executions started by kind",
		},
		[]string{"kind"},
	)

	JobsSucceeded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_jobs_succeeded_total",
			Help: "Job executions that completed successfully by kind",
		},
		[]string{"kind"},
	)

	JobsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_jobs_failed_total",
			Help: "Job executions that returned an error by kind",
		},
		[]string{"kind"},
	)

	JobsRetried = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_jobs_retried_total",
			Help: "Job executions re-enqueued with backoff by kind",
		},
		[]string{"kind"},
	)

	JobsDeadLettered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_jobs_dead_lettered_total",
			Help: "Jobs moved to the dead letter queue by kind",
		},
		[]string{"kind"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agora_job_duration_seconds",
			Help:    "Job execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agora_queue_depth",
			Help: "Jobs waiting per priority lane",
		},
		[]string{"priority"},
	)

	DLQDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agora_dlq_depth",
			Help: "Entries currently in the dead letter queue",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_api_requests_total",
			Help: "API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agora_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	RateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agora_rate_limited_total",
			Help: "Requests rejected by the per-tenant rate limiter",
		},
	)

	IdempotentReplays = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agora_idempotent_replays_total",
			Help: "Mutating requests answered from a stored idempotency record",
		},
	)

	// Cache metrics
	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_cache_hits_total",
			Help: "Cache hits by cache name",
		},
		[]string{"cache"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_cache_misses_total",
			Help: "Cache misses by cache name",
		},
		[]string{"cache"},
	)

	CacheInvalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_cache_invalidations_total",
			Help: "Tenant cache invalidations by reason",
		},
		[]string{"reason"},
	)

	// Checkout metrics
	CheckoutSagas = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_checkout_sagas_total",
			Help: "Checkout saga runs by outcome",
		},
		[]string{"outcome"}, // completed, failed
	)

	CheckoutCompensations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_checkout_compensations_total",
			Help: "Compensation steps executed by step name",
		},
		[]string{"step"},
	)

	PaymentProviderErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_payment_provider_errors_total",
			Help: "Payment provider call failures by operation",
		},
		[]string{"op"},
	)

	BreakerOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agora_breaker_open",
			Help: "Whether a circuit breaker is open (1) or closed (0)",
		},
		[]string{"name"},
	)

	// Media metrics
	MediaQuotaRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agora_media_quota_rejections_total",
			Help: "Upload initiations rejected for quota",
		},
	)

	MediaBytesStored = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agora_media_bytes_stored",
			Help: "Bytes currently charged against tenant media quotas",
		},
	)

	// Reporting metrics
	ReportJobsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agora_report_jobs_active",
			Help: "Report jobs by status",
		},
		[]string{"status"},
	)

	PayoutsPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agora_payouts_pending",
			Help: "Payout batches awaiting completion",
		},
	)

	// Audit metrics
	AuditWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agora_audit_write_failures_total",
			Help: "Synchronous audit writes that failed (each one fails its request)",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(TenantResolutions)
	prometheus.MustRegister(TenantMismatches)
	prometheus.MustRegister(CrossTenantRowsElided)
	prometheus.MustRegister(ImpersonationSessions)
	prometheus.MustRegister(TenantsByStatus)
	prometheus.MustRegister(JobsEnqueued)
	prometheus.MustRegister(JobsEnqueueRejected)
	prometheus.MustRegister(JobsStarted)
	prometheus.MustRegister(JobsSucceeded)
	prometheus.MustRegister(JobsFailed)
	prometheus.MustRegister(JobsRetried)
	prometheus.MustRegister(JobsDeadLettered)
	prometheus.MustRegister(JobDuration)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(DLQDepth)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(RateLimitedTotal)
	prometheus.MustRegister(IdempotentReplays)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(CacheInvalidations)
	prometheus.MustRegister(CheckoutSagas)
	prometheus.MustRegister(CheckoutCompensations)
	prometheus.MustRegister(PaymentProviderErrors)
	prometheus.MustRegister(BreakerOpen)
	prometheus.MustRegister(MediaQuotaRejections)
	prometheus.MustRegister(MediaBytesStored)
	prometheus.MustRegister(ReportJobsActive)
	prometheus.MustRegister(PayoutsPending)
	prometheus.MustRegister(AuditWriteFailures)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
