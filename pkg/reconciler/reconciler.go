package reconciler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/agora/pkg/log"
	"github.com/cuemby/agora/pkg/manager"
	"github.com/cuemby/agora/pkg/tenant"
	"github.com/cuemby/agora/pkg/types"
)

const (
	// tickInterval is how often a reconcile pass runs.
	tickInterval = 30 * time.Second

	// staleRunningAfter marks a running report job as lost. It sits above
	// the processor's per-job execution ceiling, so only a crashed worker
	// leaves a row running this long.
	staleRunningAfter = 15 * time.Minute

	// webhookMarkerRetention keeps dedupe markers long enough to absorb
	// any realistic provider redelivery window.
	webhookMarkerRetention = 7 * 24 * time.Hour
)

// Reconciler converges persisted state that normal request and job paths
// can leave dangling after a crash: expired inventory holds, report jobs
// stuck in running, and bookkeeping rows past their retention.
type Reconciler struct {
	manager *manager.Manager
	logger  zerolog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	now     func() time.Time
}

// NewReconciler creates a reconciler over the manager's components.
func NewReconciler(mgr *manager.Manager) *Reconciler {
	return &Reconciler{
		manager: mgr,
		logger:  log.WithComponent("reconciler"),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		now:     time.Now,
	}
}

// Start begins the reconciliation loop.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop stops the reconciler and waits for an in-flight pass to finish.
func (r *Reconciler) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Reconciler) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.reconcile()
		case <-r.stopCh:
			return
		}
	}
}

// reconcile runs every pass to completion even when one repair reports
// errors; each repair is idempotent and the next tick retries whatever is
// still dangling.
func (r *Reconciler) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), tickInterval)
	defer cancel()

	r.releaseExpiredHolds(ctx)
	r.failStaleReportJobs(ctx)
	r.purgeExpired()
}

// releaseExpiredHolds returns lapsed reservations to the available pool.
// Each hold is released under its own tenant's binding, the same way the
// owning saga would have.
func (r *Reconciler) releaseExpiredHolds(ctx context.Context) {
	expired, err := r.manager.Store().ListExpiredHeldReservations(r.now().UTC())
	if err != nil {
		r.logger.Error().Err(err).Msg("could not list expired holds")
		return
	}

	released := 0
	for _, res := range expired {
		t, err := r.manager.Store().GetTenant(res.TenantID)
		if err != nil {
			r.logger.Warn().Err(err).Str("reservation_id", res.ID).Msg("expired hold has no loadable tenant")
			continue
		}
		err = tenant.RunAs(ctx, &tenant.Binding{Tenant: t, Actor: "system:reconciler"}, func(ctx context.Context) error {
			return r.manager.Inventory().Release(ctx, res)
		})
		if err != nil {
			r.logger.Warn().Err(err).Str("reservation_id", res.ID).Msg("expired hold not released")
			continue
		}
		released++
	}
	if released > 0 {
		r.logger.Info().Int("count", released).Msg("released expired holds")
	}
}

// failStaleReportJobs closes report job rows whose worker died mid-run. The
// queue item died with the worker, so the row would otherwise read running
// forever.
func (r *Reconciler) failStaleReportJobs(ctx context.Context) {
	active, err := r.manager.Store().ListActiveReportJobs()
	if err != nil {
		r.logger.Error().Err(err).Msg("could not list active report jobs")
		return
	}

	cutoff := r.now().UTC().Add(-staleRunningAfter)
	for _, job := range active {
		if job.Status != types.ReportJobStatusRunning || job.StartedAt.IsZero() || job.StartedAt.After(cutoff) {
			continue
		}
		t, err := r.manager.Store().GetTenant(job.TenantID)
		if err != nil {
			r.logger.Warn().Err(err).Str("report_job_id", job.ID).Msg("stale report job has no loadable tenant")
			continue
		}
		err = tenant.RunAs(ctx, &tenant.Binding{Tenant: t, Actor: "system:reconciler"}, func(ctx context.Context) error {
			job.Status = types.ReportJobStatusFailed
			job.Error = "worker lost: no progress since " + job.StartedAt.UTC().Format(time.RFC3339)
			job.CompletedAt = r.now().UTC()
			return r.manager.Guard().UpdateReportJob(ctx, job)
		})
		if err != nil {
			r.logger.Warn().Err(err).Str("report_job_id", job.ID).Msg("stale report job not failed")
			continue
		}
		r.logger.Info().Str("report_job_id", job.ID).Str("tenant_id", job.TenantID).Msg("failed stale report job")
	}
}

// purgeExpired drops bookkeeping rows past retention: idempotency records,
// impersonation tokens, and webhook dedupe markers.
func (r *Reconciler) purgeExpired() {
	now := r.now().UTC()

	if n, err := r.manager.Store().PurgeExpiredIdempotency(now); err != nil {
		r.logger.Error().Err(err).Msg("idempotency purge failed")
	} else if n > 0 {
		r.logger.Info().Int("count", n).Msg("purged expired idempotency records")
	}

	if n, err := r.manager.Tokens().CleanupExpired(); err != nil {
		r.logger.Error().Err(err).Msg("impersonation token purge failed")
	} else if n > 0 {
		r.logger.Info().Int("count", n).Msg("purged expired impersonation tokens")
	}

	if n, err := r.manager.Store().PurgeWebhookEvents(now.Add(-webhookMarkerRetention)); err != nil {
		r.logger.Error().Err(err).Msg("webhook marker purge failed")
	} else if n > 0 {
		r.logger.Info().Int("count", n).Msg("purged old webhook markers")
	}
}
