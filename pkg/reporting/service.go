package reporting

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/jobs"
	"github.com/cuemby/agora/pkg/log"
	"github.com/cuemby/agora/pkg/storage"
	"github.com/cuemby/agora/pkg/tenant"
	"github.com/cuemby/agora/pkg/types"
)

const (
	// JobKindRefresh rebuilds one aggregate over a period.
	JobKindRefresh = "reporting.refresh"
	// JobKindExport renders one report to a downloadable file.
	JobKindExport = "reporting.export"

	// AggregateSalesDaily is the per-day completed-order rollup.
	AggregateSalesDaily = "sales_daily"

	// FormatCSV is the only export format served today.
	FormatCSV = "csv"

	paramPeriodStart = "period_start"
	paramPeriodEnd   = "period_end"
	periodLayout     = "2006-01-02"
)

// RefreshJob and ExportJob carry only the row id; everything else lives on
// the ReportJob row so operators can read one place.
type RefreshJob struct {
	ReportJobID string `json:"report_job_id"`
}

type ExportJob struct {
	ReportJobID string `json:"report_job_id"`
}

// Service accepts refresh and export requests, tracks their rows, and serves
// aggregate reads for the bound tenant.
type Service struct {
	guard      *storage.Guard
	aggregates *AggregateStore
	queue      *jobs.Queue
	logger     zerolog.Logger
	now        func() time.Time
}

// NewService wires reporting over the tenant-scoped guard and the Postgres
// read model.
func NewService(guard *storage.Guard, aggregates *AggregateStore, q *jobs.Queue) *Service {
	return &Service{
		guard:      guard,
		aggregates: aggregates,
		queue:      q,
		logger:     log.WithComponent("reporting"),
		now:        time.Now,
	}
}

// RequestRefresh queues an aggregate rebuild over [periodStart, periodEnd).
// Refreshes ride the bulk lane; they are routine background churn.
func (s *Service) RequestRefresh(ctx context.Context, aggregateType string, periodStart, periodEnd time.Time) (*types.ReportJob, error) {
	if aggregateType != AggregateSalesDaily {
		return nil, errdefs.Validationf("unknown aggregate type %q", aggregateType)
	}
	if !periodEnd.After(periodStart) {
		return nil, errdefs.Validationf("refresh period end must be after start")
	}

	job := &types.ReportJob{
		ID:         uuid.New().String(),
		Kind:       types.ReportJobKindRefresh,
		ReportType: aggregateType,
		Params: map[string]string{
			paramPeriodStart: periodStart.UTC().Format(periodLayout),
			paramPeriodEnd:   periodEnd.UTC().Format(periodLayout),
		},
		Status:    types.ReportJobStatusPending,
		CreatedAt: s.now().UTC(),
	}
	if err := s.guard.CreateReportJob(ctx, job); err != nil {
		return nil, err
	}

	bound, _ := tenant.Current(ctx)
	if _, err := jobs.Submit(s.queue, bound.Tenant.ID, JobKindRefresh,
		RefreshJob{ReportJobID: job.ID}, jobs.PriorityBulk); err != nil {
		return nil, s.abandon(ctx, job, err)
	}
	return job, nil
}

// RequestExport queues a report render. Someone is waiting on the download,
// so exports ride the default lane.
func (s *Service) RequestExport(ctx context.Context, reportType, format string, params map[string]string) (*types.ReportJob, error) {
	if reportType != AggregateSalesDaily {
		return nil, errdefs.Validationf("unknown report type %q", reportType)
	}
	if format == "" {
		format = FormatCSV
	}
	if format != FormatCSV {
		return nil, errdefs.Validationf("unsupported export format %q", format)
	}
	start, end, err := exportPeriod(params, s.now().UTC())
	if err != nil {
		return nil, err
	}

	job := &types.ReportJob{
		ID:         uuid.New().String(),
		Kind:       types.ReportJobKindExport,
		ReportType: reportType,
		Format:     format,
		Params: map[string]string{
			paramPeriodStart: start.Format(periodLayout),
			paramPeriodEnd:   end.Format(periodLayout),
		},
		Status:    types.ReportJobStatusPending,
		CreatedAt: s.now().UTC(),
	}
	if err := s.guard.CreateReportJob(ctx, job); err != nil {
		return nil, err
	}

	bound, _ := tenant.Current(ctx)
	if _, err := jobs.Submit(s.queue, bound.Tenant.ID, JobKindExport,
		ExportJob{ReportJobID: job.ID}, jobs.PriorityDefault); err != nil {
		return nil, s.abandon(ctx, job, err)
	}
	return job, nil
}

// abandon marks a row failed when its job never made it onto the queue.
func (s *Service) abandon(ctx context.Context, job *types.ReportJob, cause error) error {
	job.Status = types.ReportJobStatusFailed
	job.Error = "enqueue failed: " + cause.Error()
	if err := s.guard.UpdateReportJob(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("report_job_id", job.ID).Msg("abandoned job row not persisted")
	}
	return cause
}

// GetJob returns one report job row.
func (s *Service) GetJob(ctx context.Context, id string) (*types.ReportJob, error) {
	return s.guard.GetReportJob(ctx, id)
}

// ListJobs returns the tenant's report jobs.
func (s *Service) ListJobs(ctx context.Context) ([]*types.ReportJob, error) {
	return s.guard.ListReportJobs(ctx)
}

// SalesDaily serves the aggregate rows for the bound tenant along with the
// freshness stamp of the newest rebuild.
func (s *Service) SalesDaily(ctx context.Context, from, to time.Time) ([]SalesDailyRow, time.Time, error) {
	if s.aggregates == nil {
		return nil, time.Time{}, errdefs.Transientf("reporting store not configured")
	}
	bound, err := tenant.Current(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}
	rows, err := s.aggregates.SalesDaily(ctx, bound.Tenant.ID, from, to)
	if err != nil {
		return nil, time.Time{}, err
	}
	fresh, err := s.aggregates.Freshness(ctx, bound.Tenant.ID)
	if err != nil {
		return nil, time.Time{}, err
	}
	return rows, fresh, nil
}

// exportPeriod reads the requested window, defaulting to the trailing 30
// days ending today.
func exportPeriod(params map[string]string, now time.Time) (time.Time, time.Time, error) {
	end := now.Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -30)
	if v, ok := params[paramPeriodStart]; ok {
		t, err := time.Parse(periodLayout, v)
		if err != nil {
			return time.Time{}, time.Time{}, errdefs.Validationf("bad %s %q: expected YYYY-MM-DD", paramPeriodStart, v)
		}
		start = t
	}
	if v, ok := params[paramPeriodEnd]; ok {
		t, err := time.Parse(periodLayout, v)
		if err != nil {
			return time.Time{}, time.Time{}, errdefs.Validationf("bad %s %q: expected YYYY-MM-DD", paramPeriodEnd, v)
		}
		end = t
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, errdefs.Validationf("export period end precedes start")
	}
	return start, end, nil
}
