package reporting

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cuemby/agora/pkg/config"
	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/jobs"
	"github.com/cuemby/agora/pkg/log"
	"github.com/cuemby/agora/pkg/objstore"
	"github.com/cuemby/agora/pkg/storage"
	"github.com/cuemby/agora/pkg/types"
)

// downloadTTL is how long an export download link stays valid.
const downloadTTL = 24 * time.Hour

// exportChunkDays is the window each export query covers; chunks fetch
// concurrently and merge in order.
const exportChunkDays = 7

// ExportKey is where a finished export lives in object storage.
func ExportKey(tenantID, jobID, reportType string) string {
	return fmt.Sprintf("%s/reports/%s/%s.csv", tenantID, jobID, reportType)
}

// NewRefreshHandler returns the JobKindRefresh handler: it rebuilds the
// sales_daily rows for the job's period from the tenant's completed orders
// and stamps every row with the rebuild time.
func NewRefreshHandler(guard *storage.Guard, aggregates *AggregateStore) jobs.Handler {
	logger := log.WithComponent("reporting.refresh")

	return func(ctx context.Context, env *jobs.Envelope) error {
		row, err := startRow(ctx, guard, env.Data, func(p RefreshJob) string { return p.ReportJobID })
		if err != nil || row == nil {
			return err
		}
		if aggregates == nil {
			return failRow(ctx, guard, row, errdefs.Permanentf("reporting store not configured"))
		}
		start, end, err := rowPeriod(row)
		if err != nil {
			return failRow(ctx, guard, row, err)
		}

		orders, err := guard.ListOrders(ctx)
		if err != nil {
			return failIfPermanent(ctx, guard, row, err)
		}

		freshness := time.Now().UTC()
		byDay := map[time.Time]*SalesDailyRow{}
		for _, o := range orders {
			if o.Status != types.OrderStatusCompleted {
				continue
			}
			day := o.UpdatedAt.UTC().Truncate(24 * time.Hour)
			if day.Before(start) || !day.Before(end) {
				continue
			}
			r, ok := byDay[day]
			if !ok {
				r = &SalesDailyRow{TenantID: env.TenantID, Day: day, DataFreshness: freshness}
				byDay[day] = r
			}
			r.OrderCount++
			r.GrossCents += o.GrandTotalCents
		}

		rows := make([]SalesDailyRow, 0, len(byDay))
		for _, r := range byDay {
			rows = append(rows, *r)
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].Day.Before(rows[j].Day) })

		if err := aggregates.UpsertSalesDaily(ctx, rows); err != nil {
			return failIfPermanent(ctx, guard, row, err)
		}

		row.Status = types.ReportJobStatusCompleted
		row.CompletedAt = time.Now().UTC()
		row.DataFreshness = freshness
		if err := guard.UpdateReportJob(ctx, row); err != nil {
			return err
		}
		logger.Info().Str("report_job_id", row.ID).Int("days", len(rows)).Msg("aggregate refreshed")
		return nil
	}
}

// NewExportHandler returns the JobKindExport handler: it pulls the period's
// aggregate rows in concurrent chunks, renders CSV, uploads the file and
// signs a download link onto the row.
func NewExportHandler(guard *storage.Guard, aggregates *AggregateStore, store objstore.Client, cfg config.ReportingConfig) jobs.Handler {
	logger := log.WithComponent("reporting.export")
	workers := cfg.ExportWorkers
	if workers <= 0 {
		workers = 4
	}

	return func(ctx context.Context, env *jobs.Envelope) error {
		row, err := startRow(ctx, guard, env.Data, func(p ExportJob) string { return p.ReportJobID })
		if err != nil || row == nil {
			return err
		}
		if aggregates == nil {
			return failRow(ctx, guard, row, errdefs.Permanentf("reporting store not configured"))
		}
		start, end, err := rowPeriod(row)
		if err != nil {
			return failRow(ctx, guard, row, err)
		}

		// Chunked fan-out: one query per window, merged in order.
		type chunk struct {
			from, to time.Time
		}
		var chunks []chunk
		for from := start; from.Before(end); from = from.AddDate(0, 0, exportChunkDays) {
			to := from.AddDate(0, 0, exportChunkDays-1)
			if to.After(end) {
				to = end
			}
			chunks = append(chunks, chunk{from: from, to: to})
		}

		results := make([][]SalesDailyRow, len(chunks))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i, c := range chunks {
			i, c := i, c
			g.Go(func() error {
				rows, err := aggregates.SalesDaily(gctx, env.TenantID, c.from, c.to)
				if err != nil {
					return err
				}
				results[i] = rows
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return failIfPermanent(ctx, guard, row, err)
		}

		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write([]string{"day", "order_count", "gross_cents", "data_freshness_timestamp"}); err != nil {
			return failRow(ctx, guard, row, errdefs.Permanentf("write export header: %v", err))
		}
		for _, rows := range results {
			for _, r := range rows {
				rec := []string{
					r.Day.UTC().Format(periodLayout),
					strconv.FormatInt(r.OrderCount, 10),
					strconv.FormatInt(r.GrossCents, 10),
					r.DataFreshness.UTC().Format(time.RFC3339),
				}
				if err := w.Write(rec); err != nil {
					return failRow(ctx, guard, row, errdefs.Permanentf("write export row: %v", err))
				}
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return failRow(ctx, guard, row, errdefs.Permanentf("flush export: %v", err))
		}

		key := ExportKey(env.TenantID, row.ID, row.ReportType)
		if err := store.Upload(ctx, key, &buf, "text/csv", int64(buf.Len())); err != nil {
			return failIfPermanent(ctx, guard, row, errdefs.Transientf("upload export %s: %v", row.ID, err))
		}
		url, err := store.SignedDownload(key, downloadTTL)
		if err != nil {
			return failIfPermanent(ctx, guard, row, errdefs.Transientf("sign export %s: %v", row.ID, err))
		}

		fresh, err := aggregates.Freshness(ctx, env.TenantID)
		if err != nil {
			return failIfPermanent(ctx, guard, row, err)
		}

		row.Status = types.ReportJobStatusCompleted
		row.CompletedAt = time.Now().UTC()
		row.ResultKey = key
		row.DownloadURL = url
		row.DataFreshness = fresh
		if err := guard.UpdateReportJob(ctx, row); err != nil {
			return err
		}
		logger.Info().Str("report_job_id", row.ID).Str("key", key).Msg("export completed")
		return nil
	}
}

// startRow decodes the payload, loads the row and moves it to running. A
// completed row means a replayed job: both returns are nil and the handler
// treats the work as done. Failed rows are operator requeues and run again.
func startRow[P any](ctx context.Context, guard *storage.Guard, data json.RawMessage, id func(P) string) (*types.ReportJob, error) {
	var payload P
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, errdefs.Permanentf("malformed reporting payload: %v", err)
	}
	jobID := id(payload)
	if jobID == "" {
		return nil, errdefs.Permanentf("reporting payload missing report_job_id")
	}
	row, err := guard.GetReportJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if row.Status == types.ReportJobStatusCompleted {
		return nil, nil
	}
	row.Status = types.ReportJobStatusRunning
	row.Error = ""
	row.StartedAt = time.Now().UTC()
	if err := guard.UpdateReportJob(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

// rowPeriod reads the period params persisted on the row. The end bound is
// exclusive for refresh grouping and inclusive for export queries; callers
// interpret it.
func rowPeriod(row *types.ReportJob) (time.Time, time.Time, error) {
	start, err := time.Parse(periodLayout, row.Params[paramPeriodStart])
	if err != nil {
		return time.Time{}, time.Time{}, errdefs.Permanentf("report job %s has bad %s", row.ID, paramPeriodStart)
	}
	end, err := time.Parse(periodLayout, row.Params[paramPeriodEnd])
	if err != nil {
		return time.Time{}, time.Time{}, errdefs.Permanentf("report job %s has bad %s", row.ID, paramPeriodEnd)
	}
	return start, end, nil
}

// failRow marks the row failed and returns the error that did it.
func failRow(ctx context.Context, guard *storage.Guard, row *types.ReportJob, cause error) error {
	row.Status = types.ReportJobStatusFailed
	row.Error = cause.Error()
	row.CompletedAt = time.Now().UTC()
	if err := guard.UpdateReportJob(ctx, row); err != nil {
		lg := log.WithComponent("reporting")
		lg.Error().Err(err).Str("report_job_id", row.ID).Msg("failed row not persisted")
	}
	return cause
}

// failIfPermanent routes an error: transient ones leave the row running so
// the retry policy can come back; anything else finishes the row as failed.
func failIfPermanent(ctx context.Context, guard *storage.Guard, row *types.ReportJob, cause error) error {
	if errdefs.Retryable(cause) {
		return cause
	}
	return failRow(ctx, guard, row, cause)
}
