package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/jobs"
	"github.com/cuemby/agora/pkg/storage"
	"github.com/cuemby/agora/pkg/tenant"
	"github.com/cuemby/agora/pkg/types"
)

func testService(t *testing.T) (*Service, *storage.Guard, *jobs.Queue, context.Context) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx, err := tenant.Bind(context.Background(), &tenant.Binding{
		Tenant: &types.Tenant{ID: "t1", Subdomain: "t1", Status: types.TenantStatusActive},
		Actor:  "test",
	})
	require.NoError(t, err)

	guard := storage.NewGuard(store)
	q := jobs.NewQueue(nil)
	agg, _ := mockStore(t)
	return NewService(guard, agg, q), guard, q, ctx
}

func TestRequestRefresh(t *testing.T) {
	svc, guard, q, ctx := testService(t)

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7)

	job, err := svc.RequestRefresh(ctx, AggregateSalesDaily, start, end)
	require.NoError(t, err)
	assert.Equal(t, types.ReportJobKindRefresh, job.Kind)
	assert.Equal(t, types.ReportJobStatusPending, job.Status)
	assert.Equal(t, "2026-08-01", job.Params[paramPeriodStart])
	assert.Equal(t, "2026-08-08", job.Params[paramPeriodEnd])

	row, err := guard.GetReportJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, row.ID)

	item, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, JobKindRefresh, item.Kind)
	assert.Equal(t, jobs.PriorityBulk, item.Priority, "refreshes are background churn")

	_, err = svc.RequestRefresh(ctx, "unknown_aggregate", start, end)
	assert.True(t, errdefs.IsValidation(err))
	_, err = svc.RequestRefresh(ctx, AggregateSalesDaily, end, start)
	assert.True(t, errdefs.IsValidation(err))
}

func TestRequestExport(t *testing.T) {
	svc, _, q, ctx := testService(t)

	job, err := svc.RequestExport(ctx, AggregateSalesDaily, "", map[string]string{
		"period_start": "2026-07-01",
		"period_end":   "2026-07-31",
	})
	require.NoError(t, err)
	assert.Equal(t, types.ReportJobKindExport, job.Kind)
	assert.Equal(t, FormatCSV, job.Format)

	item, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, JobKindExport, item.Kind)
	assert.Equal(t, jobs.PriorityDefault, item.Priority, "someone is waiting on the download")

	_, err = svc.RequestExport(ctx, AggregateSalesDaily, "xlsx", nil)
	assert.True(t, errdefs.IsValidation(err))
	_, err = svc.RequestExport(ctx, "unknown", "csv", nil)
	assert.True(t, errdefs.IsValidation(err))
	_, err = svc.RequestExport(ctx, AggregateSalesDaily, "csv", map[string]string{"period_start": "bad-date"})
	assert.True(t, errdefs.IsValidation(err))
	_, err = svc.RequestExport(ctx, AggregateSalesDaily, "csv", map[string]string{
		"period_start": "2026-08-10", "period_end": "2026-08-01",
	})
	assert.True(t, errdefs.IsValidation(err))
}

func TestRequestExportDefaultsToTrailing30Days(t *testing.T) {
	svc, _, _, ctx := testService(t)
	svc.now = func() time.Time { return time.Date(2026, 8, 25, 15, 0, 0, 0, time.UTC) }

	job, err := svc.RequestExport(ctx, AggregateSalesDaily, "csv", nil)
	require.NoError(t, err)
	assert.Equal(t, "2026-07-26", job.Params[paramPeriodStart])
	assert.Equal(t, "2026-08-25", job.Params[paramPeriodEnd])
}
