package reporting

import (
	"encoding/csv"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/agora/pkg/config"
	"github.com/cuemby/agora/pkg/jobs"
	"github.com/cuemby/agora/pkg/objstore"
	"github.com/cuemby/agora/pkg/types"
)

func reportingEnvelope(t *testing.T, kind string, payload any) *jobs.Envelope {
	t.Helper()
	env, _, err := jobs.NewEnvelope("t1", kind, payload)
	require.NoError(t, err)
	return env
}

func TestRefreshHandlerAggregatesCompletedOrders(t *testing.T) {
	svc, guard, _, ctx := testService(t)
	agg, mock := mockStore(t)

	day1 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 2, 11, 0, 0, 0, time.UTC)
	outside := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	seed := func(id string, status types.OrderStatus, at time.Time, cents int64) {
		require.NoError(t, guard.CreateOrder(ctx, &types.Order{
			ID: id, CartID: "c-" + id, GrandTotalCents: cents,
			Status: status, Version: 1, CreatedAt: at, UpdatedAt: at,
		}))
	}
	seed("o1", types.OrderStatusCompleted, day1, 5000)
	seed("o2", types.OrderStatusCompleted, day1, 400)
	seed("o3", types.OrderStatusCompleted, day2, 1900)
	seed("o4", types.OrderStatusFailed, day1, 9999)    // failed orders never aggregate
	seed("o5", types.OrderStatusCompleted, outside, 7) // outside the period

	row, err := svc.RequestRefresh(ctx, AggregateSalesDaily,
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 8, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO sales_daily").
		WithArgs("t1", day1.Truncate(24*time.Hour), int64(2), int64(5400), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO sales_daily").
		WithArgs("t1", day2.Truncate(24*time.Hour), int64(1), int64(1900), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	handler := NewRefreshHandler(guard, agg)
	require.NoError(t, handler(ctx, reportingEnvelope(t, JobKindRefresh, RefreshJob{ReportJobID: row.ID})))

	got, err := guard.GetReportJob(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ReportJobStatusCompleted, got.Status)
	assert.False(t, got.DataFreshness.IsZero())
	assert.False(t, got.CompletedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())

	// Replaying the finished job touches nothing.
	require.NoError(t, handler(ctx, reportingEnvelope(t, JobKindRefresh, RefreshJob{ReportJobID: row.ID})))
}

func TestRefreshHandlerTransientDBErrorLeavesRowRunning(t *testing.T) {
	svc, guard, _, ctx := testService(t)
	agg, mock := mockStore(t)

	at := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, guard.CreateOrder(ctx, &types.Order{
		ID: "o1", CartID: "c1", GrandTotalCents: 100,
		Status: types.OrderStatusCompleted, Version: 1, CreatedAt: at, UpdatedAt: at,
	}))

	row, err := svc.RequestRefresh(ctx, AggregateSalesDaily, at.Truncate(24*time.Hour), at.AddDate(0, 0, 1))
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO sales_daily").WillReturnError(assert.AnError)

	handler := NewRefreshHandler(guard, agg)
	err = handler(ctx, reportingEnvelope(t, JobKindRefresh, RefreshJob{ReportJobID: row.ID}))
	require.Error(t, err)

	got, err := guard.GetReportJob(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ReportJobStatusRunning, got.Status, "retry policy owns transient failures")
}

func TestExportHandlerUploadsCSV(t *testing.T) {
	svc, guard, _, ctx := testService(t)
	agg, mock := mockStore(t)

	obj, err := objstore.NewLocal(t.TempDir(), "http://objects.local")
	require.NoError(t, err)

	row, err := svc.RequestExport(ctx, AggregateSalesDaily, "csv", map[string]string{
		"period_start": "2026-08-01",
		"period_end":   "2026-08-05",
	})
	require.NoError(t, err)

	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	fresh := time.Date(2026, 8, 6, 3, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT tenant_id, day, order_count, gross_cents").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "day", "order_count", "gross_cents", "data_freshness_timestamp"}).
			AddRow("t1", day, int64(2), int64(5400), fresh).
			AddRow("t1", day.AddDate(0, 0, 1), int64(1), int64(1900), fresh))
	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(fresh))

	handler := NewExportHandler(guard, agg, obj, config.ReportingConfig{ExportWorkers: 2})
	require.NoError(t, handler(ctx, reportingEnvelope(t, JobKindExport, ExportJob{ReportJobID: row.ID})))

	got, err := guard.GetReportJob(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ReportJobStatusCompleted, got.Status)
	assert.Equal(t, ExportKey("t1", row.ID, AggregateSalesDaily), got.ResultKey)
	assert.NotEmpty(t, got.DownloadURL)
	assert.Equal(t, fresh, got.DataFreshness.UTC())

	rc, err := obj.Download(ctx, got.ResultKey)
	require.NoError(t, err)
	defer rc.Close()
	records, err := csv.NewReader(rc).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"day", "order_count", "gross_cents", "data_freshness_timestamp"}, records[0])
	assert.Equal(t, "2026-08-01", records[1][0])
	assert.Equal(t, "5400", records[1][2])
}

func TestExportHandlerBadPeriodFailsRow(t *testing.T) {
	svc, guard, _, ctx := testService(t)
	agg, _ := mockStore(t)
	obj, err := objstore.NewLocal(t.TempDir(), "http://objects.local")
	require.NoError(t, err)

	row, err := svc.RequestExport(ctx, AggregateSalesDaily, "csv", nil)
	require.NoError(t, err)

	// Corrupt the persisted params so the handler hits the decode guard.
	row.Params[paramPeriodStart] = "garbage"
	require.NoError(t, guard.UpdateReportJob(ctx, row))

	handler := NewExportHandler(guard, agg, obj, config.ReportingConfig{ExportWorkers: 2})
	err = handler(ctx, reportingEnvelope(t, JobKindExport, ExportJob{ReportJobID: row.ID}))
	require.Error(t, err)

	got, err := guard.GetReportJob(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ReportJobStatusFailed, got.Status)
	assert.NotEmpty(t, got.Error)
}
