package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockStore(t *testing.T) (*AggregateStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAggregateStore(sqlx.NewDb(db, "sqlmock")), mock
}

func TestUpsertSalesDaily(t *testing.T) {
	store, mock := mockStore(t)

	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	fresh := time.Date(2026, 8, 2, 3, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO sales_daily").
		WithArgs("t1", day, int64(3), int64(12900), fresh).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpsertSalesDaily(context.Background(), []SalesDailyRow{
		{TenantID: "t1", Day: day, OrderCount: 3, GrossCents: 12900, DataFreshness: fresh},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSalesDailyErrorIsTransient(t *testing.T) {
	store, mock := mockStore(t)

	mock.ExpectExec("INSERT INTO sales_daily").
		WillReturnError(assert.AnError)

	err := store.UpsertSalesDaily(context.Background(), []SalesDailyRow{
		{TenantID: "t1", Day: time.Now(), DataFreshness: time.Now()},
	})
	require.Error(t, err)
}

func TestSalesDailySelect(t *testing.T) {
	store, mock := mockStore(t)

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 7, 0, 0, 0, 0, time.UTC)
	fresh := time.Date(2026, 8, 8, 3, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT tenant_id, day, order_count, gross_cents, data_freshness_timestamp").
		WithArgs("t1", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "day", "order_count", "gross_cents", "data_freshness_timestamp"}).
			AddRow("t1", from, int64(2), int64(5400), fresh).
			AddRow("t1", from.AddDate(0, 0, 1), int64(1), int64(1900), fresh))

	rows, err := store.SalesDaily(context.Background(), "t1", from, to)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[0].OrderCount)
	assert.Equal(t, int64(5400), rows[0].GrossCents)
	assert.Equal(t, fresh, rows[1].DataFreshness)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFreshness(t *testing.T) {
	store, mock := mockStore(t)

	fresh := time.Date(2026, 8, 8, 3, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(fresh))

	got, err := store.Freshness(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, fresh, got)

	// No aggregates yet: the epoch sentinel reads back as the zero time.
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("t2").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(time.Unix(0, 0).UTC()))

	got, err = store.Freshness(context.Background(), "t2")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
