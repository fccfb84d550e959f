package reporting

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/cuemby/agora/pkg/errdefs"
)

// Querier is the slice of sqlx the aggregate store needs. *sqlx.DB satisfies
// it; tests substitute a mocked connection.
type Querier interface {
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	PingContext(ctx context.Context) error
}

// Open connects to the reporting database.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect reporting db: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// SalesDailyRow is one tenant-day of completed order activity. Every row
// records when the aggregate was rebuilt.
type SalesDailyRow struct {
	TenantID      string    `db:"tenant_id" json:"tenant_id"`
	Day           time.Time `db:"day" json:"day"`
	OrderCount    int64     `db:"order_count" json:"order_count"`
	GrossCents    int64     `db:"gross_cents" json:"gross_cents"`
	DataFreshness time.Time `db:"data_freshness_timestamp" json:"data_freshness_timestamp"`
}

// AggregateStore is the Postgres read model behind reporting queries. Writes
// only happen from refresh jobs; the serving path is read-only.
type AggregateStore struct {
	db Querier
}

// NewAggregateStore wraps a reporting database handle.
func NewAggregateStore(db Querier) *AggregateStore {
	return &AggregateStore{db: db}
}

// Ping verifies the reporting database is reachable.
func (s *AggregateStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertSalesDaily replaces the aggregate rows produced by one refresh run.
func (s *AggregateStore) UpsertSalesDaily(ctx context.Context, rows []SalesDailyRow) error {
	const q = `
		INSERT INTO sales_daily (tenant_id, day, order_count, gross_cents, data_freshness_timestamp)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, day) DO UPDATE SET
			order_count = EXCLUDED.order_count,
			gross_cents = EXCLUDED.gross_cents,
			data_freshness_timestamp = EXCLUDED.data_freshness_timestamp`
	for _, r := range rows {
		if _, err := s.db.ExecContext(ctx, q, r.TenantID, r.Day, r.OrderCount, r.GrossCents, r.DataFreshness); err != nil {
			return errdefs.Transientf("upsert sales_daily %s/%s: %v", r.TenantID, r.Day.Format("2006-01-02"), err)
		}
	}
	return nil
}

// SalesDaily returns a tenant's rows for days in [from, to].
func (s *AggregateStore) SalesDaily(ctx context.Context, tenantID string, from, to time.Time) ([]SalesDailyRow, error) {
	const q = `
		SELECT tenant_id, day, order_count, gross_cents, data_freshness_timestamp
		FROM sales_daily
		WHERE tenant_id = $1 AND day >= $2 AND day <= $3
		ORDER BY day`
	var rows []SalesDailyRow
	if err := s.db.SelectContext(ctx, &rows, q, tenantID, from, to); err != nil {
		return nil, errdefs.Transientf("select sales_daily for %s: %v", tenantID, err)
	}
	return rows, nil
}

// Freshness returns the newest rebuild timestamp across a tenant's rows, or
// the zero time when nothing has been aggregated yet.
func (s *AggregateStore) Freshness(ctx context.Context, tenantID string) (time.Time, error) {
	const q = `SELECT COALESCE(MAX(data_freshness_timestamp), 'epoch'::timestamptz) FROM sales_daily WHERE tenant_id = $1`
	var ts time.Time
	if err := s.db.GetContext(ctx, &ts, q, tenantID); err != nil {
		return time.Time{}, errdefs.Transientf("freshness for %s: %v", tenantID, err)
	}
	if ts.Unix() == 0 {
		return time.Time{}, nil
	}
	return ts, nil
}
