package consignment

import (
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/jobs"
	"github.com/cuemby/agora/pkg/objstore"
	"github.com/cuemby/agora/pkg/storage"
	"github.com/cuemby/agora/pkg/tenant"
	"github.com/cuemby/agora/pkg/types"
)

func testService(t *testing.T) (*Service, *storage.Guard, *jobs.Queue) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	guard := storage.NewGuard(store)
	q := jobs.NewQueue(nil)
	return NewService(guard, q, nil), guard, q
}

func conCtx(t *testing.T, tenantID string) context.Context {
	t.Helper()
	ctx, err := tenant.Bind(context.Background(), &tenant.Binding{
		Tenant: &types.Tenant{ID: tenantID, Subdomain: tenantID, Status: types.TenantStatusActive},
		Actor:  "test",
	})
	require.NoError(t, err)
	return ctx
}

func seedOrder(t *testing.T, guard *storage.Guard, ctx context.Context, id string, status types.OrderStatus) {
	t.Helper()
	require.NoError(t, guard.CreateOrder(ctx, &types.Order{
		ID: id, CartID: "cart-" + id, GrandTotalCents: 10000,
		Status: status, Version: 1,
	}))
}

func TestParseRate(t *testing.T) {
	cases := []struct {
		in   string
		want types.Rate
	}{
		{"15.126", 1513},
		{"15.124", 1512},
		{"15.125", 1513},
		{"15.1249999", 1512},
		{"100.00", 10000},
		{"100", 10000},
		{"0", 0},
		{"0.005", 1},
		{".5", 50},
		{"+20.5", 2050},
		{"100.000", 10000},
	}
	for _, tc := range cases {
		got, err := ParseRate(tc.in)
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}

	for _, bad := range []string{"100.01", "100.001", "-1", "101", "", ".", "abc", "12.3x"} {
		_, err := ParseRate(bad)
		assert.True(t, errdefs.IsValidation(err), "input %q must be rejected, got %v", bad, err)
	}
}

func TestPayoutCents(t *testing.T) {
	// 20% commission on $100.00 leaves the consignor $80.00.
	assert.Equal(t, int64(8000), payoutCents(10000, 2000))
	// 15.13% of 9999 → consignor share rounds HALF_UP to the cent.
	assert.Equal(t, int64(8486), payoutCents(9999, 1513))
	assert.Equal(t, int64(0), payoutCents(100, 10000), "100%% commission pays nothing")
	assert.Equal(t, int64(100), payoutCents(100, 0), "0%% commission pays everything")
}

func TestConsignorLifecycle(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := conCtx(t, "t1")

	c, err := svc.CreateConsignor(ctx, ConsignorInput{
		Name: "June Vintage", Email: "june@example.com", CommissionRate: "15.126",
	})
	require.NoError(t, err)
	assert.Equal(t, types.Rate(1513), c.CommissionRate)
	assert.True(t, c.Active)

	_, err = svc.CreateConsignor(ctx, ConsignorInput{Name: "", Email: "x@example.com", CommissionRate: "10"})
	assert.True(t, errdefs.IsValidation(err))
	_, err = svc.CreateConsignor(ctx, ConsignorInput{Name: "X", Email: "not-an-email", CommissionRate: "10"})
	assert.True(t, errdefs.IsValidation(err))
	_, err = svc.CreateConsignor(ctx, ConsignorInput{Name: "X", Email: "x@example.com", CommissionRate: "100.01"})
	assert.True(t, errdefs.IsValidation(err))

	got, err := svc.UpdateConsignor(ctx, c.ID, ConsignorInput{CommissionRate: "20"}, false)
	require.NoError(t, err)
	assert.Equal(t, types.Rate(2000), got.CommissionRate)
	assert.False(t, got.Active)

	_, err = svc.IntakeItem(ctx, IntakeInput{ConsignorID: c.ID, Description: "Leather jacket"})
	assert.True(t, errdefs.IsValidation(err), "inactive consignors cannot intake")
}

func TestIntakeInheritsConsignorRate(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := conCtx(t, "t1")

	c, err := svc.CreateConsignor(ctx, ConsignorInput{Name: "June", Email: "june@example.com", CommissionRate: "25"})
	require.NoError(t, err)

	item, err := svc.IntakeItem(ctx, IntakeInput{ConsignorID: c.ID, Description: "Denim jacket"})
	require.NoError(t, err)
	assert.Equal(t, types.Rate(2500), item.CommissionRate)
	assert.Equal(t, types.ConsignmentItemStatusIntake, item.Status)

	item, err = svc.IntakeItem(ctx, IntakeInput{ConsignorID: c.ID, Description: "Boots", CommissionRate: "30.005"})
	require.NoError(t, err)
	assert.Equal(t, types.Rate(3001), item.CommissionRate, "per-item rate overrides")
}

func TestItemStatusTransitions(t *testing.T) {
	svc, guard, _ := testService(t)
	ctx := conCtx(t, "t1")

	c, err := svc.CreateConsignor(ctx, ConsignorInput{Name: "June", Email: "june@example.com", CommissionRate: "20"})
	require.NoError(t, err)
	item, err := svc.IntakeItem(ctx, IntakeInput{ConsignorID: c.ID, Description: "Jacket"})
	require.NoError(t, err)

	seedOrder(t, guard, ctx, "order-1", types.OrderStatusCompleted)

	_, err = svc.MarkSold(ctx, item.ID, "order-1", 5000)
	assert.True(t, errdefs.IsConflict(err), "intake items cannot sell before listing")

	item, err = svc.MarkListed(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ConsignmentItemStatusListed, item.Status)

	_, err = svc.MarkListed(ctx, item.ID)
	assert.True(t, errdefs.IsConflict(err))

	item, err = svc.MarkSold(ctx, item.ID, "order-1", 5000)
	require.NoError(t, err)
	assert.Equal(t, types.ConsignmentItemStatusSold, item.Status)
	assert.Equal(t, "order-1", item.SoldOrderID)
	assert.Equal(t, int64(5000), item.SalePriceCents)
	assert.False(t, item.SoldAt.IsZero())

	_, err = svc.MarkSold(ctx, item.ID, "missing-order", 5000)
	assert.Error(t, err)
}

func TestCreatePayoutBatch(t *testing.T) {
	svc, guard, q := testService(t)
	ctx := conCtx(t, "t1")

	c, err := svc.CreateConsignor(ctx, ConsignorInput{Name: "June", Email: "june@example.com", CommissionRate: "20"})
	require.NoError(t, err)

	seedOrder(t, guard, ctx, "order-done", types.OrderStatusCompleted)
	seedOrder(t, guard, ctx, "order-pending", types.OrderStatusPending)

	sell := func(desc, orderID string, cents int64) *types.ConsignmentItem {
		item, err := svc.IntakeItem(ctx, IntakeInput{ConsignorID: c.ID, Description: desc})
		require.NoError(t, err)
		_, err = svc.MarkListed(ctx, item.ID)
		require.NoError(t, err)
		item, err = svc.MarkSold(ctx, item.ID, orderID, cents)
		require.NoError(t, err)
		return item
	}

	paid := sell("Jacket", "order-done", 10000)
	unsettled := sell("Boots", "order-pending", 4000)

	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)

	batch, err := svc.CreatePayoutBatch(ctx, c.ID, start, end)
	require.NoError(t, err)
	assert.Equal(t, types.PayoutBatchStatusPending, batch.Status)
	assert.Equal(t, []string{paid.ID}, batch.ItemIDs, "items on uncommitted orders stay out")
	assert.Equal(t, int64(8000), batch.TotalCents, "20%% commission on $100 sale")

	got, err := svc.GetItem(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, batch.ID, got.PayoutBatchID)

	got, err = svc.GetItem(ctx, unsettled.ID)
	require.NoError(t, err)
	assert.Empty(t, got.PayoutBatchID)

	// Statement job landed on the low lane.
	item, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, JobKindPayoutStatement, item.Kind)
	assert.Equal(t, jobs.PriorityLow, item.Priority)

	// Already-batched items are not paid twice.
	_, err = svc.CreatePayoutBatch(ctx, c.ID, start, end)
	assert.True(t, errdefs.IsNotFound(err), "no payable items remain")

	_, err = svc.CreatePayoutBatch(ctx, c.ID, end, start)
	assert.True(t, errdefs.IsValidation(err))
}

func TestCompletePayout(t *testing.T) {
	svc, guard, _ := testService(t)
	ctx := conCtx(t, "t1")

	c, err := svc.CreateConsignor(ctx, ConsignorInput{Name: "June", Email: "june@example.com", CommissionRate: "50"})
	require.NoError(t, err)
	seedOrder(t, guard, ctx, "order-1", types.OrderStatusCompleted)

	item, err := svc.IntakeItem(ctx, IntakeInput{ConsignorID: c.ID, Description: "Jacket"})
	require.NoError(t, err)
	_, err = svc.MarkListed(ctx, item.ID)
	require.NoError(t, err)
	_, err = svc.MarkSold(ctx, item.ID, "order-1", 2000)
	require.NoError(t, err)

	batch, err := svc.CreatePayoutBatch(ctx, c.ID, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)

	done, err := svc.CompletePayout(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PayoutBatchStatusCompleted, done.Status)
	assert.False(t, done.CompletedAt.IsZero())

	got, err := svc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ConsignmentItemStatusPaid, got.Status)

	_, err = svc.CompletePayout(ctx, batch.ID)
	assert.True(t, errdefs.IsConflict(err))
}

func TestStatementHandlerWritesCSV(t *testing.T) {
	svc, guard, _ := testService(t)
	ctx := conCtx(t, "t1")

	c, err := svc.CreateConsignor(ctx, ConsignorInput{Name: "June", Email: "june@example.com", CommissionRate: "20"})
	require.NoError(t, err)
	seedOrder(t, guard, ctx, "order-1", types.OrderStatusCompleted)

	item, err := svc.IntakeItem(ctx, IntakeInput{ConsignorID: c.ID, Description: "Jacket"})
	require.NoError(t, err)
	_, err = svc.MarkListed(ctx, item.ID)
	require.NoError(t, err)
	_, err = svc.MarkSold(ctx, item.ID, "order-1", 10000)
	require.NoError(t, err)

	batch, err := svc.CreatePayoutBatch(ctx, c.ID, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)

	store, err := objstore.NewLocal(t.TempDir(), "http://objects.local")
	require.NoError(t, err)

	handler := NewStatementHandler(guard, store)
	env, _, err := jobs.NewEnvelope("t1", JobKindPayoutStatement, StatementJob{BatchID: batch.ID})
	require.NoError(t, err)
	require.NoError(t, handler(ctx, env))

	rc, err := store.Download(ctx, StatementKey("t1", batch.ID))
	require.NoError(t, err)
	defer rc.Close()

	rows, err := csv.NewReader(rc).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"item_id", "description", "sold_at", "sale_cents", "commission_pct", "payout_cents"}, rows[0])
	assert.Equal(t, item.ID, rows[1][0])
	assert.Equal(t, "10000", rows[1][3])
	assert.Equal(t, "20.00", rows[1][4])
	assert.Equal(t, "8000", rows[1][5])
}
