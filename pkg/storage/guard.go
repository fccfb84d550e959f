package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/log"
	"github.com/cuemby/agora/pkg/metrics"
	"github.com/cuemby/agora/pkg/tenant"
	"github.com/cuemby/agora/pkg/types"
)

// Guard is the only persistence path domain services are handed. Every call
// derives the tenant from the context binding: no method accepts a tenant id
// parameter, so "forgot the tenant filter" is unrepresentable. Writes stamp
// the bound tenant onto the row and reject rows pre-stamped for anyone else;
// reads re-check ownership after load and elide foreign rows as not-found.
//
// Platform surfaces (admin API, reconciler, DLQ tooling) intentionally hold
// the raw BoltStore instead: their work is cross-tenant by nature.
type Guard struct {
	store  *BoltStore
	logger zerolog.Logger
}

// NewGuard wraps a BoltStore in tenant scoping.
func NewGuard(store *BoltStore) *Guard {
	return &Guard{store: store, logger: log.WithComponent("storage.guard")}
}

// Store exposes the underlying BoltStore for platform-scoped wiring.
func (g *Guard) Store() *BoltStore {
	return g.store
}

// scope returns the bound tenant id or ErrNoContext.
func (g *Guard) scope(ctx context.Context) (string, error) {
	b, err := tenant.Current(ctx)
	if err != nil {
		return "", err
	}
	return b.Tenant.ID, nil
}

// stamp fills an empty row tenant with the bound tenant, and rejects a row
// already stamped for a different one. The mismatch is an invariant breach,
// not a user error; it is logged and counted before being returned.
func (g *Guard) stamp(ctx context.Context, op string, rowTenant *string) error {
	bound, err := g.scope(ctx)
	if err != nil {
		return err
	}
	if *rowTenant == "" {
		*rowTenant = bound
		return nil
	}
	if *rowTenant != bound {
		metrics.TenantMismatches.WithLabelValues(op).Inc()
		g.logger.Error().
			Str("op", op).
			Str("bound_tenant", bound).
			Str("row_tenant", *rowTenant).
			Msg("cross-tenant write rejected")
		return fmt.Errorf("%s: row stamped for %s, context bound to %s: %w", op, *rowTenant, bound, errdefs.ErrTenantMismatch)
	}
	return nil
}

// elide hides a loaded row that does not belong to the bound tenant. The
// caller sees plain not-found; the breach is visible only in logs and
// metrics. Scoped keys make this unreachable unless a row was stamped
// inconsistently with its key, which is exactly what we want to catch.
func (g *Guard) elide(op, bound, rowTenant, resource string) error {
	metrics.CrossTenantRowsElided.Inc()
	g.logger.Error().
		Str("op", op).
		Str("bound_tenant", bound).
		Str("row_tenant", rowTenant).
		Msg("cross-tenant row elided from read")
	return errdefs.NotFoundf("%s", resource)
}

// Tenant re-reads the bound tenant's row, giving current quota counters
// rather than the snapshot taken at resolution time.
func (g *Guard) Tenant(ctx context.Context) (*types.Tenant, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	return g.store.GetTenant(bound)
}

// ChargeMediaQuota adjusts the bound tenant's media usage by delta bytes.
func (g *Guard) ChargeMediaQuota(ctx context.Context, delta int64) (*types.Tenant, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	return g.store.ChargeMediaQuota(bound, delta)
}

// ListFeatureFlags returns the bound tenant's flags.
func (g *Guard) ListFeatureFlags(ctx context.Context) ([]*types.FeatureFlag, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	return g.store.ListFeatureFlags(bound)
}

// Product operations

func (g *Guard) CreateProduct(ctx context.Context, p *types.Product) error {
	if err := g.stamp(ctx, "product.create", &p.TenantID); err != nil {
		return err
	}
	return g.store.CreateProduct(p)
}

func (g *Guard) GetProduct(ctx context.Context, id string) (*types.Product, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	p, err := g.store.GetProduct(bound, id)
	if err != nil {
		return nil, err
	}
	if p.TenantID != bound {
		return nil, g.elide("product.get", bound, p.TenantID, "product "+id)
	}
	return p, nil
}

func (g *Guard) GetProductBySKU(ctx context.Context, sku string) (*types.Product, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	p, err := g.store.GetProductBySKU(bound, sku)
	if err != nil {
		return nil, err
	}
	if p.TenantID != bound {
		return nil, g.elide("product.get_by_sku", bound, p.TenantID, "sku "+sku)
	}
	return p, nil
}

func (g *Guard) ListProducts(ctx context.Context) ([]*types.Product, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	all, err := g.store.ListProducts(bound)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, p := range all {
		if p.TenantID != bound {
			metrics.CrossTenantRowsElided.Inc()
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (g *Guard) UpdateProduct(ctx context.Context, p *types.Product) error {
	if err := g.stamp(ctx, "product.update", &p.TenantID); err != nil {
		return err
	}
	return g.store.UpdateProduct(p)
}

func (g *Guard) DeleteProduct(ctx context.Context, id string) error {
	bound, err := g.scope(ctx)
	if err != nil {
		return err
	}
	return g.store.DeleteProduct(bound, id)
}

// Variant operations

func (g *Guard) CreateVariant(ctx context.Context, v *types.Variant) error {
	if err := g.stamp(ctx, "variant.create", &v.TenantID); err != nil {
		return err
	}
	return g.store.CreateVariant(v)
}

func (g *Guard) GetVariant(ctx context.Context, id string) (*types.Variant, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	v, err := g.store.GetVariant(bound, id)
	if err != nil {
		return nil, err
	}
	if v.TenantID != bound {
		return nil, g.elide("variant.get", bound, v.TenantID, "variant "+id)
	}
	return v, nil
}

func (g *Guard) ListVariantsByProduct(ctx context.Context, productID string) ([]*types.Variant, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	return g.store.ListVariantsByProduct(bound, productID)
}

// Location operations

func (g *Guard) CreateLocation(ctx context.Context, l *types.Location) error {
	if err := g.stamp(ctx, "location.create", &l.TenantID); err != nil {
		return err
	}
	return g.store.CreateLocation(l)
}

func (g *Guard) GetLocation(ctx context.Context, id string) (*types.Location, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	l, err := g.store.GetLocation(bound, id)
	if err != nil {
		return nil, err
	}
	if l.TenantID != bound {
		return nil, g.elide("location.get", bound, l.TenantID, "location "+id)
	}
	return l, nil
}

func (g *Guard) ListLocations(ctx context.Context) ([]*types.Location, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	return g.store.ListLocations(bound)
}

// Stock level operations

func (g *Guard) GetStockLevel(ctx context.Context, variantID, locationID string) (*types.StockLevel, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	return g.store.GetStockLevel(bound, variantID, locationID)
}

// MutateStockLevel runs fn against the current level in one transaction.
func (g *Guard) MutateStockLevel(ctx context.Context, variantID, locationID string, fn func(*types.StockLevel) error) (*types.StockLevel, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	return g.store.MutateStockLevel(bound, variantID, locationID, fn)
}

func (g *Guard) ListStockLevels(ctx context.Context) ([]*types.StockLevel, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	return g.store.ListStockLevels(bound)
}

func (g *Guard) ListStockLevelsByVariant(ctx context.Context, variantID string) ([]*types.StockLevel, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	return g.store.ListStockLevelsByVariant(bound, variantID)
}

// Reservation operations

func (g *Guard) CreateReservation(ctx context.Context, r *types.Reservation) error {
	if err := g.stamp(ctx, "reservation.create", &r.TenantID); err != nil {
		return err
	}
	return g.store.CreateReservation(r)
}

func (g *Guard) GetReservation(ctx context.Context, id string) (*types.Reservation, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	r, err := g.store.GetReservation(bound, id)
	if err != nil {
		return nil, err
	}
	if r.TenantID != bound {
		return nil, g.elide("reservation.get", bound, r.TenantID, "reservation "+id)
	}
	return r, nil
}

func (g *Guard) UpdateReservation(ctx context.Context, r *types.Reservation) error {
	if err := g.stamp(ctx, "reservation.update", &r.TenantID); err != nil {
		return err
	}
	return g.store.UpdateReservation(r)
}

func (g *Guard) ListReservationsByRef(ctx context.Context, ref string) ([]*types.Reservation, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	return g.store.ListReservationsByRef(bound, ref)
}

// Transfer operations

func (g *Guard) CreateTransfer(ctx context.Context, t *types.Transfer) error {
	if err := g.stamp(ctx, "transfer.create", &t.TenantID); err != nil {
		return err
	}
	return g.store.CreateTransfer(t)
}

func (g *Guard) GetTransfer(ctx context.Context, id string) (*types.Transfer, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	t, err := g.store.GetTransfer(bound, id)
	if err != nil {
		return nil, err
	}
	if t.TenantID != bound {
		return nil, g.elide("transfer.get", bound, t.TenantID, "transfer "+id)
	}
	return t, nil
}

func (g *Guard) UpdateTransfer(ctx context.Context, t *types.Transfer) error {
	if err := g.stamp(ctx, "transfer.update", &t.TenantID); err != nil {
		return err
	}
	return g.store.UpdateTransfer(t)
}

func (g *Guard) ListTransfers(ctx context.Context) ([]*types.Transfer, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	return g.store.ListTransfers(bound)
}

// Stock adjustment operations

func (g *Guard) AppendStockAdjustment(ctx context.Context, a *types.StockAdjustment) error {
	if err := g.stamp(ctx, "adjustment.append", &a.TenantID); err != nil {
		return err
	}
	return g.store.AppendStockAdjustment(a)
}

func (g *Guard) ListStockAdjustments(ctx context.Context) ([]*types.StockAdjustment, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	return g.store.ListStockAdjustments(bound)
}

// Cart operations

func (g *Guard) CreateCart(ctx context.Context, c *types.Cart) error {
	if err := g.stamp(ctx, "cart.create", &c.TenantID); err != nil {
		return err
	}
	return g.store.CreateCart(c)
}

func (g *Guard) GetCart(ctx context.Context, id string) (*types.Cart, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	c, err := g.store.GetCart(bound, id)
	if err != nil {
		return nil, err
	}
	if c.TenantID != bound {
		return nil, g.elide("cart.get", bound, c.TenantID, "cart "+id)
	}
	return c, nil
}

func (g *Guard) GetCartByUser(ctx context.Context, userID string) (*types.Cart, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	return g.store.GetCartByUser(bound, userID)
}

func (g *Guard) GetCartBySession(ctx context.Context, sessionID string) (*types.Cart, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	return g.store.GetCartBySession(bound, sessionID)
}

func (g *Guard) UpdateCart(ctx context.Context, c *types.Cart) error {
	if err := g.stamp(ctx, "cart.update", &c.TenantID); err != nil {
		return err
	}
	return g.store.UpdateCart(c)
}

// Order operations

func (g *Guard) CreateOrder(ctx context.Context, o *types.Order) error {
	if err := g.stamp(ctx, "order.create", &o.TenantID); err != nil {
		return err
	}
	return g.store.CreateOrder(o)
}

func (g *Guard) GetOrder(ctx context.Context, id string) (*types.Order, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	o, err := g.store.GetOrder(bound, id)
	if err != nil {
		return nil, err
	}
	if o.TenantID != bound {
		return nil, g.elide("order.get", bound, o.TenantID, "order "+id)
	}
	return o, nil
}

func (g *Guard) UpdateOrder(ctx context.Context, o *types.Order) error {
	if err := g.stamp(ctx, "order.update", &o.TenantID); err != nil {
		return err
	}
	return g.store.UpdateOrder(o)
}

func (g *Guard) ListOrders(ctx context.Context) ([]*types.Order, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	all, err := g.store.ListOrders(bound)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, o := range all {
		if o.TenantID != bound {
			metrics.CrossTenantRowsElided.Inc()
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// Tender operations

func (g *Guard) CreateTender(ctx context.Context, t *types.Tender) error {
	if err := g.stamp(ctx, "tender.create", &t.TenantID); err != nil {
		return err
	}
	return g.store.CreateTender(t)
}

func (g *Guard) UpdateTender(ctx context.Context, t *types.Tender) error {
	if err := g.stamp(ctx, "tender.update", &t.TenantID); err != nil {
		return err
	}
	return g.store.UpdateTender(t)
}

func (g *Guard) ListTendersByOrder(ctx context.Context, orderID string) ([]*types.Tender, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	return g.store.ListTendersByOrder(bound, orderID)
}

// Payment intent operations

func (g *Guard) CreatePaymentIntent(ctx context.Context, pi *types.PaymentIntent) error {
	if err := g.stamp(ctx, "payment_intent.create", &pi.TenantID); err != nil {
		return err
	}
	return g.store.CreatePaymentIntent(pi)
}

func (g *Guard) GetPaymentIntent(ctx context.Context, id string) (*types.PaymentIntent, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	return g.store.GetPaymentIntent(bound, id)
}

func (g *Guard) GetPaymentIntentByProviderRef(ctx context.Context, providerRef string) (*types.PaymentIntent, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	return g.store.GetPaymentIntentByProviderRef(bound, providerRef)
}

func (g *Guard) UpdatePaymentIntent(ctx context.Context, pi *types.PaymentIntent) error {
	if err := g.stamp(ctx, "payment_intent.update", &pi.TenantID); err != nil {
		return err
	}
	return g.store.UpdatePaymentIntent(pi)
}

// Gift card operations

func (g *Guard) CreateGiftCard(ctx context.Context, card *types.GiftCard) error {
	if err := g.stamp(ctx, "gift_card.create", &card.TenantID); err != nil {
		return err
	}
	return g.store.CreateGiftCard(card)
}

func (g *Guard) GetGiftCard(ctx context.Context, id string) (*types.GiftCard, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	card, err := g.store.GetGiftCard(bound, id)
	if err != nil {
		return nil, err
	}
	if card.TenantID != bound {
		return nil, g.elide("gift_card.get", bound, card.TenantID, "gift card "+id)
	}
	return card, nil
}

func (g *Guard) GetGiftCardByCode(ctx context.Context, code string) (*types.GiftCard, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	card, err := g.store.GetGiftCardByCode(bound, code)
	if err != nil {
		return nil, err
	}
	if card.TenantID != bound {
		return nil, g.elide("gift_card.get_by_code", bound, card.TenantID, "gift card code "+code)
	}
	return card, nil
}

func (g *Guard) UpdateGiftCard(ctx context.Context, card *types.GiftCard) error {
	if err := g.stamp(ctx, "gift_card.update", &card.TenantID); err != nil {
		return err
	}
	return g.store.UpdateGiftCard(card)
}

// Store credit operations

func (g *Guard) CreateStoreCredit(ctx context.Context, sc *types.StoreCredit) error {
	if err := g.stamp(ctx, "store_credit.create", &sc.TenantID); err != nil {
		return err
	}
	return g.store.CreateStoreCredit(sc)
}

func (g *Guard) GetStoreCredit(ctx context.Context, id string) (*types.StoreCredit, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	return g.store.GetStoreCredit(bound, id)
}

func (g *Guard) GetStoreCreditByAccount(ctx context.Context, accountID string) (*types.StoreCredit, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	return g.store.GetStoreCreditByAccount(bound, accountID)
}

func (g *Guard) UpdateStoreCredit(ctx context.Context, sc *types.StoreCredit) error {
	if err := g.stamp(ctx, "store_credit.update", &sc.TenantID); err != nil {
		return err
	}
	return g.store.UpdateStoreCredit(sc)
}

// Ledger operations

func (g *Guard) AppendLedgerEntry(ctx context.Context, e *types.LedgerEntry) error {
	if err := g.stamp(ctx, "ledger.append", &e.TenantID); err != nil {
		return err
	}
	return g.store.AppendLedgerEntry(e)
}

func (g *Guard) ListLedgerEntries(ctx context.Context, accountRef string) ([]*types.LedgerEntry, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	return g.store.ListLedgerEntries(bound, accountRef)
}

// Consignor operations

func (g *Guard) CreateConsignor(ctx context.Context, c *types.Consignor) error {
	if err := g.stamp(ctx, "consignor.create", &c.TenantID); err != nil {
		return err
	}
	return g.store.CreateConsignor(c)
}

func (g *Guard) GetConsignor(ctx context.Context, id string) (*types.Consignor, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	c, err := g.store.GetConsignor(bound, id)
	if err != nil {
		return nil, err
	}
	if c.TenantID != bound {
		return nil, g.elide("consignor.get", bound, c.TenantID, "consignor "+id)
	}
	return c, nil
}

func (g *Guard) UpdateConsignor(ctx context.Context, c *types.Consignor) error {
	if err := g.stamp(ctx, "consignor.update", &c.TenantID); err != nil {
		return err
	}
	return g.store.UpdateConsignor(c)
}

func (g *Guard) ListConsignors(ctx context.Context) ([]*types.Consignor, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	return g.store.ListConsignors(bound)
}

// Consignment item operations

func (g *Guard) CreateConsignmentItem(ctx context.Context, i *types.ConsignmentItem) error {
	if err := g.stamp(ctx, "consignment_item.create", &i.TenantID); err != nil {
		return err
	}
	return g.store.CreateConsignmentItem(i)
}

func (g *Guard) GetConsignmentItem(ctx context.Context, id string) (*types.ConsignmentItem, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	i, err := g.store.GetConsignmentItem(bound, id)
	if err != nil {
		return nil, err
	}
	if i.TenantID != bound {
		return nil, g.elide("consignment_item.get", bound, i.TenantID, "consignment item "+id)
	}
	return i, nil
}

func (g *Guard) UpdateConsignmentItem(ctx context.Context, i *types.ConsignmentItem) error {
	if err := g.stamp(ctx, "consignment_item.update", &i.TenantID); err != nil {
		return err
	}
	return g.store.UpdateConsignmentItem(i)
}

func (g *Guard) ListConsignmentItems(ctx context.Context) ([]*types.ConsignmentItem, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	return g.store.ListConsignmentItems(bound)
}

func (g *Guard) ListConsignmentItemsByConsignor(ctx context.Context, consignorID string) ([]*types.ConsignmentItem, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	return g.store.ListConsignmentItemsByConsignor(bound, consignorID)
}

// Payout batch operations

func (g *Guard) CreatePayoutBatch(ctx context.Context, b *types.PayoutBatch) error {
	if err := g.stamp(ctx, "payout_batch.create", &b.TenantID); err != nil {
		return err
	}
	return g.store.CreatePayoutBatch(b)
}

func (g *Guard) GetPayoutBatch(ctx context.Context, id string) (*types.PayoutBatch, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	b, err := g.store.GetPayoutBatch(bound, id)
	if err != nil {
		return nil, err
	}
	if b.TenantID != bound {
		return nil, g.elide("payout_batch.get", bound, b.TenantID, "payout batch "+id)
	}
	return b, nil
}

func (g *Guard) UpdatePayoutBatch(ctx context.Context, b *types.PayoutBatch) error {
	if err := g.stamp(ctx, "payout_batch.update", &b.TenantID); err != nil {
		return err
	}
	return g.store.UpdatePayoutBatch(b)
}

func (g *Guard) ListPayoutBatches(ctx context.Context) ([]*types.PayoutBatch, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	return g.store.ListPayoutBatches(bound)
}

// Media asset operations

func (g *Guard) CreateMediaAsset(ctx context.Context, a *types.MediaAsset) error {
	if err := g.stamp(ctx, "media_asset.create", &a.TenantID); err != nil {
		return err
	}
	return g.store.CreateMediaAsset(a)
}

func (g *Guard) GetMediaAsset(ctx context.Context, id string) (*types.MediaAsset, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	a, err := g.store.GetMediaAsset(bound, id)
	if err != nil {
		return nil, err
	}
	if a.TenantID != bound {
		return nil, g.elide("media_asset.get", bound, a.TenantID, "media asset "+id)
	}
	return a, nil
}

func (g *Guard) UpdateMediaAsset(ctx context.Context, a *types.MediaAsset) error {
	if err := g.stamp(ctx, "media_asset.update", &a.TenantID); err != nil {
		return err
	}
	return g.store.UpdateMediaAsset(a)
}

func (g *Guard) ListMediaAssets(ctx context.Context) ([]*types.MediaAsset, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	return g.store.ListMediaAssets(bound)
}

func (g *Guard) AppendMediaAccess(ctx context.Context, a *types.MediaAccess) error {
	if err := g.stamp(ctx, "media_access.append", &a.TenantID); err != nil {
		return err
	}
	return g.store.AppendMediaAccess(a)
}

// Report job operations

func (g *Guard) CreateReportJob(ctx context.Context, j *types.ReportJob) error {
	if err := g.stamp(ctx, "report_job.create", &j.TenantID); err != nil {
		return err
	}
	return g.store.CreateReportJob(j)
}

func (g *Guard) GetReportJob(ctx context.Context, id string) (*types.ReportJob, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	j, err := g.store.GetReportJob(bound, id)
	if err != nil {
		return nil, err
	}
	if j.TenantID != bound {
		return nil, g.elide("report_job.get", bound, j.TenantID, "report job "+id)
	}
	return j, nil
}

func (g *Guard) UpdateReportJob(ctx context.Context, j *types.ReportJob) error {
	if err := g.stamp(ctx, "report_job.update", &j.TenantID); err != nil {
		return err
	}
	return g.store.UpdateReportJob(j)
}

func (g *Guard) ListReportJobs(ctx context.Context) ([]*types.ReportJob, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	return g.store.ListReportJobs(bound)
}

// Idempotency operations

func (g *Guard) PutIdempotencyRecord(ctx context.Context, rec *types.IdempotencyRecord) error {
	if err := g.stamp(ctx, "idempotency.put", &rec.TenantID); err != nil {
		return err
	}
	return g.store.PutIdempotencyRecord(rec)
}

func (g *Guard) GetIdempotencyRecord(ctx context.Context, key string) (*types.IdempotencyRecord, error) {
	bound, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	return g.store.GetIdempotencyRecord(bound, key)
}
