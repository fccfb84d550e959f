package storage

import (
	"fmt"
	"strings"
	"time"
)

// Bucket names. Every tenant-owned bucket keys rows with a tenant-scoped
// composite key so one cursor prefix covers exactly one tenant's data.
var (
	bucketTenants          = []byte("tenants")
	bucketSubdomains       = []byte("tenant_subdomains") // subdomain -> tenant id
	bucketDomains          = []byte("tenant_domains")    // custom domain -> tenant id
	bucketFlags            = []byte("feature_flags")
	bucketProducts         = []byte("products")
	bucketProductSKUs      = []byte("product_skus") // tenant/sku -> product id
	bucketVariants         = []byte("variants")
	bucketLocations        = []byte("locations")
	bucketStockLevels      = []byte("stock_levels")
	bucketReservations     = []byte("reservations")
	bucketTransfers        = []byte("transfers")
	bucketAdjustments      = []byte("stock_adjustments")
	bucketCarts            = []byte("carts")
	bucketCartOwners       = []byte("cart_owners") // tenant/user|session/ref -> cart id
	bucketOrders           = []byte("orders")
	bucketTenders          = []byte("tenders")
	bucketPaymentIntents   = []byte("payment_intents")
	bucketIntentRefs       = []byte("payment_intent_refs") // tenant/provider ref -> intent id
	bucketGiftCards        = []byte("gift_cards")
	bucketGiftCardCodes    = []byte("gift_card_codes") // tenant/code -> gift card id
	bucketStoreCredits     = []byte("store_credits")
	bucketLedger           = []byte("ledger")
	bucketConsignors       = []byte("consignors")
	bucketConsignmentItems = []byte("consignment_items")
	bucketPayoutBatches    = []byte("payout_batches")
	bucketMediaAssets      = []byte("media_assets")
	bucketMediaAccess      = []byte("media_access")
	bucketReportJobs       = []byte("report_jobs")
	bucketDLQ              = []byte("dlq")
	bucketIdempotency      = []byte("idempotency")
	bucketWebhookEvents    = []byte("webhook_events")
	bucketAudit            = []byte("audit")
	bucketImpersonation    = []byte("impersonation_tokens")
	bucketPaymentCreds     = []byte("payment_credentials")
)

// allBuckets is the creation list; Open fails rather than lazily creating
// buckets so a typo surfaces at startup, not mid-request.
var allBuckets = [][]byte{
	bucketTenants, bucketSubdomains, bucketDomains, bucketFlags,
	bucketProducts, bucketProductSKUs, bucketVariants, bucketLocations,
	bucketStockLevels, bucketReservations, bucketTransfers, bucketAdjustments,
	bucketCarts, bucketCartOwners, bucketOrders, bucketTenders,
	bucketPaymentIntents, bucketIntentRefs, bucketGiftCards, bucketGiftCardCodes,
	bucketStoreCredits, bucketLedger, bucketConsignors, bucketConsignmentItems,
	bucketPayoutBatches, bucketMediaAssets, bucketMediaAccess, bucketReportJobs,
	bucketDLQ, bucketIdempotency, bucketWebhookEvents, bucketAudit,
	bucketImpersonation, bucketPaymentCreds,
}

// tenantScopedBuckets are cascaded on tenant delete.
var tenantScopedBuckets = [][]byte{
	bucketFlags, bucketProducts, bucketProductSKUs, bucketVariants,
	bucketLocations, bucketStockLevels, bucketReservations, bucketTransfers,
	bucketAdjustments, bucketCarts, bucketCartOwners, bucketOrders,
	bucketTenders, bucketPaymentIntents, bucketIntentRefs, bucketGiftCards,
	bucketGiftCardCodes, bucketStoreCredits, bucketLedger, bucketConsignors,
	bucketConsignmentItems, bucketPayoutBatches, bucketMediaAssets,
	bucketMediaAccess, bucketReportJobs, bucketIdempotency, bucketAudit,
}

// ScopedKey builds the tenant-scoped composite key every tenant-owned row
// is stored under. Exported for the migration tool.
func ScopedKey(tenantID, id string) string {
	return tenantID + "/" + id
}

// TenantKeyPrefix is the cursor prefix covering one tenant's rows in a
// tenant-scoped bucket.
func TenantKeyPrefix(tenantID string) string {
	return tenantID + "/"
}

// stockLevelKey identifies one (variant, location) level within a tenant.
func stockLevelKey(tenantID, variantID, locationID string) string {
	return tenantID + "/" + variantID + "/" + locationID
}

// ownerKey indexes the open cart for a user or session.
func ownerKey(tenantID, kind, ref string) string {
	return tenantID + "/" + kind + "/" + ref
}

// seqKey orders append-only rows (ledger, audit, access logs) by time while
// keeping the id in the key for uniqueness under identical timestamps.
func seqKey(prefix string, at time.Time, id string) string {
	return fmt.Sprintf("%s/%020d/%s", prefix, at.UTC().UnixNano(), id)
}

// SplitScopedKey splits a tenant-scoped key into tenant id and remainder.
// The tenant id is empty for legacy un-scoped keys; the migration tool
// uses that to find rows that still need rewriting.
func SplitScopedKey(key string) (tenantID, rest string) {
	i := strings.IndexByte(key, '/')
	if i < 0 {
		return "", key
	}
	return key[:i], key[i+1:]
}
