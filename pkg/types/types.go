package types

import (
	"time"
)

// Tenant represents an isolated merchant account. A tenant owns every row
// written under its id; hostnames (subdomain and verified custom domains)
// are how inbound requests find it.
type Tenant struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Subdomain     string         `json:"subdomain"`
	CustomDomains []CustomDomain `json:"custom_domains,omitempty"`
	Status        TenantStatus   `json:"status"`
	Quotas        TenantQuotas   `json:"quotas"`
	Version       uint64         `json:"version"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// TenantStatus represents the lifecycle state of a tenant
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
	TenantStatusDeleted   TenantStatus = "deleted"
)

// CustomDomain is a merchant-owned hostname. Only verified domains resolve.
type CustomDomain struct {
	Domain     string    `json:"domain"`
	Verified   bool      `json:"verified"`
	VerifiedAt time.Time `json:"verified_at,omitempty"`
}

// TenantQuotas tracks per-tenant resource budgets and current usage.
type TenantQuotas struct {
	MediaStorageBytes int64 `json:"media_storage_bytes"`
	MediaUsedBytes    int64 `json:"media_used_bytes"`
}

// Remaining returns the unused media quota in bytes.
func (q TenantQuotas) Remaining() int64 {
	r := q.MediaStorageBytes - q.MediaUsedBytes
	if r < 0 {
		return 0
	}
	return r
}

// Product is a catalog entry. SKU uniqueness is per tenant.
type Product struct {
	ID          string        `json:"id"`
	TenantID    string        `json:"tenant_id"`
	SKU         string        `json:"sku"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	PriceCents  int64         `json:"price_cents"`
	Status      ProductStatus `json:"status"`
	Version     uint64        `json:"version"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// ProductStatus represents catalog visibility
type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"
	ProductStatusArchived ProductStatus = "archived"
)

// Variant is a sellable, stockable unit of a product.
type Variant struct {
	ID         string        `json:"id"`
	TenantID   string        `json:"tenant_id"`
	ProductID  string        `json:"product_id"`
	SKU        string        `json:"sku"`
	PriceCents int64         `json:"price_cents"`
	Status     VariantStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
}

// VariantStatus gates whether a variant can move through inventory
type VariantStatus string

const (
	VariantStatusActive       VariantStatus = "active"
	VariantStatusDiscontinued VariantStatus = "discontinued"
)

// Location is a stock-keeping site (warehouse, store).
type Location struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Active   bool   `json:"active"`
}

// StockLevel tracks on-hand and reserved quantities for one variant at one
// location. Identity is the (tenant, variant, location) triple.
type StockLevel struct {
	TenantID   string    `json:"tenant_id"`
	VariantID  string    `json:"variant_id"`
	LocationID string    `json:"location_id"`
	OnHand     int       `json:"on_hand"`
	Reserved   int       `json:"reserved"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Available returns stock that can still be promised.
func (s StockLevel) Available() int {
	return s.OnHand - s.Reserved
}

// Reservation is a hold on stock. Held reservations are later committed
// (stock leaves the source) or released (hold withdrawn).
type Reservation struct {
	ID         string            `json:"id"`
	TenantID   string            `json:"tenant_id"`
	VariantID  string            `json:"variant_id"`
	LocationID string            `json:"location_id"`
	Qty        int               `json:"qty"`
	Ref        string            `json:"ref"` // order or transfer id
	RefKind    string            `json:"ref_kind"`
	Status     ReservationStatus `json:"status"`
	ExpiresAt  time.Time         `json:"expires_at"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ReservationStatus represents the resolution state of a hold
type ReservationStatus string

const (
	ReservationStatusHeld      ReservationStatus = "held"
	ReservationStatusCommitted ReservationStatus = "committed"
	ReservationStatusReleased  ReservationStatus = "released"
)

// Transfer moves stock between two locations of the same tenant.
type Transfer struct {
	ID               string         `json:"id"`
	TenantID         string         `json:"tenant_id"`
	SourceLocationID string         `json:"source_location_id"`
	DestLocationID   string         `json:"dest_location_id"`
	Lines            []TransferLine `json:"lines"`
	Status           TransferStatus `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
	ReceivedAt       time.Time      `json:"received_at,omitempty"`
}

// TransferLine is one variant/quantity pair within a transfer.
type TransferLine struct {
	VariantID     string `json:"variant_id"`
	Qty           int    `json:"qty"`
	ReservationID string `json:"reservation_id,omitempty"`
}

// TransferStatus represents the transfer lifecycle
type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusReceived  TransferStatus = "received"
	TransferStatusCancelled TransferStatus = "cancelled"
)

// StockAdjustment is the audit row written for every manual level change.
type StockAdjustment struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	VariantID  string    `json:"variant_id"`
	LocationID string    `json:"location_id"`
	Delta      int       `json:"delta"`
	Reason     string    `json:"reason"`
	Actor      string    `json:"actor"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Cart is a mutable pre-order aggregate. Mutations are serialized by the
// optimistic Version counter; concurrent writers see a conflict.
type Cart struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	UserID    string     `json:"user_id,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
	Items     []CartItem `json:"items"`
	Status    CartStatus `json:"status"`
	Version   uint64     `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CartStatus represents the cart lifecycle
type CartStatus string

const (
	CartStatusOpen    CartStatus = "open"
	CartStatusOrdered CartStatus = "ordered"
)

// CartItem snapshots the unit price at the moment the line was added.
type CartItem struct {
	ID             string    `json:"id"`
	VariantID      string    `json:"variant_id"`
	SKU            string    `json:"sku"`
	Name           string    `json:"name"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	Qty            int       `json:"qty"`
	AddedAt        time.Time `json:"added_at"`
}

// Subtotal returns the cart's line total in cents.
func (c *Cart) Subtotal() int64 {
	var total int64
	for _, it := range c.Items {
		total += it.UnitPriceCents * int64(it.Qty)
	}
	return total
}

// Order is the finalized purchase the checkout saga produces.
type Order struct {
	ID              string      `json:"id"`
	TenantID        string      `json:"tenant_id"`
	CartID          string      `json:"cart_id"`
	GrandTotalCents int64       `json:"grand_total_cents"`
	Status          OrderStatus `json:"status"`
	FailureReason   string      `json:"failure_reason,omitempty"`
	LocationID      string      `json:"location_id"`
	Version         uint64      `json:"version"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// OrderStatus represents the order lifecycle
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
)

// Tender is one portion of an order's total paid via a single means.
type Tender struct {
	ID          string       `json:"id"`
	TenantID    string       `json:"tenant_id"`
	OrderID     string       `json:"order_id"`
	Kind        TenderKind   `json:"kind"`
	AmountCents int64        `json:"amount_cents"`
	SourceRef   string       `json:"source_ref"` // gift card id, store credit account id, intent ref
	Status      TenderStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
}

// TenderKind identifies the payment means
type TenderKind string

const (
	TenderKindGiftCard    TenderKind = "gift_card"
	TenderKindStoreCredit TenderKind = "store_credit"
	TenderKindCard        TenderKind = "card"
)

// TenderStatus represents the capture state of a tender
type TenderStatus string

const (
	TenderStatusPending  TenderStatus = "pending"
	TenderStatusCaptured TenderStatus = "captured"
	TenderStatusVoided   TenderStatus = "voided"
)

// PaymentIntent is the provider-side charge for the card residual.
type PaymentIntent struct {
	ID             string              `json:"id"`
	TenantID       string              `json:"tenant_id"`
	OrderID        string              `json:"order_id"`
	AmountCents    int64               `json:"amount_cents"`
	Currency       string              `json:"currency"`
	ProviderRef    string              `json:"provider_ref"`
	IdempotencyKey string              `json:"idempotency_key"`
	Status         PaymentIntentStatus `json:"status"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// PaymentIntentStatus represents the provider-side charge state
type PaymentIntentStatus string

const (
	PaymentIntentStatusPending   PaymentIntentStatus = "pending"
	PaymentIntentStatusSucceeded PaymentIntentStatus = "succeeded"
	PaymentIntentStatusFailed    PaymentIntentStatus = "failed"
)

// GiftCard carries a redeemable balance scoped to one tenant.
type GiftCard struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Code         string    `json:"code"`
	BalanceCents int64     `json:"balance_cents"`
	Version      uint64    `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
}

// StoreCredit is a customer account balance usable as tender.
type StoreCredit struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	AccountID    string    `json:"account_id"`
	BalanceCents int64     `json:"balance_cents"`
	Version      uint64    `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
}

// LedgerEntry records one balance movement on a gift card or store credit
// account. Compensations write the opposing entry rather than deleting.
type LedgerEntry struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	AccountRef string    `json:"account_ref"` // gift card id or store credit id
	Kind       string    `json:"kind"`        // gift_card | store_credit
	DeltaCents int64     `json:"delta_cents"`
	OrderID    string    `json:"order_id,omitempty"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

// Consignor is a third-party seller whose items a merchant lists.
type Consignor struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	CommissionRate Rate      `json:"commission_rate"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Rate is a percentage with scale 2, stored as hundredths of a percent
// (15.13% == 1513). Normalization applies HALF_UP rounding on intake.
type Rate int64

// Float returns the rate as a percentage value.
func (r Rate) Float() float64 { return float64(r) / 100 }

// ConsignmentItem is an intake row linking a consignor to a sellable item.
type ConsignmentItem struct {
	ID             string                `json:"id"`
	TenantID       string                `json:"tenant_id"`
	ConsignorID    string                `json:"consignor_id"`
	Description    string                `json:"description"`
	CommissionRate Rate                  `json:"commission_rate"`
	Status         ConsignmentItemStatus `json:"status"`
	SalePriceCents int64                 `json:"sale_price_cents,omitempty"`
	SoldOrderID    string                `json:"sold_order_id,omitempty"`
	SoldAt         time.Time             `json:"sold_at,omitempty"`
	PayoutBatchID  string                `json:"payout_batch_id,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
}

// ConsignmentItemStatus represents the consignment lifecycle
type ConsignmentItemStatus string

const (
	ConsignmentItemStatusIntake ConsignmentItemStatus = "intake"
	ConsignmentItemStatusListed ConsignmentItemStatus = "listed"
	ConsignmentItemStatusSold   ConsignmentItemStatus = "sold"
	ConsignmentItemStatusPaid   ConsignmentItemStatus = "paid"
)

// PayoutBatch aggregates a consignor's sold items over a period.
type PayoutBatch struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenant_id"`
	ConsignorID string            `json:"consignor_id"`
	PeriodStart time.Time         `json:"period_start"`
	PeriodEnd   time.Time         `json:"period_end"`
	ItemIDs     []string          `json:"item_ids"`
	TotalCents  int64             `json:"total_cents"`
	Status      PayoutBatchStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt time.Time         `json:"completed_at,omitempty"`
}

// PayoutBatchStatus represents payout processing state
type PayoutBatchStatus string

const (
	PayoutBatchStatusPending   PayoutBatchStatus = "pending"
	PayoutBatchStatusCompleted PayoutBatchStatus = "completed"
)

// MediaAsset is an uploaded original plus its processed derivatives.
type MediaAsset struct {
	ID            string           `json:"id"`
	TenantID      string           `json:"tenant_id"`
	AssetType     MediaAssetType   `json:"asset_type"`
	Filename      string           `json:"filename"`
	ContentType   string           `json:"content_type"`
	SizeBytes     int64            `json:"size_bytes"`
	StorageKey    string           `json:"storage_key"`
	Checksum      string           `json:"checksum,omitempty"`
	Status        MediaAssetStatus `json:"status"`
	QuotaCharged  bool             `json:"quota_charged"`
	DownloadCount int              `json:"download_count"`
	Derivatives   []Derivative     `json:"derivatives,omitempty"`
	Error         string           `json:"error,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// MediaAssetType constrains what the platform processes
type MediaAssetType string

const (
	MediaAssetTypeImage MediaAssetType = "image"
	MediaAssetTypeVideo MediaAssetType = "video"
)

// MediaAssetStatus represents the upload/processing lifecycle
type MediaAssetStatus string

const (
	MediaAssetStatusUploading  MediaAssetStatus = "uploading"
	MediaAssetStatusPending    MediaAssetStatus = "pending"
	MediaAssetStatusProcessing MediaAssetStatus = "processing"
	MediaAssetStatusReady      MediaAssetStatus = "ready"
	MediaAssetStatusFailed     MediaAssetStatus = "failed"
)

// Derivative is a transformed artifact produced from an original upload.
type Derivative struct {
	Type       string `json:"type"` // thumbnail, web, hls_720p, poster, ...
	StorageKey string `json:"storage_key"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	SizeBytes  int64  `json:"size_bytes"`
}

// MediaAccess logs one signed-download issuance for an asset.
type MediaAccess struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	AssetID   string    `json:"asset_id"`
	Actor     string    `json:"actor,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ReportJob tracks one reporting refresh or export run.
type ReportJob struct {
	ID            string            `json:"id"`
	TenantID      string            `json:"tenant_id"`
	Kind          ReportJobKind     `json:"kind"`
	ReportType    string            `json:"report_type"`
	Format        string            `json:"format,omitempty"`
	Params        map[string]string `json:"params,omitempty"`
	Status        ReportJobStatus   `json:"status"`
	ResultKey     string            `json:"result_key,omitempty"`
	DownloadURL   string            `json:"download_url,omitempty"`
	Error         string            `json:"error,omitempty"`
	DataFreshness time.Time         `json:"data_freshness_timestamp,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	StartedAt     time.Time         `json:"started_at,omitempty"`
	CompletedAt   time.Time         `json:"completed_at,omitempty"`
}

// ReportJobKind distinguishes aggregate rebuilds from exports
type ReportJobKind string

const (
	ReportJobKindRefresh ReportJobKind = "refresh"
	ReportJobKindExport  ReportJobKind = "export"
)

// ReportJobStatus represents the report job lifecycle
type ReportJobStatus string

const (
	ReportJobStatusPending   ReportJobStatus = "pending"
	ReportJobStatusRunning   ReportJobStatus = "running"
	ReportJobStatusCompleted ReportJobStatus = "completed"
	ReportJobStatusFailed    ReportJobStatus = "failed"
)

// FeatureFlag is a per-tenant toggle served through the tenant cache.
type FeatureFlag struct {
	TenantID  string    `json:"tenant_id"`
	Key       string    `json:"key"`
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DLQEntry is a job that exhausted its retry budget, kept for operators.
type DLQEntry struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	Kind           string    `json:"kind"`
	Priority       string    `json:"priority"`
	Attempts       int       `json:"attempts"`
	Payload        []byte    `json:"payload"`
	LastError      string    `json:"last_error"`
	FirstFailedAt  time.Time `json:"first_failed_at"`
	DeadLetteredAt time.Time `json:"dead_lettered_at"`
}

// IdempotencyRecord stores the replayable result of a mutating request.
type IdempotencyRecord struct {
	TenantID    string    `json:"tenant_id"`
	Key         string    `json:"key"`
	RequestHash string    `json:"request_hash"`
	StatusCode  int       `json:"status_code"`
	Body        []byte    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// AuditEvent is one append-only audit row. Every guarded action that
// requires auditing writes its event synchronously; failures are fatal to
// the initiating request.
type AuditEvent struct {
	ID              string            `json:"id"`
	TenantID        string            `json:"tenant_id"`
	Actor           string            `json:"actor"`
	ImpersonationID string            `json:"impersonation_id,omitempty"`
	Action          string            `json:"action"`
	ResourceType    string            `json:"resource_type"`
	ResourceID      string            `json:"resource_id"`
	Detail          map[string]string `json:"detail,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// ImpersonationToken lets a platform operator act as a tenant. Tokens are
// opaque, short-lived, and every downstream audit row carries the marker.
type ImpersonationToken struct {
	Token               string    `json:"token"`
	ActorPlatformUserID string    `json:"actor_platform_user_id"`
	ActingAsTenantID    string    `json:"acting_as_tenant_id"`
	Reason              string    `json:"reason"`
	ExpiresAt           time.Time `json:"expires_at"`
	CreatedAt           time.Time `json:"created_at"`
}
