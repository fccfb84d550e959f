/*
Package types defines the core data structures used throughout Agora.

This package contains all fundamental types that represent Agora's domain
model: tenants, catalog entries, carts, orders, tenders, inventory,
consignment, media assets, and reporting jobs. These types are used by all
other packages for state management, API responses, and job payloads.

# Architecture

The types package is the foundation of Agora's data model. It defines:

  - Tenancy (tenants, custom domains, quotas, impersonation tokens)
  - Catalog (products, variants)
  - Commerce flow (carts, orders, tenders, payment intents)
  - Balances (gift cards, store credit, ledger entries)
  - Inventory (locations, stock levels, reservations, transfers)
  - Consignment (consignors, items, payout batches)
  - Media (assets, derivatives, access log)
  - Operations (report jobs, DLQ entries, idempotency records, audit events)

All types are designed to be:
  - Serializable (JSON, snake_case wire names)
  - Tenant-owned (every persisted row carries TenantID)
  - Self-documenting (clear field names and comments)
  - Validated (constants for enums, validation helpers)

# Core Types

The main types in this package are:

Tenancy:
  - Tenant: Isolated merchant account with hostnames and quotas
  - TenantStatus: Active, suspended, deleted
  - CustomDomain: Merchant-owned hostname (must be verified to resolve)
  - ImpersonationToken: Operator acting as a tenant, time-boxed

Commerce:
  - Product / Variant: Catalog entries, SKU-unique per tenant
  - Cart: Optimistically versioned pre-order aggregate
  - Order: Finalized purchase produced by the checkout saga
  - Tender: One payment means applied to an order
  - PaymentIntent: Provider-side charge for the card residual

Balances:
  - GiftCard / StoreCredit: Redeemable tenant-scoped balances
  - LedgerEntry: Append-only balance movement

Inventory:
  - Location: Stock-keeping site
  - StockLevel: (tenant, variant, location) on-hand/reserved pair
  - Reservation: Hold that is later committed or released
  - Transfer: Stock movement between two locations

Consignment:
  - Consignor: Third-party seller with a commission rate
  - ConsignmentItem: Intake row moving intake → listed → sold → paid
  - PayoutBatch: Period aggregation of a consignor's sold items

Media:
  - MediaAsset: Original upload plus derivatives and quota accounting
  - Derivative: Processed artifact (thumbnail, web, hls_720p, ...)

Operations:
  - ReportJob: Refresh or export run with data freshness stamp
  - DLQEntry: Job that exhausted retries, kept for operators
  - IdempotencyRecord: Replayable result of a mutating request
  - AuditEvent: Append-only audit row, written synchronously

# Usage

Creating a Tenant:

	tenant := &types.Tenant{
		ID:        uuid.New().String(),
		Name:      "Acme Vintage",
		Subdomain: "acme",
		Status:    types.TenantStatusActive,
		Quotas: types.TenantQuotas{
			MediaStorageBytes: 5 * 1024 * 1024 * 1024, // 5GB
		},
		CreatedAt: time.Now().UTC(),
	}

Creating a Cart and adding a line:

	cart := &types.Cart{
		ID:       uuid.New().String(),
		TenantID: tenant.ID,
		Status:   types.CartStatusOpen,
		Items: []types.CartItem{
			{
				ID:             uuid.New().String(),
				VariantID:      variant.ID,
				SKU:            variant.SKU,
				UnitPriceCents: variant.PriceCents, // snapshot, not a reference
				Qty:            2,
			},
		},
	}

Recording a reservation:

	res := &types.Reservation{
		ID:         uuid.New().String(),
		TenantID:   tenant.ID,
		VariantID:  variant.ID,
		LocationID: loc.ID,
		Qty:        2,
		Ref:        order.ID,
		RefKind:    "order",
		Status:     types.ReservationStatusHeld,
		ExpiresAt:  time.Now().UTC().Add(30 * time.Minute),
	}

# State Machines

Orders:

	pending → completed
	    ↓
	  failed

Reservations:

	held → committed (stock leaves the source)
	  ↓
	released (hold withdrawn, e.g. saga compensation)

Media assets:

	uploading → pending → processing → ready
	                          ↓
	                        failed

Report jobs:

	pending → running → completed
	              ↓
	            failed

Consignment items:

	intake → listed → sold → paid

# Design Patterns

Enumeration Pattern:

	All enums use typed string constants for safety and clarity:
	  type OrderStatus string
	  const (
	      OrderStatusPending   OrderStatus = "pending"
	      OrderStatusCompleted OrderStatus = "completed"
	  )

Money Pattern:

	All monetary amounts are int64 cents. Percentage rates use the Rate
	type, hundredths of a percent (15.13% == Rate(1513)), so commission
	math stays in integer space.

Optimistic Versioning:

	Mutable aggregates (Tenant, Product, Cart, Order, GiftCard,
	StoreCredit) carry a Version counter. Writers load a version, mutate,
	and persist conditionally; a version mismatch is a conflict, never a
	silent overwrite.

Price Snapshots:

	CartItem copies the unit price at add time. Later catalog price
	changes never alter an existing cart line.

# Integration Points

This package integrates with:

  - pkg/storage: Persists all types to BoltDB under tenant-scoped keys
  - pkg/api: Serializes types into response envelopes
  - pkg/tenant: Resolves hosts to Tenant and binds request context
  - pkg/jobs: Carries TenantID inside job payloads
  - pkg/checkout: Drives Order/Tender/PaymentIntent state
  - pkg/inventory: Maintains StockLevel/Reservation/Transfer invariants
  - pkg/consignment: Computes payouts from ConsignmentItem rows
  - pkg/media: Tracks MediaAsset lifecycle and quota accounting
  - pkg/reporting: Updates ReportJob progress and freshness
  - pkg/audit: Appends AuditEvent rows

# Validation

Key validation rules:

Tenants:
  - Subdomain: lowercase [a-z0-9-], 3-63 chars, no edge hyphens
  - Custom domains must be verified before they resolve
  - Quotas never go negative

Catalog:
  - SKU must be unique within a tenant (composite key)
  - Price must be >= 0

Inventory:
  - Reserved never exceeds OnHand
  - Reservation quantity must be > 0
  - Transfers require distinct source and destination locations

Consignment:
  - CommissionRate must be within [0, 100] percent at scale 2

# Thread Safety

All types in this package are designed to be:
  - Read-safe: Can be read concurrently from multiple goroutines
  - Write-unsafe: Mutations must be synchronized by callers
  - Copy-preferred: Load, mutate a copy, persist conditionally

The storage layer (pkg/storage) handles persistence-time synchronization.
In-memory caches must implement their own locking.

# See Also

  - pkg/storage for persistence layer and key scheme
  - pkg/tenant for resolution and context binding
  - pkg/checkout for the order state machine
*/
package types
