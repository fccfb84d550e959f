/*
Package storage persists all control-plane state in an embedded bbolt
database and enforces tenant scoping on top of it.

Two layers:

	BoltStore  raw bucket CRUD, keys carry the tenant id
	Guard      context-scoped wrapper, the only handle domain services get

# Key Scheme

One database file (agora.db), one bucket per entity, JSON values. Every
tenant-owned row lives under a composite key:

	{tenant_id}/{row_id}                      most entities
	{tenant_id}/{variant_id}/{location_id}    stock levels
	{tenant_id}/{order_id}/{tender_id}        tenders
	{tenant_id}/{prefix}/{unixnano}/{id}      append-only rows (ledger, audit)

so one cursor prefix covers exactly one tenant, tenant deletion is a
prefix sweep across buckets, and a row physically cannot shadow another
tenant's id. Secondary lookups (subdomain, custom domain, SKU, gift card
code, cart owner, provider ref) are small index buckets mapping the
natural key to the row id.

# The Guard

Guard methods take a context, never a tenant id. The bound tenant comes
from the request or job binding; calls without one fail with
errdefs.ErrNoContext before any bucket is touched. Writes stamp the bound
tenant onto the row; a row pre-stamped for another tenant is rejected
with errdefs.ErrTenantMismatch and counted in
agora_tenant_mismatch_total. Reads re-check ownership after decode and
elide foreign rows as not-found (agora_cross_tenant_rows_elided_total),
so even a corrupted index cannot leak data across tenants.

Platform-scoped surfaces (tenant admin, DLQ, impersonation tokens, the
reconciler's cross-tenant sweeps) hold the BoltStore directly.

# Concurrency

bbolt gives one writer at a time; versioned rows (tenant, product, cart,
order, gift card, store credit) additionally carry an optimistic Version
counter. Updates must present the version they loaded; a stale write
fails with errdefs.ErrConflict instead of silently clobbering. Stock
levels skip the counter: MutateStockLevel applies the caller's closure
inside the write transaction, so availability checks and the matching
mutation are atomic.
*/
package storage
