/*
Package catalog manages products and their cached keyword search.

All persistence goes through the tenant-scoped guard, so a catalog call
without a bound tenant context fails before it touches storage.

Search pages are cached per (tenant, query, page, size) with single-flight
loading: a cold page is computed once even under concurrent identical
requests. Every mutation drops the tenant's entire search prefix and
publishes catalog.changed: coherence comes from invalidation, never from
updating cached pages in place.
Archived products never appear in search results but remain readable by id.
*/
package catalog
