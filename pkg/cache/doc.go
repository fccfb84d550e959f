/*
Package cache provides the tenant-keyed TTL cache for read-heavy lookups.

Two backends implement the same interface: Memory for single-pod
deployments and Redis when several pods must see one invalidation. The
Loader adds per-key single-flight so a cold or just-invalidated key costs
one upstream call no matter how many requests race on it.

# Key Scheme

Every key is namespaced by owner so invalidation can be scoped:

	host:{host}                                      resolver results
	tenant:{tenant_id}:search:{qhash}:page:{p}:size:{s}  catalog search pages
	tenant:{tenant_id}:flags                         feature flag sets

Query text is hashed into the key. Dropping a tenant means deleting
tenant:{tenant_id}:*; dropping one search page is a single-key delete.

# Invalidation

The Invalidator subscribes to the event broker:

	catalog.changed   → delete tenant:{id}:search:*
	flags.changed     → delete tenant:{id}:flags
	tenant.updated,
	tenant.suspended,
	tenant.deleted,
	tenant.domain_changed → delete host keys from event metadata,
	                        then tenant:{id}:*

Synchronous paths can call InvalidateTenant / InvalidateQuery directly.
Both roads bump agora_cache_invalidations_total{reason}.

# Fault Behavior

A miss is errdefs.ErrNotFound; anything else is a backend fault. The
Loader logs the fault and falls through to the fill function, so a dead
Redis degrades latency, never availability.

# Usage

	loader := cache.NewLoader(backend, "search")
	data, err := loader.Do(ctx, cache.SearchKey(tid, q, page, size), ttl,
		func(ctx context.Context) ([]byte, error) {
			return searchStore(ctx, tid, q, page, size)
		})
*/
package cache
