package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/metrics"
)

// Cache is a TTL byte cache. Implementations: in-process memory (default)
// and Redis (shared across pods). Get returns errdefs.ErrNotFound on a
// miss; any other error is a backend fault and callers should fall through
// to their source of truth.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Len() int
	Close() error
}

// HostKey caches host → tenant resolution results.
func HostKey(host string) string {
	return "host:" + host
}

// TenantPrefix covers every cached value owned by one tenant.
func TenantPrefix(tenantID string) string {
	return "tenant:" + tenantID + ":"
}

// SearchKey caches one page of catalog search results. The query string is
// hashed so arbitrary user input cannot produce unbounded or unsafe keys.
func SearchKey(tenantID, query string, page, size int) string {
	return fmt.Sprintf("tenant:%s:search:%s:page:%d:size:%d", tenantID, hashQuery(query), page, size)
}

// SearchPrefix covers all cached search pages for a tenant.
func SearchPrefix(tenantID string) string {
	return "tenant:" + tenantID + ":search:"
}

// FlagsKey caches a tenant's feature flag set.
func FlagsKey(tenantID string) string {
	return "tenant:" + tenantID + ":flags"
}

func hashQuery(q string) string {
	sum := sha256.Sum256([]byte(q))
	return hex.EncodeToString(sum[:8])
}

// InvalidateTenant drops every cached value owned by the tenant. Reason is
// recorded for operators; it never changes behavior.
func InvalidateTenant(ctx context.Context, c Cache, tenantID, reason string) error {
	metrics.CacheInvalidations.WithLabelValues(reason).Inc()
	return c.DeletePrefix(ctx, TenantPrefix(tenantID))
}

// InvalidateQuery drops a single cached search page.
func InvalidateQuery(ctx context.Context, c Cache, tenantID, query string, page, size int) error {
	metrics.CacheInvalidations.WithLabelValues("query").Inc()
	return c.Delete(ctx, SearchKey(tenantID, query, page, size))
}

// IsMiss reports whether a Get error is a plain miss rather than a fault.
func IsMiss(err error) bool {
	return errdefs.IsNotFound(err)
}
