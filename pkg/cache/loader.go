package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cuemby/agora/pkg/log"
	"github.com/cuemby/agora/pkg/metrics"
)

// Loader wraps a Cache with per-key single-flight loading: concurrent
// misses for the same key produce exactly one fill call, and a backend
// fault degrades to a direct fill instead of failing the request.
type Loader struct {
	cache Cache
	name  string
	sf    singleflight.Group
}

// NewLoader creates a loader. name labels hit/miss metrics and log lines.
func NewLoader(c Cache, name string) *Loader {
	return &Loader{cache: c, name: name}
}

// Do returns the cached value for key, or runs fill once and caches the
// result for ttl. Errors from fill propagate to every waiting caller.
func (l *Loader) Do(ctx context.Context, key string, ttl time.Duration, fill func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	val, err := l.cache.Get(ctx, key)
	if err == nil {
		metrics.CacheHits.WithLabelValues(l.name).Inc()
		return val, nil
	}
	if !IsMiss(err) {
		// Backend fault: serve from source rather than failing the request.
		lg := log.WithComponent("cache")
		lg.Warn().Err(err).Str("cache", l.name).Str("key", key).
			Msg("Cache read failed, falling through to source")
	}
	metrics.CacheMisses.WithLabelValues(l.name).Inc()

	v, err, _ := l.sf.Do(key, func() (interface{}, error) {
		// Double-check after the single-flight barrier: a concurrent caller
		// may have filled the key while this one waited.
		if val, err := l.cache.Get(ctx, key); err == nil {
			return val, nil
		}

		val, err := fill(ctx)
		if err != nil {
			return nil, err
		}
		if err := l.cache.Set(ctx, key, val, ttl); err != nil {
			lg := log.WithComponent("cache")
			lg.Warn().Err(err).Str("cache", l.name).Str("key", key).
				Msg("Cache write failed, result served uncached")
		}
		return val, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Forget drops the in-flight dedup entry for key, letting the next caller
// trigger a fresh fill even while an old one is still running.
func (l *Loader) Forget(key string) {
	l.sf.Forget(key)
}
