package tenant

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cuemby/agora/pkg/cache"
	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/events"
	"github.com/cuemby/agora/pkg/log"
	"github.com/cuemby/agora/pkg/metrics"
	"github.com/cuemby/agora/pkg/types"
)

// Directory is the lookup surface the resolver needs from storage.
type Directory interface {
	GetTenantBySubdomain(subdomain string) (*types.Tenant, error)
	GetTenantByDomain(domain string) (*types.Tenant, error)
}

// Resolver maps inbound Host headers to tenants. Platform subdomains are
// checked first ({sub}.{baseDomain}), then verified custom domains. Results
// are cached per host with a short TTL; tenant lifecycle events invalidate
// cached hosts ahead of expiry.
type Resolver struct {
	dir        Directory
	baseDomain string
	loader     *cache.Loader
	broker     *events.Broker
	hostTTL    time.Duration
}

// NewResolver builds a resolver over the given directory and cache backend.
func NewResolver(dir Directory, c cache.Cache, broker *events.Broker, baseDomain string, hostTTL time.Duration) *Resolver {
	if hostTTL <= 0 {
		hostTTL = 2 * time.Minute
	}
	return &Resolver{
		dir:        dir,
		baseDomain: strings.ToLower(baseDomain),
		loader:     cache.NewLoader(c, "hosts"),
		broker:     broker,
		hostTTL:    hostTTL,
	}
}

// Resolve maps a Host header to an active tenant.
//
// Outcomes:
//   - active tenant: returned, tenant.resolved emitted
//   - suspended tenant: ErrStoreSuspended (fixed 403 upstream)
//   - anything else: ErrTenantNotFound (generic 404, no disclosure)
//   - storage fault: ErrTransient (503, no disclosure)
func (r *Resolver) Resolve(ctx context.Context, host string) (*types.Tenant, error) {
	h, err := NormalizeHost(host)
	if err != nil {
		// Malformed hosts read as unknown stores; the body stays generic.
		metrics.TenantResolutions.WithLabelValues("not_found").Inc()
		return nil, errdefs.ErrTenantNotFound
	}

	data, err := r.loader.Do(ctx, cache.HostKey(h), r.hostTTL, func(ctx context.Context) ([]byte, error) {
		t, err := r.lookup(h)
		if err != nil {
			return nil, err
		}
		return json.Marshal(t)
	})
	if err != nil {
		if errdefs.IsTenantNotFound(err) {
			metrics.TenantResolutions.WithLabelValues("not_found").Inc()
		}
		return nil, err
	}

	var t types.Tenant
	if err := json.Unmarshal(data, &t); err != nil {
		lg := log.WithComponent("resolver")
		lg.Error().Err(err).Str("host", h).Msg("Corrupt cached tenant, dropping entry")
		return nil, errdefs.Transientf("decode cached tenant for %s", h)
	}

	// Status gates on every resolve, cached or not. A suspension that beat
	// the invalidation event still answers correctly after the row reloads;
	// until then the TTL bounds staleness.
	switch t.Status {
	case types.TenantStatusActive:
		metrics.TenantResolutions.WithLabelValues("resolved").Inc()
		r.broker.Publish(&events.Event{
			Type:     events.EventTenantResolved,
			TenantID: t.ID,
			Metadata: map[string]string{"host": h},
		})
		return &t, nil
	case types.TenantStatusSuspended:
		metrics.TenantResolutions.WithLabelValues("suspended").Inc()
		return nil, errdefs.ErrStoreSuspended
	default:
		metrics.TenantResolutions.WithLabelValues("not_found").Inc()
		return nil, errdefs.ErrTenantNotFound
	}
}

// lookup consults the directory, subdomain first, then custom domains.
func (r *Resolver) lookup(host string) (*types.Tenant, error) {
	if sub, ok := r.subdomainOf(host); ok {
		if ValidateSubdomain(sub) != nil {
			// Nested or malformed labels under the base domain never match.
			return nil, errdefs.ErrTenantNotFound
		}
		t, err := r.dir.GetTenantBySubdomain(sub)
		return r.vet(t, err, host)
	}

	t, err := r.dir.GetTenantByDomain(host)
	if err != nil {
		return r.vet(t, err, host)
	}
	// Only verified domains resolve, whatever the directory returned.
	for _, d := range t.CustomDomains {
		if strings.EqualFold(d.Domain, host) && d.Verified {
			return t, nil
		}
	}
	return nil, errdefs.ErrTenantNotFound
}

func (r *Resolver) vet(t *types.Tenant, err error, host string) (*types.Tenant, error) {
	switch {
	case err == nil:
		return t, nil
	case errdefs.IsNotFound(err), errdefs.IsTenantNotFound(err):
		return nil, errdefs.ErrTenantNotFound
	default:
		// A storage fault must not leak as "store does not exist".
		lg := log.WithComponent("resolver")
		lg.Error().Err(err).Str("host", host).Msg("Tenant lookup failed")
		return nil, errdefs.Transientf("tenant lookup for host")
	}
}

// subdomainOf extracts the platform subdomain, if host is under baseDomain.
func (r *Resolver) subdomainOf(host string) (string, bool) {
	if host == r.baseDomain {
		return "", false
	}
	suffix := "." + r.baseDomain
	if strings.HasSuffix(host, suffix) {
		return strings.TrimSuffix(host, suffix), true
	}
	return "", false
}
