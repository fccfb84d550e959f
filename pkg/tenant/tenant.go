package tenant

import (
	"context"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/events"
	"github.com/cuemby/agora/pkg/log"
	"github.com/cuemby/agora/pkg/types"
)

const maxHostLen = 253

// subdomains are DNS labels: lowercase alphanumerics and hyphens, 3-63
// chars, no edge hyphens.
var subdomainRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]$`)

// reservedSubdomains can never be claimed by a tenant.
var reservedSubdomains = map[string]bool{
	"www":    true,
	"api":    true,
	"admin":  true,
	"app":    true,
	"mail":   true,
	"status": true,
	"assets": true,
}

// ValidateSubdomain checks a tenant's platform subdomain.
func ValidateSubdomain(s string) error {
	if !subdomainRe.MatchString(s) {
		return errdefs.Validationf("subdomain %q must be 3-63 lowercase alphanumerics or hyphens with no edge hyphen", s)
	}
	if reservedSubdomains[s] {
		return errdefs.Validationf("subdomain %q is reserved", s)
	}
	return nil
}

// ValidateCustomDomain checks a merchant-owned hostname.
func ValidateCustomDomain(d string) error {
	if len(d) == 0 || len(d) > maxHostLen {
		return errdefs.Validationf("domain %q length out of range", d)
	}
	if !strings.Contains(d, ".") {
		return errdefs.Validationf("domain %q must be fully qualified", d)
	}
	for _, label := range strings.Split(d, ".") {
		if label == "" || !subdomainLabelOK(label) {
			return errdefs.Validationf("domain %q has invalid label %q", d, label)
		}
	}
	return nil
}

func subdomainLabelOK(label string) bool {
	if len(label) > 63 {
		return false
	}
	for i, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '-':
			if i == 0 || i == len(label)-1 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// NormalizeHost lowercases, strips any port and trailing dot, and bounds
// the length of an inbound Host header value.
func NormalizeHost(host string) (string, error) {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "" {
		return "", errdefs.Validationf("empty host")
	}
	if stripped, _, err := net.SplitHostPort(h); err == nil {
		h = stripped
	}
	h = strings.TrimSuffix(h, ".")
	if len(h) > maxHostLen {
		return "", errdefs.Validationf("host exceeds %d octets", maxHostLen)
	}
	return h, nil
}

// Store is the persistence surface the tenant service needs. pkg/storage
// implements it.
type Store interface {
	CreateTenant(t *types.Tenant) error
	GetTenant(id string) (*types.Tenant, error)
	GetTenantBySubdomain(subdomain string) (*types.Tenant, error)
	GetTenantByDomain(domain string) (*types.Tenant, error)
	UpdateTenant(t *types.Tenant) error
	ListTenants() ([]*types.Tenant, error)
	SetFeatureFlag(flag *types.FeatureFlag) error
	ListFeatureFlags(tenantID string) ([]*types.FeatureFlag, error)
}

// Service owns tenant lifecycle: provisioning, suspension, custom domains,
// and feature flags. Every state change publishes an event so caches and
// the resolver stay current.
type Service struct {
	store      Store
	broker     *events.Broker
	baseDomain string
}

// NewService creates the tenant service. baseDomain is the platform's
// wildcard root (stores live at {subdomain}.{baseDomain}).
func NewService(store Store, broker *events.Broker, baseDomain string) *Service {
	return &Service{store: store, broker: broker, baseDomain: baseDomain}
}

// Create provisions a tenant on a platform subdomain.
func (s *Service) Create(ctx context.Context, name, subdomain string, quotas types.TenantQuotas) (*types.Tenant, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errdefs.Validationf("tenant name is required")
	}
	if err := ValidateSubdomain(subdomain); err != nil {
		return nil, err
	}
	if existing, err := s.store.GetTenantBySubdomain(subdomain); err == nil && existing != nil {
		return nil, errdefs.Conflictf("subdomain %q already taken", subdomain)
	} else if err != nil && !errdefs.IsNotFound(err) && !errdefs.IsTenantNotFound(err) {
		return nil, err
	}

	now := time.Now().UTC()
	t := &types.Tenant{
		ID:        uuid.New().String(),
		Name:      name,
		Subdomain: subdomain,
		Status:    types.TenantStatusActive,
		Quotas:    quotas,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateTenant(t); err != nil {
		return nil, err
	}

	lg := log.WithComponent("tenant")
	lg.Info().
		Str("tenant_id", t.ID).
		Str("subdomain", subdomain).
		Msg("Tenant created")
	s.publish(events.EventTenantCreated, t, "")
	return t, nil
}

// Get loads a tenant by id.
func (s *Service) Get(ctx context.Context, id string) (*types.Tenant, error) {
	return s.store.GetTenant(id)
}

// List returns all tenants. Operator surface only.
func (s *Service) List(ctx context.Context) ([]*types.Tenant, error) {
	return s.store.ListTenants()
}

// Suspend blocks all storefront traffic for the tenant. In-flight jobs for
// it start failing with a non-retryable error.
func (s *Service) Suspend(ctx context.Context, id, reason string) (*types.Tenant, error) {
	return s.transition(ctx, id, types.TenantStatusSuspended, events.EventTenantSuspended, reason)
}

// Activate lifts a suspension.
func (s *Service) Activate(ctx context.Context, id string) (*types.Tenant, error) {
	return s.transition(ctx, id, types.TenantStatusActive, events.EventTenantUpdated, "")
}

// Delete soft-deletes the tenant. Row purging runs asynchronously; from
// this moment the host no longer resolves.
func (s *Service) Delete(ctx context.Context, id string) (*types.Tenant, error) {
	return s.transition(ctx, id, types.TenantStatusDeleted, events.EventTenantDeleted, "")
}

func (s *Service) transition(ctx context.Context, id string, status types.TenantStatus, ev events.EventType, reason string) (*types.Tenant, error) {
	t, err := s.store.GetTenant(id)
	if err != nil {
		return nil, err
	}
	if t.Status == status {
		return t, nil
	}
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateTenant(t); err != nil {
		return nil, err
	}

	logger := log.WithComponent("tenant").With().Str("tenant_id", id).Logger()
	if reason != "" {
		logger.Info().Str("status", string(status)).Str("reason", reason).Msg("Tenant status changed")
	} else {
		logger.Info().Str("status", string(status)).Msg("Tenant status changed")
	}
	s.publish(ev, t, reason)
	return t, nil
}

// UpdateQuotas replaces the tenant's quota block.
func (s *Service) UpdateQuotas(ctx context.Context, id string, quotas types.TenantQuotas) (*types.Tenant, error) {
	t, err := s.store.GetTenant(id)
	if err != nil {
		return nil, err
	}
	if quotas.MediaStorageBytes < 0 {
		return nil, errdefs.Validationf("media quota must be >= 0")
	}
	quotas.MediaUsedBytes = t.Quotas.MediaUsedBytes // usage is system-owned
	t.Quotas = quotas
	t.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateTenant(t); err != nil {
		return nil, err
	}
	s.publish(events.EventTenantUpdated, t, "quotas")
	return t, nil
}

// AttachDomain adds an unverified custom domain. The domain resolves only
// after VerifyDomain.
func (s *Service) AttachDomain(ctx context.Context, id, domain string) (*types.Tenant, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if err := ValidateCustomDomain(domain); err != nil {
		return nil, err
	}
	if owner, err := s.store.GetTenantByDomain(domain); err == nil && owner != nil && owner.ID != id {
		return nil, errdefs.Conflictf("domain %q already attached to another tenant", domain)
	} else if err != nil && !errdefs.IsNotFound(err) && !errdefs.IsTenantNotFound(err) {
		return nil, err
	}

	t, err := s.store.GetTenant(id)
	if err != nil {
		return nil, err
	}
	for _, d := range t.CustomDomains {
		if d.Domain == domain {
			return t, nil
		}
	}
	t.CustomDomains = append(t.CustomDomains, types.CustomDomain{Domain: domain})
	t.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateTenant(t); err != nil {
		return nil, err
	}
	s.publish(events.EventDomainChanged, t, "attached "+domain)
	return t, nil
}

// VerifyDomain marks a custom domain as verified, making it resolvable.
func (s *Service) VerifyDomain(ctx context.Context, id, domain string) (*types.Tenant, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	t, err := s.store.GetTenant(id)
	if err != nil {
		return nil, err
	}
	found := false
	for i := range t.CustomDomains {
		if t.CustomDomains[i].Domain == domain {
			t.CustomDomains[i].Verified = true
			t.CustomDomains[i].VerifiedAt = time.Now().UTC()
			found = true
			break
		}
	}
	if !found {
		return nil, errdefs.NotFoundf("domain %q not attached", domain)
	}
	t.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateTenant(t); err != nil {
		return nil, err
	}
	s.publish(events.EventDomainChanged, t, "verified "+domain)
	return t, nil
}

// RemoveDomain detaches a custom domain. The host stops resolving as soon
// as the invalidation event lands.
func (s *Service) RemoveDomain(ctx context.Context, id, domain string) (*types.Tenant, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	t, err := s.store.GetTenant(id)
	if err != nil {
		return nil, err
	}
	kept := t.CustomDomains[:0]
	removed := false
	for _, d := range t.CustomDomains {
		if d.Domain == domain {
			removed = true
			continue
		}
		kept = append(kept, d)
	}
	if !removed {
		return nil, errdefs.NotFoundf("domain %q not attached", domain)
	}
	t.CustomDomains = kept
	t.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateTenant(t); err != nil {
		return nil, err
	}
	// The removed host must be dropped from the resolver cache too.
	ev := &events.Event{
		Type:     events.EventDomainChanged,
		TenantID: t.ID,
		Message:  "removed " + domain,
		Metadata: map[string]string{"hosts": strings.Join(append(s.Hosts(t), domain), ",")},
	}
	s.broker.Publish(ev)
	return t, nil
}

// SetFlag toggles a feature flag for the tenant.
func (s *Service) SetFlag(ctx context.Context, tenantID, key string, enabled bool) error {
	if strings.TrimSpace(key) == "" {
		return errdefs.Validationf("flag key is required")
	}
	if _, err := s.store.GetTenant(tenantID); err != nil {
		return err
	}
	if err := s.store.SetFeatureFlag(&types.FeatureFlag{
		TenantID:  tenantID,
		Key:       key,
		Enabled:   enabled,
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}
	s.broker.Publish(&events.Event{
		Type:     events.EventFlagsChanged,
		TenantID: tenantID,
		Metadata: map[string]string{"key": key},
	})
	return nil
}

// Flags returns the tenant's feature flags.
func (s *Service) Flags(ctx context.Context, tenantID string) ([]*types.FeatureFlag, error) {
	return s.store.ListFeatureFlags(tenantID)
}

// Hosts returns every hostname the tenant is currently reachable under.
func (s *Service) Hosts(t *types.Tenant) []string {
	hosts := []string{t.Subdomain + "." + s.baseDomain}
	for _, d := range t.CustomDomains {
		if d.Verified {
			hosts = append(hosts, d.Domain)
		}
	}
	return hosts
}

func (s *Service) publish(ev events.EventType, t *types.Tenant, msg string) {
	s.broker.Publish(&events.Event{
		Type:     ev,
		TenantID: t.ID,
		Message:  msg,
		Metadata: map[string]string{"hosts": strings.Join(s.Hosts(t), ",")},
	})
}
