package tenant

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/log"
	"github.com/cuemby/agora/pkg/metrics"
	"github.com/cuemby/agora/pkg/types"
)

// TokenStore persists impersonation tokens so sessions survive restarts
// and the reconciler can purge expired ones.
type TokenStore interface {
	PutImpersonationToken(t *types.ImpersonationToken) error
	GetImpersonationToken(token string) (*types.ImpersonationToken, error)
	DeleteImpersonationToken(token string) error
	ListImpersonationTokens() ([]*types.ImpersonationToken, error)
}

// TokenManager issues and validates operator impersonation tokens. Tokens
// are opaque random strings, never JWTs: possession is the whole claim and
// revocation is a delete.
type TokenManager struct {
	store TokenStore
	ttl   time.Duration
}

// NewTokenManager creates a token manager with the given session TTL.
func NewTokenManager(store TokenStore, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenManager{store: store, ttl: ttl}
}

// Issue mints a token letting actor act as the tenant. Reason is required;
// it lands in the audit trail of everything done under the session.
func (tm *TokenManager) Issue(actorID, tenantID, reason string) (*types.ImpersonationToken, error) {
	if actorID == "" || tenantID == "" {
		return nil, errdefs.Validationf("actor and tenant are required")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, errdefs.Validationf("impersonation reason is required")
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate impersonation token: %w", err)
	}

	now := time.Now().UTC()
	it := &types.ImpersonationToken{
		Token:               hex.EncodeToString(buf),
		ActorPlatformUserID: actorID,
		ActingAsTenantID:    tenantID,
		Reason:              reason,
		CreatedAt:           now,
		ExpiresAt:           now.Add(tm.ttl),
	}
	if err := tm.store.PutImpersonationToken(it); err != nil {
		return nil, err
	}

	metrics.ImpersonationSessions.Inc()
	lg := log.WithComponent("impersonation")
	lg.Info().
		Str("actor", actorID).
		Str("tenant_id", tenantID).
		Str("reason", reason).
		Time("expires_at", it.ExpiresAt).
		Msg("Impersonation session issued")
	return it, nil
}

// Validate resolves a presented token. Expired and unknown tokens read the
// same to the caller.
func (tm *TokenManager) Validate(token string) (*types.ImpersonationToken, error) {
	it, err := tm.store.GetImpersonationToken(token)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, errdefs.NotFoundf("impersonation token")
		}
		return nil, err
	}
	if time.Now().UTC().After(it.ExpiresAt) {
		return nil, errdefs.NotFoundf("impersonation token")
	}
	return it, nil
}

// Revoke ends a session immediately.
func (tm *TokenManager) Revoke(token string) error {
	return tm.store.DeleteImpersonationToken(token)
}

// CleanupExpired removes expired tokens and returns how many were dropped.
// The reconciler runs this periodically.
func (tm *TokenManager) CleanupExpired() (int, error) {
	tokens, err := tm.store.ListImpersonationTokens()
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	removed := 0
	for _, it := range tokens {
		if now.After(it.ExpiresAt) {
			if err := tm.store.DeleteImpersonationToken(it.Token); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}
