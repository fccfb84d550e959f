package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/tenant"
)

// actorAnonymous is the binding actor for requests with no bearer identity.
// Anonymous callers still get carts, keyed by their session header.
const actorAnonymous = "anonymous"

// impersonationHeader carries an opaque operator token issued through the
// admin API. A JWT impersonation_id claim is an equivalent channel.
const impersonationHeader = "X-Impersonation-Token"

// bearerClaims is the accepted storefront token shape. Subject is the user
// id; tenant_id, when present, must match the host's tenant.
type bearerClaims struct {
	TenantID        string   `json:"tenant_id,omitempty"`
	Roles           []string `json:"roles,omitempty"`
	ImpersonationID string   `json:"impersonation_id,omitempty"`
	jwt.RegisteredClaims
}

// authenticate fills the binding's actor and impersonation marker from the
// request's credentials. Requests without credentials stay anonymous; bad
// credentials fail rather than degrade.
func (s *Server) authenticate(r *http.Request, b *tenant.Binding) error {
	impersonation := r.Header.Get(impersonationHeader)

	if raw := bearerToken(r); raw != "" {
		claims, err := s.parseBearer(raw)
		if err != nil {
			return err
		}
		if claims.TenantID != "" && claims.TenantID != b.Tenant.ID {
			return errStatus(http.StatusForbidden, "token is not valid for this store")
		}
		if claims.Subject != "" {
			b.Actor = "user:" + claims.Subject
		}
		if impersonation == "" {
			impersonation = claims.ImpersonationID
		}
	}

	if impersonation != "" {
		it, err := s.manager.Tokens().Validate(impersonation)
		if err != nil {
			if errdefs.IsNotFound(err) {
				return errStatus(http.StatusForbidden, "impersonation token invalid or expired")
			}
			return err
		}
		if it.ActingAsTenantID != b.Tenant.ID {
			return errStatus(http.StatusForbidden, "impersonation token is not valid for this store")
		}
		b.Actor = "operator:" + it.ActorPlatformUserID
		b.ImpersonationID = it.Token
	}

	return nil
}

// parseBearer validates a storefront JWT against the configured secret.
func (s *Server) parseBearer(raw string) (*bearerClaims, error) {
	secret := s.manager.Config().Server.AuthSecret
	if secret == "" {
		return nil, errStatus(http.StatusUnauthorized, "bearer authentication is not configured")
	}

	claims := &bearerClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, errStatus(http.StatusUnauthorized, "invalid bearer token")
	}
	return claims, nil
}

// bearerToken extracts the Authorization bearer value, or "".
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
