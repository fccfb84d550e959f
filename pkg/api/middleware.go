package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/metrics"
	"github.com/cuemby/agora/pkg/tenant"
)

// requestLogger logs one line per request and feeds the API metrics. Health
// and metrics probes are skipped to keep the log readable.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz", "/readyz", "/livez", "/metrics":
			next.ServeHTTP(w, r)
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(ww.Status())).Inc()
		metrics.APIRequestDuration.WithLabelValues(r.Method).Observe(elapsed.Seconds())

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("host", r.Host).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", elapsed).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

// maintenance rejects mutations while the read-only toggle is on. Reads keep
// flowing so storefronts stay browsable through a maintenance window.
func (s *Server) maintenance(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.manager.Config().Server.MaintenanceMode {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
			default:
				writeError(w, r, errdefs.Transientf("maintenance mode"))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// withTenant resolves the Host header to a tenant, authenticates the caller,
// and binds the request context. Everything downstream reads the binding;
// nothing downstream resolves tenants again.
func (s *Server) withTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t, err := s.manager.Resolver().Resolve(r.Context(), r.Host)
		if err != nil {
			writeError(w, r, err)
			return
		}

		b := &tenant.Binding{Tenant: t, Actor: actorAnonymous}
		if err := s.authenticate(r, b); err != nil {
			writeError(w, r, err)
			return
		}

		ctx, err := tenant.Bind(r.Context(), b)
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimitScope is the storefront budget bucket. One budget per tenant;
// operators reset it through the admin API under the same scope name.
const rateLimitScope = "api"

// rateLimit spends one token from the tenant's budget and stamps the
// X-RateLimit headers on every response, allowed or not.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := tenant.Current(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}

		res := s.manager.Limiter().Allow(b.Tenant.ID, rateLimitScope)
		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			retry := int(time.Until(res.ResetAt).Seconds()) + 1
			if retry < 1 {
				retry = 1
			}
			h.Set("Retry-After", strconv.Itoa(retry))
			writeError(w, r, errdefs.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin gates the operator surface behind the configured bearer
// token. The group is only mounted when a token is set, so a missing header
// here is always a caller mistake.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := s.manager.Config().Server.AdminToken
		got := bearerToken(r)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			writeError(w, r, errStatus(http.StatusUnauthorized, "admin token required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
