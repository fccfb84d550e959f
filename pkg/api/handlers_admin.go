package api

import (
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/jobs"
	"github.com/cuemby/agora/pkg/security"
	"github.com/cuemby/agora/pkg/types"
)

// adminRoutes is the platform-operator surface. Nothing here runs under a
// tenant binding; the services it calls take explicit tenant ids.
func (s *Server) adminRoutes(r chi.Router) {
	r.Post("/tenants", s.handleCreateTenant)
	r.Get("/tenants", s.handleListTenants)
	r.Get("/tenants/{id}", s.handleGetTenant)
	r.Post("/tenants/{id}/suspend", s.handleSuspendTenant)
	r.Post("/tenants/{id}/activate", s.handleActivateTenant)
	r.Delete("/tenants/{id}", s.handleDeleteTenant)
	r.Put("/tenants/{id}/quotas", s.handleUpdateQuotas)
	r.Post("/tenants/{id}/domains", s.handleAttachDomain)
	r.Post("/tenants/{id}/domains/verify", s.handleVerifyDomain)
	r.Delete("/tenants/{id}/domains/{domain}", s.handleRemoveDomain)
	r.Get("/tenants/{id}/flags", s.handleListFlags)
	r.Put("/tenants/{id}/flags/{key}", s.handleSetFlag)
	r.Put("/tenants/{id}/payment-credentials", s.handlePutCredentials)
	r.Get("/dlq", s.handleListDLQ)
	r.Post("/dlq/{id}/requeue", s.handleRequeueDLQ)
	r.Delete("/dlq", s.handlePurgeDLQ)
	r.Delete("/rate-limits", s.handleResetRateLimits)
	r.Post("/impersonation", s.handleIssueImpersonation)
	r.Delete("/impersonation/{token}", s.handleRevokeImpersonation)
}

func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name      string             `json:"name" validate:"required"`
		Subdomain string             `json:"subdomain" validate:"required"`
		Quotas    types.TenantQuotas `json:"quotas"`
	}
	if err := decodeValid(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.manager.Tenants().Create(r.Context(), in.Name, in.Subdomain, in.Quotas)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := s.manager.Tenants().List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, tenants, len(tenants), time.Now().UTC())
}

func (s *Server) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	t, err := s.manager.Tenants().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleSuspendTenant(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.manager.Tenants().Suspend(r.Context(), chi.URLParam(r, "id"), in.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleActivateTenant(w http.ResponseWriter, r *http.Request) {
	t, err := s.manager.Tenants().Activate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	if _, err := s.manager.Tenants().Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateQuotas(w http.ResponseWriter, r *http.Request) {
	var quotas types.TenantQuotas
	if err := decodeJSON(r, &quotas); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.manager.Tenants().UpdateQuotas(r.Context(), chi.URLParam(r, "id"), quotas)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleAttachDomain(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Domain string `json:"domain" validate:"required,fqdn"`
	}
	if err := decodeValid(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.manager.Tenants().AttachDomain(r.Context(), chi.URLParam(r, "id"), in.Domain)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleVerifyDomain(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Domain string `json:"domain"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.manager.Tenants().VerifyDomain(r.Context(), chi.URLParam(r, "id"), in.Domain)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleRemoveDomain(w http.ResponseWriter, r *http.Request) {
	t, err := s.manager.Tenants().RemoveDomain(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "domain"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleListFlags(w http.ResponseWriter, r *http.Request) {
	flags, err := s.manager.Tenants().Flags(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, flags, len(flags), time.Now().UTC())
}

// flagKeyPattern pins flag keys to a stable machine-readable shape.
var flagKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_.-]*$`)

func (s *Server) handleSetFlag(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !flagKeyPattern.MatchString(key) {
		writeError(w, r, withFlag(errdefs.Validationf("flag key %q must be lowercase alphanumerics, dots, dashes or underscores", key), key))
		return
	}
	var in struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, withFlag(err, key))
		return
	}
	if err := s.manager.Tenants().SetFlag(r.Context(), chi.URLParam(r, "id"), key, in.Enabled); err != nil {
		writeError(w, r, withFlag(err, key))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "enabled": in.Enabled})
}

func (s *Server) handlePutCredentials(w http.ResponseWriter, r *http.Request) {
	var creds security.PaymentCredentials
	if err := decodeJSON(r, &creds); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.manager.Credentials().Put(chi.URLParam(r, "id"), creds); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListDLQ(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := s.manager.DLQ().List(jobs.Filter{TenantID: q.Get("tenant_id"), Kind: q.Get("kind")})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, entries, len(entries), time.Now().UTC())
}

func (s *Server) handleRequeueDLQ(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.DLQ().Requeue(chi.URLParam(r, "id"), s.manager.Queue()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"requeued": true})
}

func (s *Server) handlePurgeDLQ(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	n, err := s.manager.DLQ().Purge(jobs.Filter{TenantID: q.Get("tenant_id"), Kind: q.Get("kind")})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"purged": n})
}

// handleResetRateLimits drops one bucket when client and scope are given,
// every bucket otherwise.
func (s *Server) handleResetRateLimits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	client, scope := q.Get("client"), q.Get("scope")
	if client != "" && scope != "" {
		s.manager.Limiter().Reset(client, scope)
	} else {
		s.manager.Limiter().ClearAll()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleIssueImpersonation(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ActorID  string `json:"actor_id" validate:"required"`
		TenantID string `json:"tenant_id" validate:"required"`
		Reason   string `json:"reason" validate:"required"`
	}
	if err := decodeValid(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	it, err := s.manager.Tokens().Issue(in.ActorID, in.TenantID, in.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

func (s *Server) handleRevokeImpersonation(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Tokens().Revoke(chi.URLParam(r, "token")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
