package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cuemby/agora/pkg/checkout"
	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/tenant"
	"github.com/cuemby/agora/pkg/types"
)

func (s *Server) checkoutRoutes(r chi.Router) {
	r.Post("/checkout", s.handleCheckout)
	r.Get("/orders", s.handleListOrders)
	r.Get("/orders/{id}", s.handleGetOrder)
	r.Get("/orders/{id}/tenders", s.handleOrderTenders)
}

// handleCheckout finalizes a cart. The response order is pending when a card
// residual awaits its webhook, completed when non-card tenders covered the
// total, or the failure reason rides back on the problem document.
func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var in checkout.StartInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	order, err := s.manager.Saga().Start(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.manager.Saga().ListOrders(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, orders, len(orders), time.Now().UTC())
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.manager.Saga().GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleOrderTenders(w http.ResponseWriter, r *http.Request) {
	tenders, err := s.manager.Saga().Tenders(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, tenders, len(tenders), time.Now().UTC())
}

// webhookSignatureHeader carries the gateway's HMAC over the raw body.
const webhookSignatureHeader = "X-Webhook-Signature"

// handlePaymentWebhook ingests a gateway delivery. The event names its own
// tenant; the handler authenticates it against that tenant's secret, then
// runs the saga under a system binding. A suspended tenant answers 403 so
// the gateway keeps redelivering until the store is reactivated.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, errdefs.Validationf("read webhook body: %v", err))
		return
	}
	evt, err := s.manager.Provider().ParseWebhook(r.Header.Get(webhookSignatureHeader), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.manager.Tenants().Get(r.Context(), evt.TenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if t.Status != types.TenantStatusActive {
		writeError(w, r, errdefs.ErrStoreSuspended)
		return
	}

	err = tenant.RunAs(r.Context(), &tenant.Binding{Tenant: t, Actor: "system:webhook"}, func(ctx context.Context) error {
		return s.manager.Saga().HandleWebhook(ctx, evt)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
