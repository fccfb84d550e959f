package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/tenant"
)

func (s *Server) cartRoutes(r chi.Router) {
	r.Post("/carts", s.handleOpenCart)
	r.Get("/carts/{id}", s.handleGetCart)
	r.Post("/carts/{id}/items", s.handleAddCartItem)
	r.Put("/carts/{id}/items/{itemID}", s.handleUpdateCartItem)
	r.Delete("/carts/{id}/items/{itemID}", s.handleRemoveCartItem)
	r.Delete("/carts/{id}/items", s.handleClearCart)
	r.Get("/carts/{id}/subtotal", s.handleCartSubtotal)
}

// handleOpenCart returns the caller's open cart, creating one on first use.
// Authenticated callers get their user cart; anonymous callers must send an
// X-Session-ID to key theirs.
func (s *Server) handleOpenCart(w http.ResponseWriter, r *http.Request) {
	b, err := tenant.Current(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if userID, ok := strings.CutPrefix(b.Actor, "user:"); ok {
		c, err := s.manager.Carts().GetOrCreateForUser(r.Context(), userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
		return
	}
	sessionID := r.Header.Get("X-Session-ID")
	if sessionID == "" {
		writeError(w, r, errdefs.Validationf("anonymous carts require an X-Session-ID header"))
		return
	}
	c, err := s.manager.Carts().GetOrCreateForSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	c, err := s.manager.Carts().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleAddCartItem(w http.ResponseWriter, r *http.Request) {
	var in struct {
		VariantID string `json:"variant_id"`
		Qty       int    `json:"qty"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.manager.Carts().AddItem(r.Context(), chi.URLParam(r, "id"), in.VariantID, in.Qty)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Qty int `json:"qty"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.manager.Carts().UpdateQty(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemID"), in.Qty)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	c, err := s.manager.Carts().RemoveItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleClearCart(w http.ResponseWriter, r *http.Request) {
	c, err := s.manager.Carts().Clear(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCartSubtotal(w http.ResponseWriter, r *http.Request) {
	subtotal, err := s.manager.Carts().Subtotal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"subtotal_cents": subtotal})
}
