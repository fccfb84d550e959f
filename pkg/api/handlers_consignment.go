package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cuemby/agora/pkg/consignment"
	"github.com/cuemby/agora/pkg/errdefs"
)

func (s *Server) consignmentRoutes(r chi.Router) {
	r.Post("/consignors", s.handleCreateConsignor)
	r.Get("/consignors", s.handleListConsignors)
	r.Get("/consignors/{id}", s.handleGetConsignor)
	r.Put("/consignors/{id}", s.handleUpdateConsignor)
	r.Get("/consignors/{id}/items", s.handleListConsignorItems)
	r.Post("/consignment/items", s.handleIntakeItem)
	r.Get("/consignment/items/{id}", s.handleGetConsignmentItem)
	r.Post("/consignment/items/{id}/list", s.handleListItem)
	r.Post("/consignment/items/{id}/sold", s.handleItemSold)
	r.Post("/consignment/payouts", s.handleCreatePayout)
	r.Get("/consignment/payouts", s.handleListPayouts)
	r.Get("/consignment/payouts/{id}", s.handleGetPayout)
	r.Post("/consignment/payouts/{id}/complete", s.handleCompletePayout)
}

func (s *Server) handleCreateConsignor(w http.ResponseWriter, r *http.Request) {
	var in consignment.ConsignorInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.manager.Consignment().CreateConsignor(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleListConsignors(w http.ResponseWriter, r *http.Request) {
	consignors, err := s.manager.Consignment().ListConsignors(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, consignors, len(consignors), time.Now().UTC())
}

func (s *Server) handleGetConsignor(w http.ResponseWriter, r *http.Request) {
	c, err := s.manager.Consignment().GetConsignor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleUpdateConsignor(w http.ResponseWriter, r *http.Request) {
	var in struct {
		consignment.ConsignorInput
		Active bool `json:"active"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.manager.Consignment().UpdateConsignor(r.Context(), chi.URLParam(r, "id"), in.ConsignorInput, in.Active)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleListConsignorItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.manager.Consignment().ListItemsByConsignor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, items, len(items), time.Now().UTC())
}

func (s *Server) handleIntakeItem(w http.ResponseWriter, r *http.Request) {
	var in consignment.IntakeInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	item, err := s.manager.Consignment().IntakeItem(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleGetConsignmentItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.manager.Consignment().GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleListItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.manager.Consignment().MarkListed(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleItemSold(w http.ResponseWriter, r *http.Request) {
	var in struct {
		OrderID        string `json:"order_id"`
		SalePriceCents int64  `json:"sale_price_cents"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	item, err := s.manager.Consignment().MarkSold(r.Context(), chi.URLParam(r, "id"), in.OrderID, in.SalePriceCents)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleCreatePayout(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ConsignorID string    `json:"consignor_id"`
		PeriodStart time.Time `json:"period_start"`
		PeriodEnd   time.Time `json:"period_end"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if in.ConsignorID == "" {
		writeError(w, r, errdefs.Validationf("consignor_id is required"))
		return
	}
	batch, err := s.manager.Consignment().CreatePayoutBatch(r.Context(), in.ConsignorID, in.PeriodStart, in.PeriodEnd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, batch)
}

func (s *Server) handleListPayouts(w http.ResponseWriter, r *http.Request) {
	batches, err := s.manager.Consignment().ListPayoutBatches(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, batches, len(batches), time.Now().UTC())
}

func (s *Server) handleGetPayout(w http.ResponseWriter, r *http.Request) {
	batch, err := s.manager.Consignment().GetPayoutBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (s *Server) handleCompletePayout(w http.ResponseWriter, r *http.Request) {
	batch, err := s.manager.Consignment().CompletePayout(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}
