package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/inventory"
)

func (s *Server) inventoryRoutes(r chi.Router) {
	r.Get("/inventory/levels", s.handleStockLevels)
	r.Post("/inventory/adjustments", s.handleRecordAdjustment)
	r.Get("/inventory/adjustments", s.handleListAdjustments)
	r.Post("/inventory/transfers", s.handleCreateTransfer)
	r.Get("/inventory/transfers", s.handleListTransfers)
	r.Get("/inventory/transfers/{id}", s.handleGetTransfer)
	r.Post("/inventory/transfers/{id}/receive", s.handleReceiveTransfer)
	r.Post("/inventory/transfers/{id}/cancel", s.handleCancelTransfer)
	r.Post("/inventory/locations", s.handleCreateLocation)
	r.Get("/inventory/locations", s.handleListLocations)
}

// handleStockLevels reads levels by variant, optionally narrowed to one
// location.
func (s *Server) handleStockLevels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	variantID := q.Get("variant_id")
	if variantID == "" {
		writeError(w, r, errdefs.Validationf("variant_id is required"))
		return
	}
	if locationID := q.Get("location_id"); locationID != "" {
		lvl, err := s.manager.Inventory().Level(r.Context(), variantID, locationID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, lvl)
		return
	}
	levels, err := s.manager.Inventory().LevelsByVariant(r.Context(), variantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, levels, len(levels), time.Now().UTC())
}

func (s *Server) handleRecordAdjustment(w http.ResponseWriter, r *http.Request) {
	var in inventory.AdjustmentInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	lvl, err := s.manager.Inventory().RecordAdjustment(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, lvl)
}

func (s *Server) handleListAdjustments(w http.ResponseWriter, r *http.Request) {
	adjustments, err := s.manager.Inventory().ListAdjustments(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, adjustments, len(adjustments), time.Now().UTC())
}

func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	var in struct {
		SourceID string                        `json:"source_id"`
		DestID   string                        `json:"dest_id"`
		Lines    []inventory.TransferLineInput `json:"lines"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.manager.Inventory().CreateTransfer(r.Context(), in.SourceID, in.DestID, in.Lines)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	transfers, err := s.manager.Inventory().ListTransfers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, transfers, len(transfers), time.Now().UTC())
}

func (s *Server) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	t, err := s.manager.Inventory().GetTransfer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleReceiveTransfer(w http.ResponseWriter, r *http.Request) {
	t, err := s.manager.Inventory().ReceiveTransfer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleCancelTransfer(w http.ResponseWriter, r *http.Request) {
	t, err := s.manager.Inventory().CancelTransfer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleCreateLocation(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Code string `json:"code"`
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	loc, err := s.manager.Inventory().CreateLocation(r.Context(), in.Code, in.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, loc)
}

func (s *Server) handleListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := s.manager.Inventory().ListLocations(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, locations, len(locations), time.Now().UTC())
}
