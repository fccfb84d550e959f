package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cuemby/agora/pkg/media"
)

func (s *Server) mediaRoutes(r chi.Router) {
	r.Post("/media/uploads", s.handleNegotiateUpload)
	r.Post("/media/assets/{id}/complete", s.handleCompleteUpload)
	r.Get("/media/assets", s.handleListAssets)
	r.Get("/media/assets/{id}", s.handleGetAsset)
	r.Get("/media/assets/{id}/download", s.handleAssetDownload)
}

// handleNegotiateUpload hands the client a presigned PUT; the bytes never
// pass through this handler.
func (s *Server) handleNegotiateUpload(w http.ResponseWriter, r *http.Request) {
	var in media.NegotiateInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	ticket, err := s.manager.Media().NegotiateUpload(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

func (s *Server) handleCompleteUpload(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Checksum string `json:"checksum"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	asset, err := s.manager.Media().CompleteUpload(r.Context(), chi.URLParam(r, "id"), in.Checksum)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.manager.Media().ListAssets(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, assets, len(assets), time.Now().UTC())
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	asset, err := s.manager.Media().GetAsset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

// handleAssetDownload mints a signed URL; type selects a derivative.
func (s *Server) handleAssetDownload(w http.ResponseWriter, r *http.Request) {
	url, err := s.manager.Media().SignedDownload(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
