package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cuemby/agora/pkg/catalog"
)

func (s *Server) catalogRoutes(r chi.Router) {
	r.Get("/products", s.handleListProducts)
	r.Post("/products", s.handleCreateProduct)
	r.Get("/products/sku/{sku}", s.handleGetProductBySKU)
	r.Get("/products/{id}", s.handleGetProduct)
	r.Put("/products/{id}", s.handleUpdateProduct)
	r.Delete("/products/{id}", s.handleDeleteProduct)
	r.Post("/products/{id}/archive", s.handleArchiveProduct)
	r.Post("/products/{id}/variants", s.handleCreateVariant)
	r.Get("/products/{id}/variants", s.handleListVariants)
}

// handleListProducts serves both the plain listing and keyword search. A q,
// page or size parameter switches to the cached search path.
func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Has("q") || q.Has("page") || q.Has("size") {
		page, _ := strconv.Atoi(q.Get("page"))
		size, _ := strconv.Atoi(q.Get("size"))
		res, err := s.manager.Catalog().Search(r.Context(), q.Get("q"), page, size)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writePagedList(w, r, res.Items, res.TotalCount, res.PageCount, res.Page, res.GeneratedAt)
		return
	}

	products, err := s.manager.Catalog().ListProducts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, products, len(products), time.Now().UTC())
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.CreateProductInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.manager.Catalog().CreateProduct(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.manager.Catalog().GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleGetProductBySKU(w http.ResponseWriter, r *http.Request) {
	p, err := s.manager.Catalog().GetProductBySKU(r.Context(), chi.URLParam(r, "sku"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.UpdateProductInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.manager.Catalog().UpdateProduct(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Catalog().DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleArchiveProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.manager.Catalog().ArchiveProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCreateVariant(w http.ResponseWriter, r *http.Request) {
	var in catalog.VariantInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.manager.Catalog().CreateVariant(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleListVariants(w http.ResponseWriter, r *http.Request) {
	variants, err := s.manager.Catalog().ListVariants(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, variants, len(variants), time.Now().UTC())
}
