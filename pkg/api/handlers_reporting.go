package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cuemby/agora/pkg/errdefs"
)

func (s *Server) reportingRoutes(r chi.Router) {
	r.Post("/reports/refresh", s.handleRequestRefresh)
	r.Post("/reports/exports", s.handleRequestExport)
	r.Get("/reports/jobs", s.handleListReportJobs)
	r.Get("/reports/jobs/{id}", s.handleGetReportJob)
	r.Get("/reports/sales-daily", s.handleSalesDaily)
}

func (s *Server) handleRequestRefresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		AggregateType string    `json:"aggregate_type"`
		PeriodStart   time.Time `json:"period_start"`
		PeriodEnd     time.Time `json:"period_end"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	job, err := s.manager.Reporting().RequestRefresh(r.Context(), in.AggregateType, in.PeriodStart, in.PeriodEnd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleRequestExport(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ReportType string            `json:"report_type"`
		Format     string            `json:"format"`
		Params     map[string]string `json:"params,omitempty"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	job, err := s.manager.Reporting().RequestExport(r.Context(), in.ReportType, in.Format, in.Params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListReportJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.manager.Reporting().ListJobs(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, jobs, len(jobs), time.Now().UTC())
}

func (s *Server) handleGetReportJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.manager.Reporting().GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleSalesDaily reads the materialized aggregate. The list's freshness
// stamp is the aggregate's last rebuild, not the request time.
func (s *Server) handleSalesDaily(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseDate(q.Get("from"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := parseDate(q.Get("to"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, refreshedAt, err := s.manager.Reporting().SalesDaily(r.Context(), from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, rows, len(rows), refreshedAt)
}

// parseDate accepts YYYY-MM-DD or full RFC 3339.
func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errdefs.Validationf("from and to dates are required")
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errdefs.Validationf("malformed date %q, want YYYY-MM-DD or RFC 3339", raw)
	}
	return t, nil
}
