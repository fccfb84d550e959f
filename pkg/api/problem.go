package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/log"
	"github.com/cuemby/agora/pkg/tenant"
)

// problem is an RFC 7807 document plus the platform's extension members.
// Every error response except the fixed suspended-store body uses it.
type problem struct {
	Type            string `json:"type"`
	Title           string `json:"title"`
	Status          int    `json:"status"`
	Detail          string `json:"detail,omitempty"`
	TenantID        string `json:"tenantId,omitempty"`
	TraceID         string `json:"traceId,omitempty"`
	ImpersonationID string `json:"impersonationId,omitempty"`
	FeatureFlag     string `json:"featureFlag,omitempty"`
	Remediation     string `json:"remediation,omitempty"`
}

// statusError pins an exact HTTP status onto an error outside the errdefs
// taxonomy. Auth failures are the main producer.
type statusError struct {
	status int
	detail string
}

func (e *statusError) Error() string { return e.detail }

func errStatus(status int, format string, args ...any) error {
	return &statusError{status: status, detail: fmt.Sprintf(format, args...)}
}

// flaggedError names the feature flag a failure relates to, so the problem
// document can carry it in the featureFlag member.
type flaggedError struct {
	err  error
	flag string
}

func (e *flaggedError) Error() string { return e.err.Error() }
func (e *flaggedError) Unwrap() error { return e.err }

func withFlag(err error, flag string) error {
	if err == nil {
		return nil
	}
	return &flaggedError{err: err, flag: flag}
}

// writeError renders err as a problem document. A suspended store is the one
// exception: its body is fixed and tenant-free, whatever else is known about
// the request.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errdefs.IsStoreSuspended(err) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"store_suspended"}`))
		return
	}

	status := errdefs.HTTPStatus(err)
	detail := err.Error()

	var se *statusError
	if errors.As(err, &se) {
		status = se.status
		detail = se.detail
	}

	switch {
	case status == http.StatusServiceUnavailable:
		detail = "temporarily unavailable, retry shortly"
	case status >= http.StatusInternalServerError:
		// Internal failures never leak their cause to the caller.
		lg := log.WithComponent("api")
		lg.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		detail = "internal error"
	}

	p := problem{
		Type:        "about:blank",
		Title:       http.StatusText(status),
		Status:      status,
		Detail:      detail,
		TraceID:     middleware.GetReqID(r.Context()),
		Remediation: remediationFor(status),
	}
	if b, berr := tenant.Current(r.Context()); berr == nil {
		p.TenantID = b.Tenant.ID
		p.ImpersonationID = b.ImpersonationID
	}
	var fe *flaggedError
	if errors.As(err, &fe) {
		p.FeatureFlag = fe.flag
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(p); encErr != nil {
		lg := log.WithComponent("api")
		lg.Error().Err(encErr).Msg("encode problem document")
	}
}

// remediationFor maps statuses with an obvious caller-side fix to a hint.
func remediationFor(status int) string {
	switch status {
	case http.StatusPaymentRequired:
		return "raise the quota or free capacity, then retry"
	case http.StatusConflict:
		return "reload the resource and retry against its current version"
	case http.StatusTooManyRequests:
		return "retry after the time given by X-RateLimit-Reset"
	case http.StatusServiceUnavailable:
		return "retry with backoff"
	default:
		return ""
	}
}

// writeJSON renders v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		lg := log.WithComponent("api")
		lg.Error().Err(err).Msg("encode response body")
	}
}

// maxBodyBytes bounds every decoded request body.
const maxBodyBytes = 1 << 20

// decodeJSON reads the request body into dst. Failures read as validation
// errors so they map to 400.
func decodeJSON(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return errdefs.Validationf("malformed request body: %v", err)
	}
	return nil
}

// validate enforces DTO struct tags. Messages name fields by their json tag
// so callers see the name they sent.
var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

// decodeValid decodes the body and checks the DTO's validate tags. Services
// still own semantic rules; this catches structurally broken requests before
// they reach one.
func decodeValid(r *http.Request, dst any) error {
	if err := decodeJSON(r, dst); err != nil {
		return err
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			if fe.Tag() == "required" {
				return errdefs.Validationf("%s is required", fe.Field())
			}
			return errdefs.Validationf("%s failed %s validation", fe.Field(), fe.Tag())
		}
		return errdefs.Validationf("invalid request body: %v", err)
	}
	return nil
}

// listPage is the envelope every list endpoint answers with.
type listPage struct {
	Items         any               `json:"items"`
	TotalCount    int               `json:"total_count"`
	PageCount     int               `json:"page_count"`
	Links         map[string]string `json:"links"`
	DataFreshness time.Time         `json:"data_freshness_timestamp"`
}

// writeList renders a single-page list. Live reads pass time.Now as the
// freshness stamp; report-backed lists pass the aggregate's refresh time.
func writeList(w http.ResponseWriter, r *http.Request, items any, total int, freshness time.Time) {
	writeJSON(w, http.StatusOK, listPage{
		Items:         items,
		TotalCount:    total,
		PageCount:     1,
		Links:         map[string]string{"self": r.URL.RequestURI()},
		DataFreshness: freshness,
	})
}

// writePagedList renders one page of a paginated list with next/prev links.
func writePagedList(w http.ResponseWriter, r *http.Request, items any, total, pageCount, page int, freshness time.Time) {
	links := map[string]string{"self": r.URL.RequestURI()}
	if page < pageCount {
		links["next"] = pageURI(r, page+1)
	}
	if page > 1 {
		links["prev"] = pageURI(r, page-1)
	}
	writeJSON(w, http.StatusOK, listPage{
		Items:         items,
		TotalCount:    total,
		PageCount:     pageCount,
		Links:         links,
		DataFreshness: freshness,
	})
}

func pageURI(r *http.Request, page int) string {
	u := *r.URL
	q := u.Query()
	q.Set("page", fmt.Sprintf("%d", page))
	u.RawQuery = q.Encode()
	return u.RequestURI()
}
