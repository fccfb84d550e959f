package api

import (
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/cuemby/agora/pkg/errdefs"
)

// handleObjectGet serves a download against a URL signed by objstore.Local.
// The signature covers method, key and expiry, so no tenant binding is
// needed here; possession of an unexpired URL is the authorization.
func (s *Server) handleObjectGet(w http.ResponseWriter, r *http.Request) {
	key, err := objectKey(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	if err := s.objects.VerifySignature(http.MethodGet, key, q.Get("exp"), q.Get("sig")); err != nil {
		writeError(w, r, err)
		return
	}
	rc, err := s.objects.Download(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("object download interrupted")
	}
}

// handleObjectPut accepts a presigned upload.
func (s *Server) handleObjectPut(w http.ResponseWriter, r *http.Request) {
	key, err := objectKey(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	if err := s.objects.VerifySignature(http.MethodPut, key, q.Get("exp"), q.Get("sig")); err != nil {
		writeError(w, r, err)
		return
	}
	if max := s.manager.Config().Media.MaxUploadBytes; max > 0 && r.ContentLength > max {
		writeError(w, r, errdefs.Validationf("object exceeds the %d byte upload limit", max))
		return
	}
	if err := s.objects.Upload(r.Context(), key, r.Body, r.Header.Get("Content-Type"), r.ContentLength); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// objectKey recovers the storage key from the wildcard path segment. chi
// hands back the escaped form when the URL carried one.
func objectKey(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "*")
	key, err := url.PathUnescape(raw)
	if err != nil {
		return "", errdefs.Validationf("malformed object key %q", raw)
	}
	return key, nil
}
