package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/metrics"
	"github.com/cuemby/agora/pkg/types"
)

// idempotencyKeyHeader opts a mutation into stored-result replay.
const idempotencyKeyHeader = "Idempotency-Key"

// idempotency replays stored results for repeated mutation keys. The request
// hash covers method, path and body: the same key with a different request
// is a conflict, never a silent replay of someone else's result.
func (s *Server) idempotency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(idempotencyKeyHeader)
		if key == "" || !mutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, r, errdefs.Validationf("read request body: %v", err))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		hash := requestHash(r.Method, r.URL.Path, body)

		rec, err := s.manager.Guard().GetIdempotencyRecord(r.Context(), key)
		switch {
		case err == nil && time.Now().UTC().Before(rec.ExpiresAt):
			if rec.RequestHash != hash {
				writeError(w, r, errdefs.Conflictf("idempotency key %q was used with a different request", key))
				return
			}
			metrics.IdempotentReplays.Inc()
			replay(w, rec)
			return
		case err != nil && !errdefs.IsNotFound(err):
			writeError(w, r, err)
			return
		}

		// Miss, or a record past retention the reconciler has not purged
		// yet: execute and store the fresh result.
		rw := &recordingWriter{ResponseWriter: w}
		next.ServeHTTP(rw, r)

		if rw.status >= http.StatusInternalServerError {
			return
		}
		now := time.Now().UTC()
		putErr := s.manager.Guard().PutIdempotencyRecord(r.Context(), &types.IdempotencyRecord{
			Key:         key,
			RequestHash: hash,
			StatusCode:  rw.status,
			Body:        rw.buf.Bytes(),
			CreatedAt:   now,
			ExpiresAt:   now.Add(s.manager.Config().Idempotency.Retention.Std()),
		})
		if putErr != nil {
			s.logger.Warn().Err(putErr).Str("key", key).Msg("idempotency record not stored")
		}
	})
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func requestHash(method, path string, body []byte) string {
	h := sha256.New()
	io.WriteString(h, method)
	h.Write([]byte{'\n'})
	io.WriteString(h, path)
	h.Write([]byte{'\n'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// replay writes a stored result back out, byte for byte.
func replay(w http.ResponseWriter, rec *types.IdempotencyRecord) {
	ct := "application/json"
	if rec.StatusCode >= http.StatusBadRequest {
		ct = "application/problem+json"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Idempotency-Replayed", "true")
	w.WriteHeader(rec.StatusCode)
	w.Write(rec.Body)
}

// recordingWriter captures status and body while passing them through.
type recordingWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (rw *recordingWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recordingWriter) Write(p []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	rw.buf.Write(p)
	return rw.ResponseWriter.Write(p)
}
