package middleware

import (
	"net/http"

	apperrors "github.com/subwire/agentpay/internal/errors"
	"github.com/subwire/agentpay/internal/httputil"
)

const (
	// DefaultMaxBodySize caps request bodies; spend permissions and message
	// payloads are small, so 1MB leaves ample headroom.
	DefaultMaxBodySize = 1 << 20
)

// BodyLimitMiddleware rejects oversized request bodies before the handlers
// decode them.
type BodyLimitMiddleware struct {
	maxSize int64
}

func NewBodyLimitMiddleware(maxSize int64) *BodyLimitMiddleware {
	if maxSize <= 0 {
		maxSize = DefaultMaxBodySize
	}
	return &BodyLimitMiddleware{maxSize: maxSize}
}

func (m *BodyLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil && r.ContentLength > m.maxSize {
			writeJSON(w, http.StatusRequestEntityTooLarge, httputil.ErrorResponse{
				Error: "Request body too large",
				Code:  apperrors.ErrCodeValidation,
			})
			return
		}

		// Chunked requests have no Content-Length; the reader enforces the
		// cap as the handlers consume the body.
		r.Body = http.MaxBytesReader(w, r.Body, m.maxSize)
		next.ServeHTTP(w, r)
	})
}
