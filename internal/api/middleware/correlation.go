package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"
)

// CorrelationHeader carries the request correlation id between producers and
// the ingress.
const CorrelationHeader = "X-Correlation-ID"

const correlationIDBytes = 8

type correlationIDKey struct{}

// CorrelationID attaches a correlation id to every request. A producer may
// supply its own via the header; otherwise one is generated. The id is echoed
// on the response so producers can quote it in support requests.
func CorrelationID() Option {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(CorrelationHeader)
			if id == "" {
				id = newCorrelationID()
			}

			w.Header().Set(CorrelationHeader, id)

			ctx := context.WithValue(r.Context(), correlationIDKey{}, id)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCorrelationID returns the correlation id stored in ctx, or "unknown"
// outside the middleware chain.
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}

	return "unknown"
}

// newCorrelationID returns a random hex id, falling back to a timestamp if
// the entropy source fails.
func newCorrelationID() string {
	buf := make([]byte, correlationIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%016x", time.Now().UnixNano())
	}

	return hex.EncodeToString(buf)
}
