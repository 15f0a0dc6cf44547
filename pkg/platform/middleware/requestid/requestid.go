// Package requestid assigns a correlation ID to each HTTP request.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"namehaus/pkg/requestcontext"
)

const Header = "X-Request-ID"

// Middleware reuses an inbound X-Request-ID or generates a fresh UUID, and
// echoes it on the response for correlation with emitted events and logs.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(Header)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		w.Header().Set(Header, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
