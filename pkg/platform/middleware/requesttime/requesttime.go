// Package requesttime stamps each HTTP request with a single "now" so every
// timing check within one call sees the same instant.
package requesttime

import (
	"net/http"
	"time"

	"namehaus/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request and stores
// it in the context. Commitment age, auction deadline, and timelock
// comparisons downstream all read this value.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
