package middleware

import (
	"context"
	"net/http"
	"time"
)

const (
	// DefaultRequestTimeout is the default request timeout (30 seconds)
	DefaultRequestTimeout = 30 * time.Second
)

// timeoutBody is the JSON body written by http.TimeoutHandler when a request runs too long.
const timeoutBody = `{"success":false,"error":"Gateway Timeout","message":"Request timed out"}`

// Timeout enforces an overall deadline on request handlers. It should be longer than the
// per-tool timeout so the tool layer reports its own 504 first.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			r = r.WithContext(ctx)

			handler := http.TimeoutHandler(next, timeout, timeoutBody)
			handler.ServeHTTP(w, r)
		})
	}
}
