package middleware

import (
	"net/http"

	"github.com/benvon/crm-tools/internal/request"
)

// ClientKey resolves the rate-limit key once per request and stores it in the context
// for the limiters, audit log and tool handlers.
func ClientKey(resolver *request.KeyResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := resolver.Key(r)
			next.ServeHTTP(w, r.WithContext(request.WithClientKey(r.Context(), key)))
		})
	}
}
