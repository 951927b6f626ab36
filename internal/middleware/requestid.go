package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/benvon/crm-tools/internal/request"
	"github.com/benvon/crm-tools/internal/security"
)

// RequestID attaches a request id to the context and response. A well-formed incoming
// X-Request-ID is reused; anything else is replaced with a new UUID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(request.RequestIDHeader)
		if _, err := security.ValidateIdentifier("request_id", id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(request.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(request.WithRequestID(r.Context(), id)))
	})
}
