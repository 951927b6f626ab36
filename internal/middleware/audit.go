package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	logpkg "github.com/benvon/crm-tools/internal/logger"
	"github.com/benvon/crm-tools/internal/request"
)

// toolPathPrefix is the route prefix of tool invocations.
const toolPathPrefix = "/api/v1/tools/"

// Audit logs security-related events for monitoring and compliance
func Audit(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			statusCode := wrapped.statusCode
			fields := []zap.Field{
				zap.Int("status_code", statusCode),
				zap.String("method", r.Method),
				zap.String("path", logpkg.SanitizePath(r.URL.Path)),
				zap.String("client", logpkg.SanitizeClientKey(request.ClientKey(r))),
				zap.String("request_id", request.RequestID(r.Context())),
			}

			switch {
			case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
				// Forbidden covers table access outside the allow-list
				logger.Warn("security_event", fields...)
			case statusCode == http.StatusTooManyRequests:
				logger.Warn("rate_limit_violation", fields...)
			case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, toolPathPrefix) &&
				statusCode >= 400 && statusCode < 500:
				logger.Warn("tool_call_rejected", fields...)
			}
		})
	}
}
