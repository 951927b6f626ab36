package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/benvon/crm-tools/internal/security"
	"github.com/benvon/crm-tools/internal/tools"
)

// StatusCode maps an Invoke error onto an HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, security.ErrValidation), errors.Is(err, security.ErrInvalidFieldName):
		return http.StatusBadRequest
	case errors.Is(err, security.ErrUnauthorizedTable):
		return http.StatusForbidden
	case errors.Is(err, tools.ErrUnknownTool), errors.Is(err, tools.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, security.ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text that may be shown to the caller. Internal failures are
// reduced to a generic message; the detail stays in the logs.
func PublicMessage(err error) string {
	var (
		verr  *security.ValidationError
		ferr  *security.InvalidFieldNameError
		terr  *security.UnauthorizedTableError
		cause = err
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		cause = verr
	case errors.As(err, &ferr):
		cause = ferr
	case errors.As(err, &terr):
		cause = terr
	case errors.Is(err, tools.ErrNotFound), errors.Is(err, tools.ErrUnknownTool):
		// already safe: built from validated ids and the registry name
	case errors.Is(err, security.ErrRateLimitExceeded):
		return "Rate limit exceeded. Please try again later."
	case errors.Is(err, context.DeadlineExceeded):
		return "Tool execution timed out"
	default:
		return "Internal server error"
	}
	return cause.Error()
}

func isClientError(err error) bool {
	code := StatusCode(err)
	return code >= 400 && code < 500
}
