package gateway

import (
	"fmt"
	"strings"

	"github.com/ulule/limiter/v3"

	"github.com/benvon/crm-tools/internal/security"
)

// ApplyRate overrides the window and ceiling of base with a rate in the operator format
// shared with the transport limiter ("100-M", "5-S", "1000-H"). An empty rate returns base.
func ApplyRate(base security.RateLimitConfig, rate string) (security.RateLimitConfig, error) {
	rate = strings.TrimSpace(rate)
	if rate == "" {
		return base, nil
	}
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return base, fmt.Errorf("invalid tool rate %q: %w", rate, err)
	}
	if parsed.Limit <= 0 {
		return base, fmt.Errorf("invalid tool rate %q: limit must be positive", rate)
	}
	base.Window = parsed.Period
	base.MaxRequests = int(parsed.Limit)
	return base, nil
}
