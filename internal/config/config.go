package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	DatabaseURL     string
	ServerPort      string
	FrontendURL     string
	EnableHSTS      bool
	RedisURL        string
	ServerDebugMode bool
	OTELEnabled     bool
	OTELEndpoint    string
	// OTELSampleRatio is the fraction of new traces sampled; 1 records all.
	OTELSampleRatio float64

	// MaxQueryRows caps the limit argument of every tool.
	MaxQueryRows int
	// ToolTimeout bounds a single tool handler call.
	ToolTimeout time.Duration

	// Per-client tool call limiter (fixed window, in process).
	RateLimitMaxRequests   int
	RateLimitWindow        time.Duration
	RateLimitSweepInterval time.Duration
	RateLimitMaxKeys       int

	// TransportRateLimit is the default HTTP rate in ulule/limiter format, e.g. "50-S".
	// A row in ratelimit_config overrides it at runtime.
	TransportRateLimit string

	// TrustedProxies lists CIDRs whose X-Forwarded-For and X-Client-ID headers are
	// honoured for rate-limit keys. Other peers are keyed by their own address.
	TrustedProxies []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		FrontendURL:     getEnv("FRONTEND_URL", "http://localhost:3000"),
		EnableHSTS:      getEnvBool("ENABLE_HSTS", false),
		RedisURL:        getEnv("REDIS_URL", ""),
		ServerDebugMode: getEnvBool("SERVER_DEBUG_MODE", false),
		OTELEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELSampleRatio: getEnvFloat("OTEL_TRACES_SAMPLER_ARG", 1),

		MaxQueryRows: getEnvInt("MAX_QUERY_ROWS", 1000),
		ToolTimeout:  getEnvDuration("TOOL_TIMEOUT", 15*time.Second),

		RateLimitMaxRequests:   getEnvInt("RATE_LIMIT_MAX_REQUESTS", 100),
		RateLimitWindow:        getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitSweepInterval: getEnvDuration("RATE_LIMIT_SWEEP_INTERVAL", 5*time.Minute),
		RateLimitMaxKeys:       getEnvInt("RATE_LIMIT_MAX_KEYS", 100000),

		TransportRateLimit: getEnv("TRANSPORT_RATE_LIMIT", "50-S"),
		TrustedProxies:     getEnvList("TRUSTED_PROXIES"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.MaxQueryRows <= 0 {
		return nil, fmt.Errorf("MAX_QUERY_ROWS must be positive, got %d", cfg.MaxQueryRows)
	}

	if cfg.RateLimitMaxRequests <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_MAX_REQUESTS must be positive, got %d", cfg.RateLimitMaxRequests)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvDuration accepts Go duration strings ("90s", "5m") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
