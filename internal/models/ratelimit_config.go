package models

import "time"

// Rate limit config scopes. Each scope is one row in ratelimit_config.
const (
	// RatelimitScopeTransport limits HTTP requests per client key.
	RatelimitScopeTransport = "transport"
	// RatelimitScopeTools limits tool invocations per client key.
	RatelimitScopeTools = "tools"
)

// RatelimitConfig holds rate limit configuration (e.g. "5-S", "100-M").
type RatelimitConfig struct {
	ConfigKey string    `json:"config_key" yaml:"config_key"`
	Rate      string    `json:"rate" yaml:"rate"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}
