package models

import "time"

// CorsConfig holds the CORS policy applied to browser callers of the tool API.
type CorsConfig struct {
	ConfigKey        string    `json:"config_key" yaml:"config_key"`
	AllowedOrigins   string    `json:"allowed_origins" yaml:"allowed_origins"` // Comma-separated
	AllowCredentials bool      `json:"allow_credentials" yaml:"allow_credentials"`
	MaxAge           int       `json:"max_age" yaml:"max_age"`
	CreatedAt        time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" yaml:"updated_at"`
}
