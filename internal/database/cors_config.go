package database

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/benvon/crm-tools/internal/models"
)

const defaultCorsConfigKey = "default"

// CorsConfigRepository stores the browser CORS policy for the tool API.
type CorsConfigRepository struct {
	db Querier
}

// NewCorsConfigRepository creates a CORS config repository on db.
func NewCorsConfigRepository(db Querier) *CorsConfigRepository {
	return &CorsConfigRepository{db: db}
}

// Get returns the stored policy, or nil when none has been set.
func (r *CorsConfigRepository) Get(ctx context.Context) (*models.CorsConfig, error) {
	row, err := r.db.QueryOne(ctx, `
		SELECT config_key, allowed_origins, allow_credentials, max_age, created_at, updated_at
		FROM cors_config WHERE config_key = ?
	`, defaultCorsConfigKey)
	if err != nil {
		return nil, fmt.Errorf("get cors config: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	c := &models.CorsConfig{}
	c.ConfigKey, _ = row["config_key"].(string)
	c.AllowedOrigins, _ = row["allowed_origins"].(string)
	c.AllowCredentials, _ = row["allow_credentials"].(bool)
	switch n := row["max_age"].(type) {
	case int64:
		c.MaxAge = int(n)
	case int:
		c.MaxAge = n
	}
	c.CreatedAt, _ = row["created_at"].(time.Time)
	c.UpdatedAt, _ = row["updated_at"].(time.Time)
	return c, nil
}

// Set validates and upserts the policy. AllowedOrigins is stored normalized: trimmed,
// de-duplicated and comma-joined.
func (r *CorsConfigRepository) Set(ctx context.Context, c *models.CorsConfig) error {
	origins, err := ValidateCorsOrigins(c.AllowedOrigins)
	if err != nil {
		return err
	}
	if c.MaxAge < 0 {
		return fmt.Errorf("max_age must not be negative, got %d", c.MaxAge)
	}
	if c.AllowCredentials && len(origins) == 1 && origins[0] == "*" {
		return fmt.Errorf("allow_credentials cannot be combined with a wildcard origin")
	}
	now := time.Now()
	_, err = r.db.Exec(ctx, `
		INSERT INTO cors_config (config_key, allowed_origins, allow_credentials, max_age, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (config_key) DO UPDATE SET
			allowed_origins = EXCLUDED.allowed_origins,
			allow_credentials = EXCLUDED.allow_credentials,
			max_age = EXCLUDED.max_age,
			updated_at = EXCLUDED.updated_at
	`, defaultCorsConfigKey, strings.Join(origins, ","), c.AllowCredentials, c.MaxAge, now, now)
	if err != nil {
		return fmt.Errorf("set cors config: %w", err)
	}
	return nil
}

// ValidateCorsOrigins splits raw and checks each entry is "*" or a scheme://host[:port]
// origin without path, query or credentials.
func ValidateCorsOrigins(raw string) ([]string, error) {
	origins := AllowedOriginsSlice(raw)
	if len(origins) == 0 {
		return nil, fmt.Errorf("allowed_origins cannot be empty")
	}
	for _, o := range origins {
		if o == "*" {
			if len(origins) > 1 {
				return nil, fmt.Errorf("wildcard origin cannot be combined with other origins")
			}
			continue
		}
		u, err := url.Parse(o)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("invalid origin %q: expected http(s)://host[:port]", o)
		}
		if u.Path != "" || u.RawQuery != "" || u.Fragment != "" || u.User != nil {
			return nil, fmt.Errorf("invalid origin %q: must not carry a path, query or credentials", o)
		}
	}
	return origins, nil
}

// AllowedOriginsSlice splits a comma-separated origin list, trimming blanks and
// dropping duplicates while keeping first-seen order.
func AllowedOriginsSlice(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, p := range strings.Split(raw, ",") {
		s := strings.TrimSpace(p)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
