package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func healthy(context.Context) error { return nil }

func broken(context.Context) error { return errors.New("dial tcp 10.1.2.3:5432: connection refused") }

func TestHealthChecker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		db         Pinger
		redis      Pinger
		query      string
		wantStatus int
		wantBody   string
		wantChecks map[string]string
	}{
		{
			name:       "basic mode skips checks",
			db:         PingFunc(broken),
			wantStatus: http.StatusOK,
			wantBody:   "healthy",
		},
		{
			name:       "extended all healthy",
			db:         PingFunc(healthy),
			redis:      PingFunc(healthy),
			query:      "?mode=extended",
			wantStatus: http.StatusOK,
			wantBody:   "healthy",
			wantChecks: map[string]string{"database": "healthy", "redis": "healthy"},
		},
		{
			name:       "extended without redis",
			db:         PingFunc(healthy),
			query:      "?mode=extended",
			wantStatus: http.StatusOK,
			wantBody:   "healthy",
			wantChecks: map[string]string{"database": "healthy", "redis": "not configured"},
		},
		{
			name:       "extended database down",
			db:         PingFunc(broken),
			redis:      PingFunc(healthy),
			query:      "?mode=extended",
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "unhealthy",
			wantChecks: map[string]string{"database": "unhealthy", "redis": "healthy"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewHealthChecker(tt.db, tt.redis)
			w := httptest.NewRecorder()
			h.HealthCheck(w, httptest.NewRequest("GET", "/healthz"+tt.query, nil))

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			var resp HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if resp.Status != tt.wantBody {
				t.Errorf("Expected status %q, got %q", tt.wantBody, resp.Status)
			}
			if len(resp.Checks) != len(tt.wantChecks) {
				t.Fatalf("Expected %d checks, got %v", len(tt.wantChecks), resp.Checks)
			}
			for k, v := range tt.wantChecks {
				if resp.Checks[k] != v {
					t.Errorf("Expected check[%s] = %s, got %s", k, v, resp.Checks[k])
				}
			}
		})
	}
}

func TestVersionInfo(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	VersionInfo(w, httptest.NewRequest("GET", "/version", nil))

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["version"] != Version {
		t.Errorf("Expected version %q, got %q", Version, body["version"])
	}
}
