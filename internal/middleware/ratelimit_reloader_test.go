package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/benvon/crm-tools/internal/models"
	"github.com/benvon/crm-tools/internal/request"
)

type fakeRatelimitStore struct {
	mu     sync.Mutex
	rows   map[string]*models.RatelimitConfig
	getErr error
	saved  []string
}

func (f *fakeRatelimitStore) Get(_ context.Context, scope string) (*models.RatelimitConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.rows[scope], nil
}

func (f *fakeRatelimitStore) Set(_ context.Context, c *models.RatelimitConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rows == nil {
		f.rows = map[string]*models.RatelimitConfig{}
	}
	f.rows[c.ConfigKey] = c
	f.saved = append(f.saved, c.ConfigKey+"="+c.Rate)
	return nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func proxyResolver(t *testing.T) *request.KeyResolver {
	t.Helper()
	resolver, err := request.NewKeyResolver([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatalf("NewKeyResolver: %v", err)
	}
	return resolver
}

func doRequestFrom(h http.Handler, remote, clientID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/v1/tools/list_clients", nil)
	req.RemoteAddr = remote
	if clientID != "" {
		req.Header.Set(request.ClientIDHeader, clientID)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// doRequest sends a request through a trusted proxy address.
func doRequest(h http.Handler, clientID string) *httptest.ResponseRecorder {
	return doRequestFrom(h, "10.0.0.1:1234", clientID)
}

func TestRateLimitReloader_UsesStoredTransportRate(t *testing.T) {
	t.Parallel()

	repo := &fakeRatelimitStore{rows: map[string]*models.RatelimitConfig{
		models.RatelimitScopeTransport: {ConfigKey: models.RatelimitScopeTransport, Rate: "2-M"},
	}}
	rl, err := NewRateLimitReloader(nil, repo, "100-S", nil, 0)
	if err != nil {
		t.Fatalf("NewRateLimitReloader: %v", err)
	}
	h := ClientKey(proxyResolver(t))(rl.Middleware()(okHandler()))

	if got := rl.Rate().Limit; got != 2 {
		t.Fatalf("Expected stored limit 2, got %d", got)
	}
	for i := 0; i < 2; i++ {
		if w := doRequest(h, "bot-a"); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}

	w := doRequest(h, "bot-a")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", w.Code)
	}
	var body ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Success || body.Error != "Too Many Requests" {
		t.Errorf("Unexpected body: %+v", body)
	}

	// Another client has its own counter
	if w := doRequest(h, "bot-b"); w.Code != http.StatusOK {
		t.Errorf("Expected other client to pass, got %d", w.Code)
	}
}

func TestRateLimitReloader_UntrustedClientIDsShareWindow(t *testing.T) {
	t.Parallel()

	repo := &fakeRatelimitStore{rows: map[string]*models.RatelimitConfig{
		models.RatelimitScopeTransport: {ConfigKey: models.RatelimitScopeTransport, Rate: "2-M"},
	}}
	rl, err := NewRateLimitReloader(nil, repo, "100-S", nil, 0)
	if err != nil {
		t.Fatalf("NewRateLimitReloader: %v", err)
	}
	h := ClientKey(proxyResolver(t))(rl.Middleware()(okHandler()))

	allowed := 0
	for i := 0; i < 10; i++ {
		if w := doRequestFrom(h, "192.0.2.50:999", fmt.Sprintf("rotating-%d", i)); w.Code == http.StatusOK {
			allowed++
		}
	}
	if allowed != 2 {
		t.Errorf("Expected 2 requests allowed for one peer, got %d", allowed)
	}
}

func TestRateLimitReloader_SeedsDefault(t *testing.T) {
	t.Parallel()

	repo := &fakeRatelimitStore{}
	rl, err := NewRateLimitReloader(nil, repo, "7-S", nil, 0)
	if err != nil {
		t.Fatalf("NewRateLimitReloader: %v", err)
	}
	rl.Middleware()(okHandler())

	if len(repo.saved) != 1 || repo.saved[0] != "transport=7-S" {
		t.Errorf("Expected default to be seeded, got %v", repo.saved)
	}
	if got := rl.Rate().Limit; got != 7 {
		t.Errorf("Expected limit 7, got %d", got)
	}
}

func TestRateLimitReloader_FallsBack(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		repo *fakeRatelimitStore
	}{
		{"repo error", &fakeRatelimitStore{getErr: errors.New("db down")}},
		{"unparseable stored rate", &fakeRatelimitStore{rows: map[string]*models.RatelimitConfig{
			models.RatelimitScopeTransport: {ConfigKey: models.RatelimitScopeTransport, Rate: "lots"},
		}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rl, err := NewRateLimitReloader(nil, tt.repo, "3-M", nil, 0)
			if err != nil {
				t.Fatalf("NewRateLimitReloader: %v", err)
			}
			rl.Middleware()(okHandler())
			if got := rl.Rate().Limit; got != 3 {
				t.Errorf("Expected default limit 3, got %d", got)
			}
		})
	}
}

func TestNewRateLimitReloader_RejectsBadDefault(t *testing.T) {
	t.Parallel()

	if _, err := NewRateLimitReloader(nil, nil, "fast", nil, 0); err == nil {
		t.Error("Expected error for unparseable default rate")
	}
}
