package security

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultRateLimitWindow is the length of one counting window.
	DefaultRateLimitWindow = 60 * time.Second
	// DefaultRateLimitMaxRequests is the number of requests admitted per window.
	DefaultRateLimitMaxRequests = 100
	// DefaultRateLimitSweepInterval is how often Start drops stale entries.
	DefaultRateLimitSweepInterval = 5 * time.Minute
)

// Limiter decides whether a request from key at time now may proceed.
type Limiter interface {
	Allow(key string, now time.Time) bool
}

// RateLimitEntry is the ledger record for one client key.
type RateLimitEntry struct {
	Count     int
	ResetTime time.Time
}

// RateLimitConfig configures a RateLimiter. Zero values select the defaults.
type RateLimitConfig struct {
	Window        time.Duration
	MaxRequests   int
	SweepInterval time.Duration
	// MaxKeys bounds the number of tracked keys. Zero means unbounded. When every slot
	// holds a live window, requests from new keys are denied until one expires.
	MaxKeys int
}

// RateLimiter is a fixed-window counter per key. It is safe for concurrent use.
//
// A window is current while now <= ResetTime. The first request after that replaces the
// entry instead of incrementing it, so bursts of up to 2x MaxRequests are possible across
// a window boundary.
type RateLimiter struct {
	window        time.Duration
	maxRequests   int
	sweepInterval time.Duration
	maxKeys       int

	mu      sync.Mutex
	entries map[string]*RateLimitEntry
}

var _ Limiter = (*RateLimiter)(nil)

// NewRateLimiter creates a RateLimiter from cfg.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.Window <= 0 {
		cfg.Window = DefaultRateLimitWindow
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = DefaultRateLimitMaxRequests
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultRateLimitSweepInterval
	}
	if cfg.MaxKeys < 0 {
		cfg.MaxKeys = 0
	}
	return &RateLimiter{
		window:        cfg.Window,
		maxRequests:   cfg.MaxRequests,
		sweepInterval: cfg.SweepInterval,
		maxKeys:       cfg.MaxKeys,
		entries:       make(map[string]*RateLimitEntry),
	}
}

// Window returns the configured window length.
func (l *RateLimiter) Window() time.Duration { return l.window }

// MaxRequests returns the configured per-window ceiling.
func (l *RateLimiter) MaxRequests() int { return l.maxRequests }

// Allow records a request for key at now and reports whether it is admitted.
// A denied request leaves the entry unchanged.
func (l *RateLimiter) Allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok || now.After(entry.ResetTime) {
		if !ok && !l.makeRoomLocked(now) {
			return false
		}
		l.entries[key] = &RateLimitEntry{Count: 1, ResetTime: now.Add(l.window)}
		return true
	}

	if entry.Count < l.maxRequests {
		entry.Count++
		return true
	}
	return false
}

// Entry returns a copy of the ledger entry for key.
func (l *RateLimiter) Entry(key string) (RateLimitEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	if !ok {
		return RateLimitEntry{}, false
	}
	return *entry, true
}

// Len returns the number of tracked keys.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Sweep drops entries whose window ended more than one window before now and returns
// how many were removed. Such an entry would be overwritten on its next request anyway,
// so removing it does not change any Allow decision.
func (l *RateLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweepLocked(now.Add(-l.window))
}

// Start runs Sweep every SweepInterval until ctx is cancelled.
func (l *RateLimiter) Start(ctx context.Context) error {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			l.Sweep(now)
		}
	}
}

func (l *RateLimiter) sweepLocked(cutoff time.Time) int {
	removed := 0
	for key, entry := range l.entries {
		if entry.ResetTime.Before(cutoff) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// makeRoomLocked drops expired windows when the map is at maxKeys and reports whether a
// new key fits. Live windows are never evicted.
func (l *RateLimiter) makeRoomLocked(now time.Time) bool {
	if l.maxKeys == 0 || len(l.entries) < l.maxKeys {
		return true
	}
	l.sweepLocked(now)
	return len(l.entries) < l.maxKeys
}
