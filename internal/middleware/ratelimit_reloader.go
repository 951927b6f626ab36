package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/benvon/crm-tools/internal/models"
	"github.com/benvon/crm-tools/internal/request"
)

// DefaultTransportRate applies when neither the environment nor the database supplies one.
const DefaultTransportRate = "50-S"

// RatelimitConfigStore reads and seeds scoped rate limit config.
// *database.RatelimitConfigRepository implements it.
type RatelimitConfigStore interface {
	Get(ctx context.Context, scope string) (*models.RatelimitConfig, error)
	Set(ctx context.Context, c *models.RatelimitConfig) error
}

// RateLimitReloader wraps ulule/limiter and periodically reloads the transport rate from the database.
type RateLimitReloader struct {
	next        http.Handler
	store       limiter.Store
	repo        RatelimitConfigStore
	defaultRate string
	log         *zap.Logger
	interval    time.Duration
	mu          sync.RWMutex
	current     http.Handler
	rate        limiter.Rate
}

// NewRateLimitReloader creates an HTTP rate limit middleware. Counters live in Redis when
// redisClient is non-nil so that several replicas share them, otherwise in process memory.
func NewRateLimitReloader(redisClient *redis.Client, repo RatelimitConfigStore, defaultRate string, log *zap.Logger, reloadInterval time.Duration) (*RateLimitReloader, error) {
	if defaultRate == "" {
		defaultRate = DefaultTransportRate
	}
	if log == nil {
		log = zap.NewNop()
	}
	if _, err := limiter.NewRateFromFormatted(defaultRate); err != nil {
		return nil, err
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := redisstore.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "crm_tools_transport"})
		if err != nil {
			return nil, err
		}
		store = s
	} else {
		store = memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          "crm_tools_transport",
			CleanUpInterval: limiter.DefaultCleanUpInterval,
		})
	}

	return &RateLimitReloader{
		store:       store,
		repo:        repo,
		defaultRate: defaultRate,
		log:         log,
		interval:    reloadInterval,
	}, nil
}

// Middleware returns a middleware that wraps next with rate limiting and hot-reload.
func (r *RateLimitReloader) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		r.next = next
		r.load(context.Background())
		return r
	}
}

// Start runs the reload loop until ctx is cancelled. Call after Middleware() is applied.
func (r *RateLimitReloader) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.load(ctx)
		}
	}
}

// Rate returns the rate currently in force.
func (r *RateLimitReloader) Rate() limiter.Rate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rate
}

func (r *RateLimitReloader) load(ctx context.Context) {
	if r.next == nil {
		return
	}
	rateStr := r.defaultRate
	if r.repo != nil {
		cfg, err := r.repo.Get(ctx, models.RatelimitScopeTransport)
		switch {
		case err != nil:
			r.log.Warn("failed_to_load_ratelimit_config_from_db_using_default",
				zap.Error(err),
				zap.String("default_rate", r.defaultRate),
			)
		case cfg != nil && cfg.Rate != "":
			rateStr = cfg.Rate
		default:
			// Seed the default so operators can see and edit it
			if err := r.repo.Set(ctx, &models.RatelimitConfig{ConfigKey: models.RatelimitScopeTransport, Rate: r.defaultRate}); err != nil {
				r.log.Error("failed_to_save_default_ratelimit_config",
					zap.Error(err),
					zap.String("default_rate", r.defaultRate),
				)
			}
		}
	}

	rate, err := limiter.NewRateFromFormatted(rateStr)
	if err != nil {
		r.log.Error("failed_to_parse_rate_limit_using_default",
			zap.Error(err),
			zap.String("rate_str", rateStr),
			zap.String("default_rate", r.defaultRate),
		)
		// Validated in the constructor
		rate, _ = limiter.NewRateFromFormatted(r.defaultRate)
	}

	instance := limiter.New(r.store, rate)
	mw := stdlibmw.NewMiddleware(instance,
		stdlibmw.WithKeyGetter(request.ClientKey),
		stdlibmw.WithLimitReachedHandler(func(w http.ResponseWriter, req *http.Request) {
			respondErrorJSON(w, req, http.StatusTooManyRequests, "Too Many Requests",
				"Rate limit exceeded. Please try again later.", r.log)
		}),
		stdlibmw.WithErrorHandler(func(w http.ResponseWriter, req *http.Request, err error) {
			r.log.Error("rate_limit_store_error", zap.Error(err))
			respondErrorJSON(w, req, http.StatusInternalServerError, "Internal Server Error",
				"An unexpected error occurred", r.log)
		}),
	)
	h := mw.Handler(r.next)

	r.mu.Lock()
	r.current = h
	r.rate = rate
	r.mu.Unlock()
}

// ServeHTTP implements http.Handler.
func (r *RateLimitReloader) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.RLock()
	h := r.current
	r.mu.RUnlock()
	if h != nil {
		h.ServeHTTP(w, req)
		return
	}
	if r.next != nil {
		r.next.ServeHTTP(w, req)
	}
}
