package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"

	"github.com/benvon/crm-tools/internal/config"
	"github.com/benvon/crm-tools/internal/database"
	"github.com/benvon/crm-tools/internal/gateway"
	"github.com/benvon/crm-tools/internal/handlers"
	"github.com/benvon/crm-tools/internal/logger"
	"github.com/benvon/crm-tools/internal/middleware"
	"github.com/benvon/crm-tools/internal/models"
	"github.com/benvon/crm-tools/internal/request"
	"github.com/benvon/crm-tools/internal/security"
	"github.com/benvon/crm-tools/internal/telemetry"
	"github.com/benvon/crm-tools/internal/tools"
)

const serviceName = "crm-tools-api"

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = logger.Sync(zapLogger)
	}()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("frontend_url", cfg.FrontendURL),
		zap.Bool("redis_configured", cfg.RedisURL != ""),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
		zap.Int("trusted_proxies", len(cfg.TrustedProxies)),
	)

	// Initialize OpenTelemetry if enabled
	tracingEnabled := false
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else {
			tp, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
				ServiceName:    serviceName,
				ServiceVersion: handlers.Version,
				Endpoint:       cfg.OTELEndpoint,
				SampleRatio:    cfg.OTELSampleRatio,
			})
			if err != nil {
				zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
			} else {
				tracingEnabled = true
				zapLogger.Info("otel_tracer_initialized",
					zap.String("endpoint", cfg.OTELEndpoint),
					zap.Float64("sample_ratio", cfg.OTELSampleRatio),
				)
				defer func() {
					shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer shutdownCancel()
					if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
						zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
					}
				}()
			}
		}
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	// Redis is optional: without it transport counters are per process
	var redisStore *middleware.RedisStore
	var redisPinger handlers.Pinger
	if cfg.RedisURL != "" {
		redisStore, err = middleware.NewRedisStore(cfg.RedisURL)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
		}
		defer func() {
			if err := redisStore.Close(); err != nil {
				zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
			}
		}()
		redisPinger = handlers.PingFunc(redisStore.Ping)
		zapLogger.Info("connected_to_redis")
	}

	corsConfigRepo := database.NewCorsConfigRepository(db)
	ratelimitConfigRepo := database.NewRatelimitConfigRepository(db)

	// Tool limiter: environment defaults, optionally overridden by the "tools" scope row
	limiterCfg := security.RateLimitConfig{
		Window:        cfg.RateLimitWindow,
		MaxRequests:   cfg.RateLimitMaxRequests,
		SweepInterval: cfg.RateLimitSweepInterval,
		MaxKeys:       cfg.RateLimitMaxKeys,
	}
	limiterCfg = toolLimiterConfig(context.Background(), ratelimitConfigRepo, limiterCfg, zapLogger)
	toolLimiter := security.NewRateLimiter(limiterCfg)

	gw, err := gateway.New(tools.Default(), toolLimiter, db, zapLogger,
		gateway.WithTimeout(cfg.ToolTimeout),
		gateway.WithMaxRows(cfg.MaxQueryRows),
	)
	if err != nil {
		zapLogger.Fatal("failed_to_create_tool_gateway", zap.Error(err))
	}
	zapLogger.Info("tool_gateway_ready",
		zap.Int("tools", len(gw.Tools())),
		zap.Int("rate_limit_max_requests", limiterCfg.MaxRequests),
		zap.Duration("rate_limit_window", limiterCfg.Window),
	)

	toolHandler := handlers.NewToolHandler(gw, zapLogger)
	healthChecker := handlers.NewHealthChecker(db, redisPinger)

	r := mux.NewRouter()

	// Middleware registered first is the outermost wrapper
	if tracingEnabled {
		r.Use(otelmux.Middleware(serviceName))
	}
	r.Use(middleware.RequestID)
	keyResolver, err := request.NewKeyResolver(cfg.TrustedProxies)
	if err != nil {
		zapLogger.Fatal("invalid_trusted_proxies", zap.Error(err))
	}
	r.Use(middleware.ClientKey(keyResolver))
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	corsReloader := middleware.NewCORSReloader(corsConfigRepo, cfg.FrontendURL, zapLogger, 1*time.Minute)
	r.Use(corsReloader.Middleware())
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ContentType)
	// Longer than the tool timeout so the gateway reports its own 504 first
	r.Use(middleware.Timeout(cfg.ToolTimeout + 5*time.Second))
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Audit(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	rateLimitReloader, err := middleware.NewRateLimitReloader(redisStore.Client(), ratelimitConfigRepo, cfg.TransportRateLimit, zapLogger, 1*time.Minute)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limit_reloader", zap.Error(err))
	}

	// Public routes (no rate limiting for health checks)
	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods("GET")
	r.HandleFunc("/version", handlers.VersionInfo).Methods("GET")

	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(rateLimitReloader.Middleware())
	toolHandler.RegisterRoutes(apiRouter)

	// Preflight requests; CORS headers are already set by the reloader
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   cfg.ToolTimeout + 10*time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go corsReloader.Start(bgCtx)
	go rateLimitReloader.Start(bgCtx)
	go func() {
		if err := toolLimiter.Start(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("tool_rate_limiter_sweeper_stopped", zap.Error(err))
		}
	}()

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")
	bgCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}

// toolLimiterConfig applies a stored "tools" scope rate to base. Lookup or parse failures
// keep the environment defaults.
func toolLimiterConfig(ctx context.Context, repo *database.RatelimitConfigRepository, base security.RateLimitConfig, log *zap.Logger) security.RateLimitConfig {
	stored, err := repo.Get(ctx, models.RatelimitScopeTools)
	if err != nil {
		log.Warn("failed_to_load_tool_rate_limit_using_default", zap.Error(err))
		return base
	}
	if stored == nil {
		return base
	}
	applied, err := gateway.ApplyRate(base, stored.Rate)
	if err != nil {
		log.Warn("failed_to_parse_tool_rate_limit_using_default", zap.Error(err))
		return base
	}
	return applied
}
