package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/supporthq/sdkdoctor/internal/auth"
	"github.com/supporthq/sdkdoctor/internal/config"
	"github.com/supporthq/sdkdoctor/internal/filter"
	"github.com/supporthq/sdkdoctor/internal/filter/injection"
	"github.com/supporthq/sdkdoctor/internal/filter/policy"
	"github.com/supporthq/sdkdoctor/internal/filter/secrets"
	"github.com/supporthq/sdkdoctor/internal/gateway"
	"github.com/supporthq/sdkdoctor/internal/ratelimit"
	"github.com/supporthq/sdkdoctor/internal/router"
	"github.com/supporthq/sdkdoctor/internal/telemetry"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	// Bootstrap logger; replaced with the configured one after load
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	cfg := loader.Config()

	logger = newLogger(cfg.Telemetry)
	slog.SetDefault(logger)

	// Connect to PostgreSQL
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		logger.Warn("database not reachable (proxy will start but auth will fail)", "error", err)
	} else {
		logger.Info("database connected")
	}

	// Connect to Redis
	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (key cache, rate limits and quotas disabled)", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	// Build provider registry, rebuilt on config reload
	providerRegistry := router.BuildFromConfig(loader.Providers())
	loader.OnReload(func() {
		providerRegistry.Replace(router.BuildFromConfig(loader.Providers()))
		logger.Info("provider registry reloaded")
	})

	healthTracker := router.NewHealthTracker(
		cfg.Routing.CircuitBreaker.FailureThreshold,
		cfg.Routing.CircuitBreaker.RecoveryProbeInterval,
	)

	// Filter chain: masking gate first so later stages never see raw secrets
	filterChain := filter.NewChain(
		secrets.NewGate(func() config.SecretsFilterConfig {
			return loader.Config().Filter.Secrets
		}),
		injection.NewScanner(func() config.InjectionFilterConfig {
			return loader.Config().Filter.Injection
		}),
	)

	policyEval := policy.NewEvaluator(func() config.PolicyFilterConfig {
		return loader.Config().Filter.Policy
	})
	if cfg.Filter.Policy.Enabled {
		if err := policyEval.Load(); err != nil {
			logger.Error("failed to load policy bundle", "error", err, "path", cfg.Filter.Policy.BundlePath)
			os.Exit(1)
		}
		logger.Info("policy bundle loaded", "path", cfg.Filter.Policy.BundlePath)
	}

	metrics := telemetry.NewMetrics()

	keyStore := auth.NewCachedKeyStore(dbPool, rdb)
	limiter := ratelimit.NewLimiter(rdb)
	quota := ratelimit.NewQuotaTracker(rdb)

	handler := gateway.NewHandler(
		providerRegistry,
		healthTracker,
		func() *config.ModelsConfig { return loader.Models() },
		func() *config.Config { return loader.Config() },
		filterChain,
		policyEval,
		quota,
		metrics,
	)

	// Router setup
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(maxBodyMiddleware(cfg.Server.MaxBodyBytes))

	// Unauthenticated routes
	r.Get("/sdkdoctor/v1/health", healthHandler)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(keyStore))
		r.Post("/v1/scan", handler.Scan)
		r.Get("/v1/models", handler.ListModels)
		r.With(ratelimit.Middleware(limiter, quota, metrics)).Post("/v1/analyze", handler.Analyze)
	})

	// Metrics on its own port
	if cfg.Telemetry.MetricsPort > 0 {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort)
			logger.Info("metrics server starting", "addr", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("proxy starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("proxy stopped")
}

func newLogger(cfg config.TelemetryConfig) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

func maxBodyMiddleware(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type contextKey string

const requestIDKey contextKey = "request_id"

func generateRequestID() string {
	now := time.Now()
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", now.UnixMilli(), hex.EncodeToString(b))
}
