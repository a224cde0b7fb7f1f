// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package taskserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mobiletoly/go-overtask/internal/clock"
)

// ServerConfig holds configuration for the server
type ServerConfig struct {
	DatabaseURL string        // PostgreSQL URL; empty selects the in-memory repository
	JWTSecret   string        // enables bearer auth on /api when set
	TokenTTL    time.Duration // lifetime of tokens issued by POST /api/auth/token
	Clock       clock.Clock
	Logger      *slog.Logger
}

// DefaultServerConfig returns an in-memory, unauthenticated configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		TokenTTL: 24 * time.Hour,
		Clock:    clock.NewReal(),
		Logger:   slog.Default(),
	}
}

// ServerComponents holds the initialized server components
type ServerComponents struct {
	Repository Repository
	Service    *TaskService
	JWTAuth    *JWTAuth // nil when auth is disabled
	Registry   *prometheus.Registry
	Handler    http.Handler
	Logger     *slog.Logger
}

// SetupServer initializes all server components (repository, service, handlers).
// This is the shared logic used by both main() and tests.
func SetupServer(ctx context.Context, config *ServerConfig) (*ServerComponents, error) {
	if config == nil {
		config = DefaultServerConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tokenTTL := config.TokenTTL
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}

	var repo Repository
	if config.DatabaseURL == "" {
		logger.Info("Using in-memory repository")
		repo = NewMemoryRepository()
	} else {
		pgRepo, err := openPostgres(ctx, config.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		repo = pgRepo
	}

	service := NewTaskService(repo, config.Clock, logger)
	handlers := NewHTTPTaskHandlers(service, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := NewHTTPMetrics(registry)

	var jwtAuth *JWTAuth
	protect := func(next http.Handler) http.Handler { return LoggingMiddleware(next, logger, metrics) }
	if config.JWTSecret != "" {
		jwtAuth = NewJWTAuth(config.JWTSecret, logger)
		protect = func(next http.Handler) http.Handler {
			return LoggingMiddleware(jwtAuth.Middleware(next), logger, metrics)
		}
	} else {
		logger.Warn("JWT secret not set - API is unauthenticated")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", HandleHealth)
	mux.HandleFunc("GET /api/health", HandleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	if jwtAuth != nil {
		mux.Handle("POST /api/auth/token", LoggingMiddleware(HandleIssueToken(jwtAuth, tokenTTL, logger), logger, metrics))
	}
	handlers.Register(mux, protect)

	return &ServerComponents{
		Repository: repo,
		Service:    service,
		JWTAuth:    jwtAuth,
		Registry:   registry,
		Handler:    mux,
		Logger:     logger,
	}, nil
}

// Close shuts down the server components and cleans up resources
func (sc *ServerComponents) Close() {
	if sc.Repository != nil {
		sc.Repository.Close()
	}
}

func openPostgres(ctx context.Context, databaseURL string, logger *slog.Logger) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	repo, err := NewPostgresRepository(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}
