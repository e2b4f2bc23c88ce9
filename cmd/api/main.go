package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loanpilot/sentinel/internal/app"
	"github.com/loanpilot/sentinel/internal/auth"
	"github.com/loanpilot/sentinel/internal/infra"
	"github.com/loanpilot/sentinel/internal/repository"
	"github.com/loanpilot/sentinel/internal/telemetry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres")

	if err := infra.RunMigrations(cfg.DSN(), logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// Redis is optional; without it baselines are read straight from postgres.
	var cache *infra.BaselineCache
	redisClient, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Warn("redis unavailable, baseline caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		cache = infra.NewBaselineCache(redisClient, cfg.BaselineCacheTTL, logger)
		logger.Info("connected to redis")
	}

	userExpiry, err := time.ParseDuration(cfg.JWTUserExpiry)
	if err != nil {
		return fmt.Errorf("parse user JWT expiry: %w", err)
	}
	adminExpiry, err := time.ParseDuration(cfg.JWTAdminExpiry)
	if err != nil {
		return fmt.Errorf("parse admin JWT expiry: %w", err)
	}
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, userExpiry, adminExpiry)

	hub := infra.NewWSHub(logger)
	registry := telemetry.NewRegistry()

	// Outbox fan-out to Kafka (no-op producer when disabled).
	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()
	poller := infra.NewOutboxPoller(pool, repository.NewOutboxRepository(), producer, logger)
	poller.Start(ctx)

	router := app.NewRouter(app.RouterDeps{
		Pool:                pool,
		JWTMgr:              jwtMgr,
		Logger:              logger,
		Cache:               cache,
		Hub:                 hub,
		Registry:            registry,
		SnapshotInterval:    cfg.SnapshotInterval,
		IngestRatePerMinute: cfg.IngestRatePerMinute,
		CORSOrigins:         cfg.CORSAllowedOrigins,
	})

	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	registry.Shutdown()
	hub.Shutdown(shutdownCtx)

	logger.Info("server stopped gracefully")
	return nil
}
