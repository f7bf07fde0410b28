// Package main is the entry point for the lotpass gate server.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lotpass/lotpass/internal/account"
	"github.com/lotpass/lotpass/internal/config"
	"github.com/lotpass/lotpass/internal/httpapi"
	"github.com/lotpass/lotpass/internal/metrics"
	"github.com/lotpass/lotpass/internal/notify"
	"github.com/lotpass/lotpass/internal/parking"
	"github.com/lotpass/lotpass/internal/storage"
)

const version = "1.0.0"

// sessionCleanupInterval is how often expired sessions are swept.
const sessionCleanupInterval = time.Minute

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logLevel := new(slog.LevelVar)
	switch cfg.LogLevel {
	case "debug":
		logLevel.Set(slog.LevelDebug)
	case "warn":
		logLevel.Set(slog.LevelWarn)
	case "error":
		logLevel.Set(slog.LevelError)
	default:
		logLevel.Set(slog.LevelInfo)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if err := metrics.Init(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close() //nolint:errcheck
	}()

	locks := parking.NewLockTable()
	hub := notify.NewHub(logger)
	issuer := parking.NewIssuer(store, locks, cfg.TokenTTL, logger)
	engine := parking.NewEngine(store, locks, hub, logger)
	accounts := account.NewService(store, logger)
	sessions := httpapi.NewSessionStore(cfg.SessionTimeout)

	handler := httpapi.NewHandler(accounts, issuer, engine, hub, store, sessions, logger)

	appServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsServer := &http.Server{
		Addr:              cfg.MetricsListenAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Sweep expired sessions in the background
	go func() {
		ticker := time.NewTicker(sessionCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sessions.Cleanup(ctx)
			}
		}
	}()

	errCh := make(chan error, 2)
	go func() {
		logger.Info("gate server listening", "addr", cfg.ListenAddr, "version", version)
		if err := appServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("metrics server listening", "addr", cfg.MetricsListenAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := appServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("app server shutdown", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", "error", err)
	}

	logger.Info("stopped")
	return nil
}
