// Package main is the entry point for the Tallybook API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tallybook/internal/config"
	v1 "tallybook/internal/infrastructure/http/v1"
	"tallybook/internal/infrastructure/http/v1/handlers"
	"tallybook/internal/infrastructure/realtime"
	"tallybook/pkg/logger"
)

func main() {
	cfg, err := config.Load(envFiles()...)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.Development(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log)

	log.Infow("starting tallybook server", "storage_driver", cfg.StorageDriver)

	// --- Realtime push (optional) ---
	var push *realtime.Client
	if cfg.Realtime.URL != "" {
		push = realtime.New(realtimeConfig(cfg))
		go func() {
			if err := push.Run(ctx); err != nil {
				log.Errorw("realtime connection stopped", "error", err)
			}
		}()
	}

	// --- Storage and services ---
	app, err := wire(ctx, cfg, push)
	if err != nil {
		log.Fatalw("failed to wire services", "error", err)
	}
	defer app.Close()

	var realtimeHealth handlers.Connector
	if push != nil {
		realtimeHealth = push
	}

	router := v1.NewRouter(v1.RouterConfig{
		Logger:        log,
		Inventory:     app.inventory,
		Customers:     app.customers,
		Ledger:        app.ledger,
		Engine:        app.engine,
		Reports:       app.reports,
		Audit:         app.audit,
		Idempotency:   app.idempotency,
		DB:            app.db,
		StorageDriver: cfg.StorageDriver,
		Realtime:      realtimeHealth,
		Debug:         cfg.Development(),
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}
	log.Info("server stopped")
}

// envFiles returns .env when it exists so a missing file is not an error.
func envFiles() []string {
	if _, err := os.Stat(".env"); err == nil {
		return []string{".env"}
	}
	return nil
}

func realtimeConfig(cfg *config.Config) realtime.Config {
	rc := realtime.DefaultConfig(cfg.Realtime.URL)
	rc.InitialBackoff = cfg.Realtime.InitialBackoff
	rc.MaxBackoff = cfg.Realtime.MaxBackoff
	rc.MaxAttempts = cfg.Realtime.MaxAttempts
	rc.WriteTimeout = cfg.Realtime.WriteTimeout
	return rc
}
