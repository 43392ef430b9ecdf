// Package main is the entry point for the Tallybook background worker.
// It relays the transactional outbox to the realtime gateway and expires idempotency keys.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tallybook/internal/config"
	appctx "tallybook/internal/core/context"
	"tallybook/internal/infrastructure/realtime"
	"tallybook/internal/infrastructure/storage/postgres"
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

	if cfg.StorageDriver != config.DriverPostgres {
		log.Fatalw("worker requires the postgres storage driver", "storage_driver", cfg.StorageDriver)
	}
	if cfg.Realtime.URL == "" {
		log.Fatalw("worker requires REALTIME_URL")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log.WithComponent("worker"))

	log.Info("starting tallybook worker")

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	if err := postgres.Apply(ctx, pool); err != nil {
		log.Fatalw("failed to apply schema", "error", err)
	}

	txManager := postgres.NewTxManager(pool)
	push := realtime.New(realtimeConfig(cfg))

	w := &Worker{
		relay:        postgres.NewOutboxRelay(txManager, push, cfg.Outbox.BatchSize),
		idempotency:  postgres.NewIdempotencyStore(txManager, cfg.Idempotency.TTL),
		push:         push,
		pool:         pool,
		pollInterval: cfg.Outbox.PollInterval,
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := push.Run(ctx); err != nil {
			logger.Error(ctx, "realtime connection stopped", "error", err)
			stop()
		}
	}()
	go func() {
		defer wg.Done()
		w.Run(ctx)
	}()

	<-ctx.Done()
	log.Info("shutting down worker...")
	wg.Wait()
	log.Info("worker stopped")
}

// Worker drives the periodic background jobs.
type Worker struct {
	relay        *postgres.OutboxRelay
	idempotency  *postgres.IdempotencyStore
	push         *realtime.Client
	pool         *postgres.Pool
	pollInterval time.Duration
}

// Run polls the outbox until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	cleanupTicker := time.NewTicker(time.Hour)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processOutbox(appctx.WithTrace(ctx, appctx.NewTraceContext()))
		case <-cleanupTicker.C:
			w.cleanup(appctx.WithTrace(ctx, appctx.NewTraceContext()))
		}
	}
}

func (w *Worker) processOutbox(ctx context.Context) {
	// Delivery would only fail and burn a retry while the gateway is down.
	if !w.push.Connected() {
		return
	}
	for {
		n, err := w.relay.ProcessBatch(ctx)
		if err != nil {
			logger.Error(ctx, "outbox batch failed", "error", err)
			return
		}
		if n > 0 {
			logger.Debug(ctx, "processed outbox batch", "count", n)
		}
		if n == 0 || ctx.Err() != nil {
			return
		}
	}
}

func (w *Worker) cleanup(ctx context.Context) {
	postgres.LogPoolStats(ctx, w.pool)

	if n, err := w.idempotency.CleanupExpired(ctx); err != nil {
		logger.Warn(ctx, "idempotency cleanup failed", "error", err)
	} else if n > 0 {
		logger.Info(ctx, "cleaned up idempotency keys", "count", n)
	}

	if n, err := w.relay.PurgePublished(ctx, time.Now().Add(-7*24*time.Hour)); err != nil {
		logger.Warn(ctx, "outbox purge failed", "error", err)
	} else if n > 0 {
		logger.Info(ctx, "purged published outbox messages", "count", n)
	}
}

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
