package main

import (
	"context"
	"fmt"
	"time"

	"tallybook/internal/config"
	"tallybook/internal/core/idempotency"
	corenumerator "tallybook/internal/core/numerator"
	"tallybook/internal/domain/customer"
	"tallybook/internal/domain/document"
	"tallybook/internal/domain/events"
	"tallybook/internal/domain/inventory"
	"tallybook/internal/domain/ledger"
	"tallybook/internal/domain/reports"
	"tallybook/internal/infrastructure/http/v1/handlers"
	"tallybook/internal/infrastructure/realtime"
	"tallybook/internal/infrastructure/storage/memory"
	"tallybook/internal/infrastructure/storage/postgres"
	"tallybook/internal/infrastructure/storage/postgres/catalog_repo"
	"tallybook/internal/infrastructure/storage/postgres/document_repo"
	"tallybook/internal/infrastructure/storage/postgres/register_repo"
	"tallybook/pkg/logger"
	"tallybook/pkg/numerator"
)

// application holds the wired services of one storage driver.
type application struct {
	inventory   *inventory.Service
	customers   *customer.Service
	ledger      *ledger.Service
	engine      *document.Engine
	reports     *reports.Service
	audit       document.AuditReader
	idempotency idempotency.Store
	db          handlers.Pinger

	closers []func()
}

// Close releases driver resources in reverse order.
func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// ports are the store adapters a driver provides.
type ports struct {
	products  inventory.Store
	customers customer.Store
	entries   ledger.Store
	documents document.Store
	numbers   corenumerator.Generator
	publisher events.Publisher
	auditor   interface {
		document.Auditor
		document.AuditReader
	}
	idempotency idempotency.Store
}

func wire(ctx context.Context, cfg *config.Config, push *realtime.Client) (*application, error) {
	app := &application{}

	var (
		p   ports
		err error
	)
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		p, err = postgresPorts(ctx, cfg, app)
	default:
		p = memoryPorts(cfg, push)
	}
	if err != nil {
		app.Close()
		return nil, err
	}

	policy := cfg.StorePolicy()
	app.inventory = inventory.NewService(p.products, policy)
	app.customers = customer.NewService(p.customers, policy)
	app.ledger = ledger.NewService(p.entries, p.customers, policy)
	app.engine = document.NewEngine(document.Deps{
		Documents:       p.documents,
		Inventory:       app.inventory,
		Ledger:          app.ledger,
		Customers:       p.customers,
		Numbers:         p.numbers,
		Publisher:       p.publisher,
		Auditor:         p.auditor,
		Policy:          policy,
		ConflictRetries: cfg.ConflictRetries,
	})
	app.inventory.WithReferences(app.engine)
	app.reports = reports.NewService(app.engine, app.ledger, app.customers)
	app.audit = p.auditor
	if cfg.Idempotency.Enabled {
		app.idempotency = p.idempotency
	}
	return app, nil
}

// memoryPorts keeps everything in process. Events go straight to the realtime
// connection since there is no outbox to relay from.
func memoryPorts(cfg *config.Config, push *realtime.Client) ports {
	var publisher events.Publisher = events.Nop{}
	if push != nil {
		publisher = realtime.NewEventPublisher(push)
	}
	return ports{
		products:    memory.NewProducts(),
		customers:   memory.NewCustomers(),
		entries:     memory.NewLedger(),
		documents:   memory.NewDocuments(),
		numbers:     corenumerator.NewMemory(),
		publisher:   publisher,
		auditor:     memory.NewAuditLog(),
		idempotency: idempotency.NewMemory(cfg.Idempotency.TTL),
	}
}

// postgresPorts connects, applies the schema and builds the repositories.
// Events go to the outbox; cmd/worker relays them.
func postgresPorts(ctx context.Context, cfg *config.Config, app *application) (ports, error) {
	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.StatementTimeout = cfg.Store.Timeout

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(connectCtx, poolCfg)
	if err != nil {
		return ports{}, fmt.Errorf("connect database: %w", err)
	}
	app.closers = append(app.closers, pool.Close)
	app.db = pool

	if err := postgres.Apply(connectCtx, pool); err != nil {
		return ports{}, err
	}
	logger.Info(ctx, "database schema applied")

	txManager := postgres.NewTxManager(pool)
	audit, err := postgres.NewAuditService(txManager)
	if err != nil {
		return ports{}, err
	}
	app.closers = append(app.closers, audit.Close)

	return ports{
		products:    catalog_repo.NewProductRepo(txManager),
		customers:   catalog_repo.NewCustomerRepo(txManager),
		entries:     register_repo.NewLedgerRepo(txManager),
		documents:   document_repo.NewDocumentRepo(txManager),
		numbers:     numerator.New(pool),
		publisher:   postgres.NewOutboxPublisher(txManager),
		auditor:     audit,
		idempotency: postgres.NewIdempotencyStore(txManager, cfg.Idempotency.TTL),
	}, nil
}
