// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"tallybook/internal/core/idempotency"
	"tallybook/internal/domain/customer"
	"tallybook/internal/domain/document"
	"tallybook/internal/domain/inventory"
	"tallybook/internal/domain/ledger"
	"tallybook/internal/domain/reports"
	"tallybook/internal/infrastructure/http/v1/handlers"
	"tallybook/internal/infrastructure/http/v1/middleware"
	"tallybook/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	Inventory *inventory.Service
	Customers *customer.Service
	Ledger    *ledger.Service
	Engine    *document.Engine
	Reports   *reports.Service
	// Audit serves /documents/:id/history. Optional.
	Audit document.AuditReader

	// Idempotency backs X-Idempotency-Key. Nil disables the middleware.
	Idempotency idempotency.Store

	// DB is pinged by the readiness probe. Nil for the memory driver.
	DB            handlers.Pinger
	StorageDriver string
	// Realtime is reported by the readiness probe. Nil when push is disabled.
	Realtime handlers.Connector

	// Debug switches gin into debug mode.
	Debug bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.StorageDriver, cfg.Realtime)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	v1 := router.Group("/api/v1")
	if cfg.Idempotency != nil {
		v1.Use(middleware.Idempotency(cfg.Idempotency))
	}

	base := handlers.NewBaseHandler()
	registerItemRoutes(v1, base, cfg)
	registerCustomerRoutes(v1, base, cfg)
	registerDocumentRoutes(v1, base, cfg)
	registerLedgerRoutes(v1, base, cfg)
	registerReportRoutes(v1, base, cfg)

	return router
}

func registerItemRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewItemHandler(base, cfg.Inventory)
	items := rg.Group("/items")
	items.GET("", h.List)
	items.POST("", h.Create)
	items.GET("/:id", h.Get)
	items.PUT("/:id", h.Update)
	items.DELETE("/:id", h.Delete)
}

func registerCustomerRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewCustomerHandler(base, cfg.Customers, cfg.Reports)
	customers := rg.Group("/customers")
	customers.GET("", h.List)
	customers.POST("", h.Create)
	customers.GET("/:id", h.Get)
	customers.PUT("/:id", h.Update)
	customers.DELETE("/:id", h.Delete)
	customers.GET("/:id/due", h.Due)
}

func registerDocumentRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewDocumentHandler(base, cfg.Engine, cfg.Audit)
	docs := rg.Group("/documents")
	docs.GET("", h.List)
	docs.POST("", h.Create)
	docs.GET("/:id", h.Get)
	docs.PUT("/:id", h.Update)
	docs.DELETE("/:id", h.Delete)
	docs.POST("/:id/payment", h.RecordPayment)
	docs.GET("/:id/history", h.History)
}

func registerLedgerRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewLedgerHandler(base, cfg.Ledger)
	rg.GET("/ledger", h.Query)
	rg.POST("/ledger", h.Create)
}

func registerReportRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewReportsHandler(base, cfg.Reports)
	rg.GET("/statement/:customerId", h.Statement)

	analysis := rg.Group("/analysis")
	analysis.GET("/sales-summary", h.SalesSummary)
	analysis.GET("/product-sales", h.ProductSales)
}
