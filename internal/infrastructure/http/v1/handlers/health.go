// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const pingTimeout = 2 * time.Second

// Pinger is satisfied by the postgres pool. Nil means there is no external store to check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Connector reports the state of the realtime push connection.
type Connector interface {
	Connected() bool
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	db       Pinger
	driver   string
	realtime Connector
}

// NewHealthHandler builds the probes. realtime may be nil when push is disabled.
func NewHealthHandler(db Pinger, driver string, realtime Connector) *HealthHandler {
	return &HealthHandler{db: db, driver: driver, realtime: realtime}
}

// Live handles GET /health/live.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles GET /health/ready. Only the store decides readiness.
// A dropped realtime connection is reported as degraded.
func (h *HealthHandler) Ready(c *gin.Context) {
	checks := map[string]string{}
	status, code := "ok", http.StatusOK

	if h.db == nil {
		checks[h.driver] = "healthy"
	} else {
		ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			checks[h.driver] = "unhealthy: " + err.Error()
			status, code = "error", http.StatusServiceUnavailable
		} else {
			checks[h.driver] = "healthy"
		}
	}

	if h.realtime != nil {
		if h.realtime.Connected() {
			checks["realtime"] = "connected"
		} else {
			checks["realtime"] = "disconnected"
			if code == http.StatusOK {
				status = "degraded"
			}
		}
	}

	c.JSON(code, gin.H{"status": status, "checks": checks})
}
