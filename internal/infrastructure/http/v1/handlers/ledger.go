package handlers

import (
	"github.com/gin-gonic/gin"

	"tallybook/internal/domain/ledger"
	"tallybook/internal/infrastructure/http/v1/dto"
)

// LedgerHandler serves ledger queries and manual entries.
type LedgerHandler struct {
	*BaseHandler
	service *ledger.Service
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(base *BaseHandler, service *ledger.Service) *LedgerHandler {
	return &LedgerHandler{BaseHandler: base, service: service}
}

// Query handles GET /ledger
func (h *LedgerHandler) Query(c *gin.Context) {
	var q dto.LedgerQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}
	page, err := h.service.Query(c.Request.Context(), filter, q.Cursor)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, page)
}

// Create handles POST /ledger
func (h *LedgerHandler) Create(c *gin.Context) {
	var req dto.ManualEntryRequest
	if !h.BindJSON(c, &req) {
		return
	}
	cmd, err := req.ToCommand()
	if err != nil {
		h.Error(c, err)
		return
	}
	entry, err := h.service.PostManual(c.Request.Context(), cmd)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, entry)
}
