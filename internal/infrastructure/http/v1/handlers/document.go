package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"tallybook/internal/core/apperror"
	"tallybook/internal/domain/document"
	"tallybook/internal/infrastructure/http/v1/dto"
)

// DocumentHandler exposes the document engine.
type DocumentHandler struct {
	*BaseHandler
	engine *document.Engine
	audit  document.AuditReader
}

// NewDocumentHandler creates a new document handler. audit may be nil.
func NewDocumentHandler(base *BaseHandler, engine *document.Engine, audit document.AuditReader) *DocumentHandler {
	return &DocumentHandler{BaseHandler: base, engine: engine, audit: audit}
}

// List handles GET /documents
func (h *DocumentHandler) List(c *gin.Context) {
	var q dto.DocumentListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}
	docs, err := h.engine.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(docs))
}

// Create handles POST /documents
func (h *DocumentHandler) Create(c *gin.Context) {
	var req dto.CreateDocumentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	cmd, err := req.ToCommand()
	if err != nil {
		h.Error(c, err)
		return
	}
	doc, err := h.engine.Create(c.Request.Context(), cmd)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, doc)
}

// Get handles GET /documents/:id
func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.engine.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}

// Update handles PUT /documents/:id
func (h *DocumentHandler) Update(c *gin.Context) {
	var req dto.UpdateDocumentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	doc, err := h.engine.Edit(c.Request.Context(), req.ToCommand(c.Param("id")))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}

// Delete handles DELETE /documents/:id. A cancelled bill is returned with 200,
// a deleted quotation answers 204.
func (h *DocumentHandler) Delete(c *gin.Context) {
	doc, err := h.engine.CancelOrDelete(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}
	if doc == nil {
		h.NoContent(c)
		return
	}
	h.OK(c, doc)
}

// RecordPayment handles POST /documents/:id/payment
func (h *DocumentHandler) RecordPayment(c *gin.Context) {
	var req dto.PaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	doc, err := h.engine.RecordPayment(c.Request.Context(), document.PaymentRequest{
		DocumentID:  c.Param("id"),
		Amount:      req.Amount,
		PaymentDate: req.PaymentDate,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}

// History handles GET /documents/:id/history
// Deleted quotations keep their history, so only an empty trail is NOT_FOUND.
func (h *DocumentHandler) History(c *gin.Context) {
	ctx := c.Request.Context()
	if h.audit == nil {
		h.Error(c, apperror.NewNotFound("audit history", c.Param("id")))
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.Error(c, apperror.NewValidation("limit must be a positive integer").WithDetail("limit", raw))
			return
		}
		limit = n
	}
	records, err := h.audit.History(ctx, c.Param("id"), limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	if len(records) == 0 {
		h.Error(c, apperror.NewNotFound("document", c.Param("id")))
		return
	}
	h.OK(c, dto.NewListResponse(records))
}
