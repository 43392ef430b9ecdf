package handlers

import (
	"github.com/gin-gonic/gin"

	"tallybook/internal/domain/reports"
	"tallybook/internal/infrastructure/http/v1/dto"
)

// ReportsHandler handles statements and sales analysis.
type ReportsHandler struct {
	*BaseHandler
	service *reports.Service
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(base *BaseHandler, service *reports.Service) *ReportsHandler {
	return &ReportsHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Statement handles GET /statement/:customerId
func (h *ReportsHandler) Statement(c *gin.Context) {
	st, err := h.service.CustomerStatement(c.Request.Context(), c.Param("customerId"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, st)
}

// SalesSummary handles GET /analysis/sales-summary
func (h *ReportsHandler) SalesSummary(c *gin.Context) {
	var q dto.AnalysisQuery
	if !h.BindQuery(c, &q) {
		return
	}
	start, end, err := q.Range()
	if err != nil {
		h.Error(c, err)
		return
	}
	summary, err := h.service.SalesSummary(c.Request.Context(), start, end)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, summary)
}

// ProductSales handles GET /analysis/product-sales
func (h *ReportsHandler) ProductSales(c *gin.Context) {
	var q dto.AnalysisQuery
	if !h.BindQuery(c, &q) {
		return
	}
	start, end, err := q.Range()
	if err != nil {
		h.Error(c, err)
		return
	}
	top, err := h.service.ProductSales(c.Request.Context(), start, end, q.TopN)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(top))
}
