package handlers

import (
	"github.com/gin-gonic/gin"

	"tallybook/internal/domain/customer"
	"tallybook/internal/domain/reports"
	"tallybook/internal/infrastructure/http/v1/dto"
)

// CustomerHandler handles customer CRUD and dues.
type CustomerHandler struct {
	*BaseHandler
	service *customer.Service
	reports *reports.Service
}

// NewCustomerHandler creates a new customer handler.
func NewCustomerHandler(base *BaseHandler, service *customer.Service, reports *reports.Service) *CustomerHandler {
	return &CustomerHandler{BaseHandler: base, service: service, reports: reports}
}

// List handles GET /customers. Every row carries its amount due.
func (h *CustomerHandler) List(c *gin.Context) {
	rows, err := h.reports.CustomerDues(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(rows))
}

// Get handles GET /customers/:id
func (h *CustomerHandler) Get(c *gin.Context) {
	cust, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, cust)
}

// Due handles GET /customers/:id/due
func (h *CustomerHandler) Due(c *gin.Context) {
	due, err := h.reports.CustomerDue(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, due)
}

// Create handles POST /customers
func (h *CustomerHandler) Create(c *gin.Context) {
	var req dto.CustomerRequest
	if !h.BindJSON(c, &req) {
		return
	}
	cust, err := h.service.Create(c.Request.Context(), req.ToEntity())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, cust)
}

// Update handles PUT /customers/:id
func (h *CustomerHandler) Update(c *gin.Context) {
	var req dto.CustomerRequest
	if !h.BindJSON(c, &req) {
		return
	}
	entity := req.ToEntity()
	entity.CustomerID = c.Param("id")

	cust, err := h.service.Update(c.Request.Context(), entity)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, cust)
}

// Delete handles DELETE /customers/:id
func (h *CustomerHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}
