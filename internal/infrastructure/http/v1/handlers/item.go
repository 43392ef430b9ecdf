package handlers

import (
	"github.com/gin-gonic/gin"

	"tallybook/internal/domain/inventory"
	"tallybook/internal/infrastructure/http/v1/dto"
)

// ItemHandler handles product CRUD.
type ItemHandler struct {
	*BaseHandler
	service *inventory.Service
}

// NewItemHandler creates a new item handler.
func NewItemHandler(base *BaseHandler, service *inventory.Service) *ItemHandler {
	return &ItemHandler{BaseHandler: base, service: service}
}

// List handles GET /items
func (h *ItemHandler) List(c *gin.Context) {
	products, err := h.service.List(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(products))
}

// Get handles GET /items/:id
func (h *ItemHandler) Get(c *gin.Context) {
	p, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, p)
}

// Create handles POST /items
func (h *ItemHandler) Create(c *gin.Context) {
	var req dto.CreateItemRequest
	if !h.BindJSON(c, &req) {
		return
	}
	p, err := h.service.Create(c.Request.Context(), req.ToEntity())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, p)
}

// Update handles PUT /items/:id
func (h *ItemHandler) Update(c *gin.Context) {
	var req dto.UpdateItemRequest
	if !h.BindJSON(c, &req) {
		return
	}
	p, err := h.service.Update(c.Request.Context(), c.Param("id"), req.Name, req.Price)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, p)
}

// Delete handles DELETE /items/:id
func (h *ItemHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}
