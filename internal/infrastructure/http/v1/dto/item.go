package dto

import (
	"tallybook/internal/core/types"
	"tallybook/internal/domain/inventory"
)

// CreateItemRequest is the request body for creating a product.
type CreateItemRequest struct {
	ProductID string      `json:"productId" binding:"required"`
	Name      string      `json:"name" binding:"required"`
	Price     types.Money `json:"price"`
	Quantity  int64       `json:"quantity"`
}

// ToEntity converts DTO to domain entity.
func (r *CreateItemRequest) ToEntity() *inventory.Product {
	return &inventory.Product{
		ProductID: r.ProductID,
		Name:      r.Name,
		Price:     r.Price,
		Quantity:  r.Quantity,
	}
}

// UpdateItemRequest changes name and price. Quantity is owned by documents.
type UpdateItemRequest struct {
	Name  string      `json:"name" binding:"required"`
	Price types.Money `json:"price"`
}
