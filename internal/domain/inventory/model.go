// Package inventory holds product stock and the reservation primitives used by the document engine.
package inventory

import (
	"context"
	"strings"

	"tallybook/internal/core/apperror"
	"tallybook/internal/core/entity"
	"tallybook/internal/core/types"
)

// Product is a sellable item with its on-hand quantity.
type Product struct {
	ProductID string      `db:"product_id" json:"productId"`
	Name      string      `db:"name" json:"name"`
	Price     types.Money `db:"price" json:"price"`
	Quantity  int64       `db:"quantity" json:"quantity"`
	entity.Timestamps
}

var _ entity.Validatable = (*Product)(nil)

// Validate checks product invariants.
func (p *Product) Validate(_ context.Context) error {
	if strings.TrimSpace(p.ProductID) == "" {
		return apperror.NewValidation("productId is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return apperror.NewValidation("name is required").WithDetail("productId", p.ProductID)
	}
	if p.Price.IsNegative() {
		return apperror.NewValidation("price must not be negative").
			WithDetail("productId", p.ProductID).
			WithDetail("price", p.Price.String())
	}
	if p.Quantity < 0 {
		return apperror.NewValidation("quantity must not be negative").
			WithDetail("productId", p.ProductID).
			WithDetail("quantity", p.Quantity)
	}
	return nil
}

// Line is a quantity of one product moved in or out of stock.
type Line struct {
	ProductID string
	Quantity  int64
}

// Aggregate merges lines of the same product, keeping first-seen order.
func Aggregate(lines []Line) []Line {
	index := make(map[string]int, len(lines))
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if i, ok := index[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out
}

// Delta compares two line sets and returns what must be reserved and what must be released
// to move stock from the old set to the new one. Both results carry positive quantities.
func Delta(oldLines, newLines []Line) (reserve, release []Line) {
	oldQty := make(map[string]int64)
	for _, l := range Aggregate(oldLines) {
		oldQty[l.ProductID] = l.Quantity
	}

	seen := make(map[string]bool)
	for _, l := range Aggregate(newLines) {
		seen[l.ProductID] = true
		switch diff := l.Quantity - oldQty[l.ProductID]; {
		case diff > 0:
			reserve = append(reserve, Line{ProductID: l.ProductID, Quantity: diff})
		case diff < 0:
			release = append(release, Line{ProductID: l.ProductID, Quantity: -diff})
		}
	}
	for _, l := range Aggregate(oldLines) {
		if !seen[l.ProductID] {
			release = append(release, l)
		}
	}
	return reserve, release
}
