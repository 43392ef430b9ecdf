// Package customer holds customer master records.
// The document engine only reads them.
package customer

import (
	"context"
	"net/mail"
	"strings"

	"tallybook/internal/core/apperror"
	"tallybook/internal/core/entity"
)

// Customer is a billed party.
type Customer struct {
	CustomerID string `db:"customer_id" json:"customerId"`
	Name       string `db:"name" json:"name"`
	Phone      string `db:"phone" json:"phone,omitempty"`
	Email      string `db:"email" json:"email,omitempty"`
	Address    string `db:"address" json:"address,omitempty"`
	entity.Timestamps
}

// Validate checks customer invariants.
func (c *Customer) Validate(_ context.Context) error {
	if strings.TrimSpace(c.Name) == "" {
		return apperror.NewValidation("name is required")
	}
	if c.Email != "" {
		if _, err := mail.ParseAddress(c.Email); err != nil {
			return apperror.NewValidation("invalid email").WithDetail("email", c.Email)
		}
	}
	return nil
}
