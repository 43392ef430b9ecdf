// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"strings"

	"tallybook/internal/core/apperror"
	"tallybook/internal/core/types"
)

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"totalCount"`
}

// NewListResponse never renders a null items array.
func NewListResponse[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, TotalCount: len(items)}
}

// SuccessResponse for operations without data.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ParseDate parses an optional YYYY-MM-DD query value.
func ParseDate(field, value string) (types.Date, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return types.Date{}, nil
	}
	d, err := types.ParseDate(value)
	if err != nil {
		return types.Date{}, apperror.NewValidation("invalid date").
			WithDetail("field", field).
			WithDetail("value", value)
	}
	return d, nil
}
