package inventory

import "context"

//go:generate mockgen -source=store.go -destination=store_mock.go -package=inventory

// Store persists products. Quantity changes go through ConditionalDecrement and Increment only.
type Store interface {
	Get(ctx context.Context, productID string) (*Product, error)
	List(ctx context.Context) ([]*Product, error)
	Create(ctx context.Context, p *Product) error
	// Update persists name and price; quantity is left untouched.
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, productID string) error

	// ConditionalDecrement atomically subtracts amount when at least amount is on hand.
	// Returns INSUFFICIENT_STOCK otherwise and leaves the quantity unchanged.
	ConditionalDecrement(ctx context.Context, productID string, amount int64) error
	// Increment unconditionally adds amount.
	Increment(ctx context.Context, productID string, amount int64) error
}
