package customer

import "context"

// Store persists customers.
type Store interface {
	Get(ctx context.Context, customerID string) (*Customer, error)
	List(ctx context.Context) ([]*Customer, error)
	Create(ctx context.Context, c *Customer) error
	Update(ctx context.Context, c *Customer) error
	Delete(ctx context.Context, customerID string) error
}

// Reader resolves customers by id. Satisfied by Service and Store.
type Reader interface {
	Get(ctx context.Context, customerID string) (*Customer, error)
}
