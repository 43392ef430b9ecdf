package catalog_repo

import (
	"context"

	"tallybook/internal/domain/customer"
	"tallybook/internal/infrastructure/storage/postgres"
)

// CustomerRepo implements customer.Store.
type CustomerRepo struct {
	*BaseRepo[customer.Customer]
}

var _ customer.Store = (*CustomerRepo)(nil)

// NewCustomerRepo creates a customer repository.
func NewCustomerRepo(txManager *postgres.TxManager) *CustomerRepo {
	return &CustomerRepo{
		BaseRepo: NewBaseRepo[customer.Customer](txManager, "customers", "customer", "customer_id", "name", "customer_id"),
	}
}

func (r *CustomerRepo) Get(ctx context.Context, customerID string) (*customer.Customer, error) {
	return r.BaseRepo.Get(ctx, customerID)
}

func (r *CustomerRepo) Create(ctx context.Context, c *customer.Customer) error {
	return r.BaseRepo.Create(ctx, c, c.CustomerID)
}

func (r *CustomerRepo) Update(ctx context.Context, c *customer.Customer) error {
	return r.BaseRepo.Update(ctx, c, c.CustomerID, "name", "phone", "email", "address", "updated_at")
}
