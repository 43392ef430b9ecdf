package memory

import (
	"context"
	"sort"
	"sync"

	"tallybook/internal/core/apperror"
	"tallybook/internal/domain/customer"
)

// Customers implements customer.Store.
type Customers struct {
	mu        sync.RWMutex
	customers map[string]customer.Customer
}

var _ customer.Store = (*Customers)(nil)

// NewCustomers creates an empty customer store.
func NewCustomers() *Customers {
	return &Customers{customers: make(map[string]customer.Customer)}
}

func (s *Customers) Get(_ context.Context, customerID string) (*customer.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[customerID]
	if !ok {
		return nil, apperror.NewNotFound("customer", customerID)
	}
	return &c, nil
}

func (s *Customers) List(_ context.Context) ([]*customer.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*customer.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		c := c
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].CustomerID < out[j].CustomerID
	})
	return out, nil
}

func (s *Customers) Create(_ context.Context, c *customer.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customers[c.CustomerID]; exists {
		return apperror.NewDuplicate("customer", "customerId", c.CustomerID)
	}
	s.customers[c.CustomerID] = *c
	return nil
}

func (s *Customers) Update(_ context.Context, c *customer.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[c.CustomerID]; !ok {
		return apperror.NewNotFound("customer", c.CustomerID)
	}
	s.customers[c.CustomerID] = *c
	return nil
}

func (s *Customers) Delete(_ context.Context, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[customerID]; !ok {
		return apperror.NewNotFound("customer", customerID)
	}
	delete(s.customers, customerID)
	return nil
}
