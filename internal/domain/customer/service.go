package customer

import (
	"context"
	"strings"
	"time"

	"tallybook/internal/core/id"
	"tallybook/internal/core/storecall"
	"tallybook/pkg/logger"
)

// Service is the thin CRUD layer over Store.
type Service struct {
	store  Store
	policy storecall.Policy
	now    func() time.Time
}

// NewService creates a new customer service.
func NewService(store Store, policy storecall.Policy) *Service {
	return &Service{store: store, policy: policy, now: time.Now}
}

// Get returns a customer or NOT_FOUND.
func (s *Service) Get(ctx context.Context, customerID string) (*Customer, error) {
	return storecall.Read(ctx, s.policy, func(ctx context.Context) (*Customer, error) {
		return s.store.Get(ctx, customerID)
	})
}

// List returns all customers ordered by name.
func (s *Service) List(ctx context.Context) ([]*Customer, error) {
	return storecall.Read(ctx, s.policy, s.store.List)
}

// Create stores a new customer, generating an id when none is given.
func (s *Service) Create(ctx context.Context, c *Customer) (*Customer, error) {
	normalize(c)
	if err := c.Validate(ctx); err != nil {
		return nil, err
	}
	if c.CustomerID == "" {
		c.CustomerID = id.New()
	}
	c.Stamp(s.now())

	if err := storecall.Write(ctx, s.policy, func(ctx context.Context) error {
		return s.store.Create(ctx, c)
	}); err != nil {
		return nil, err
	}

	logger.Info(ctx, "customer created", "customer_id", c.CustomerID)
	return c, nil
}

// Update replaces the contact fields of an existing customer.
func (s *Service) Update(ctx context.Context, c *Customer) (*Customer, error) {
	existing, err := s.Get(ctx, c.CustomerID)
	if err != nil {
		return nil, err
	}
	normalize(c)
	if err := c.Validate(ctx); err != nil {
		return nil, err
	}
	c.CreatedAt = existing.CreatedAt
	c.Stamp(s.now())

	if err := storecall.Write(ctx, s.policy, func(ctx context.Context) error {
		return s.store.Update(ctx, c)
	}); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes a customer. Existing documents keep their denormalized customer name.
func (s *Service) Delete(ctx context.Context, customerID string) error {
	return storecall.Write(ctx, s.policy, func(ctx context.Context) error {
		return s.store.Delete(ctx, customerID)
	})
}

func normalize(c *Customer) {
	c.CustomerID = strings.TrimSpace(c.CustomerID)
	c.Name = strings.TrimSpace(c.Name)
	c.Phone = strings.TrimSpace(c.Phone)
	c.Email = strings.TrimSpace(c.Email)
	c.Address = strings.TrimSpace(c.Address)
}
