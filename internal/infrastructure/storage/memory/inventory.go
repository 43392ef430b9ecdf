package memory

import (
	"context"
	"sort"
	"sync"

	"tallybook/internal/core/apperror"
	"tallybook/internal/domain/inventory"
)

// Products implements inventory.Store.
type Products struct {
	mu       sync.RWMutex
	products map[string]inventory.Product
}

var _ inventory.Store = (*Products)(nil)

// NewProducts creates an empty product store.
func NewProducts() *Products {
	return &Products{products: make(map[string]inventory.Product)}
}

func (s *Products) Get(_ context.Context, productID string) (*inventory.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, apperror.NewNotFound("product", productID)
	}
	return &p, nil
}

func (s *Products) List(_ context.Context) ([]*inventory.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*inventory.Product, 0, len(s.products))
	for _, p := range s.products {
		p := p
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out, nil
}

func (s *Products) Create(_ context.Context, p *inventory.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[p.ProductID]; exists {
		return apperror.NewDuplicate("product", "productId", p.ProductID)
	}
	s.products[p.ProductID] = *p
	return nil
}

// Update writes name, price and timestamps. Quantity is left untouched.
func (s *Products) Update(_ context.Context, p *inventory.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.products[p.ProductID]
	if !ok {
		return apperror.NewNotFound("product", p.ProductID)
	}
	current.Name = p.Name
	current.Price = p.Price
	current.UpdatedAt = p.UpdatedAt
	s.products[p.ProductID] = current
	p.Quantity = current.Quantity
	return nil
}

func (s *Products) Delete(_ context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[productID]; !ok {
		return apperror.NewNotFound("product", productID)
	}
	delete(s.products, productID)
	return nil
}

func (s *Products) ConditionalDecrement(_ context.Context, productID string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return apperror.NewNotFound("product", productID)
	}
	if p.Quantity < amount {
		return apperror.NewInsufficientStock(productID, amount, p.Quantity)
	}
	p.Quantity -= amount
	s.products[productID] = p
	return nil
}

func (s *Products) Increment(_ context.Context, productID string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return apperror.NewNotFound("product", productID)
	}
	p.Quantity += amount
	s.products[productID] = p
	return nil
}
