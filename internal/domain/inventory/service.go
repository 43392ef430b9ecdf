package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"tallybook/internal/core/apperror"
	appctx "tallybook/internal/core/context"
	"tallybook/internal/core/storecall"
	"tallybook/internal/core/types"
	"tallybook/pkg/logger"
)

// ReferenceChecker is asked before a product is deleted.
// It returns an error while some document still holds stock of the product.
type ReferenceChecker interface {
	CheckUnreferenced(ctx context.Context, productID string) error
}

// Service provides product CRUD and stock reservation.
type Service struct {
	store  Store
	policy storecall.Policy
	now    func() time.Time
	refs   ReferenceChecker
}

// NewService creates a new inventory service.
func NewService(store Store, policy storecall.Policy) *Service {
	return &Service{
		store:  store,
		policy: policy,
		now:    time.Now,
	}
}

// Get returns a product by id.
func (s *Service) Get(ctx context.Context, productID string) (*Product, error) {
	return storecall.Read(ctx, s.policy, func(ctx context.Context) (*Product, error) {
		return s.store.Get(ctx, productID)
	})
}

// List returns all products ordered by name.
func (s *Service) List(ctx context.Context) ([]*Product, error) {
	return storecall.Read(ctx, s.policy, s.store.List)
}

// Snapshot reads the products referenced by lines. Unknown ids return NOT_FOUND.
func (s *Service) Snapshot(ctx context.Context, productIDs []string) (map[string]*Product, error) {
	out := make(map[string]*Product, len(productIDs))
	for _, pid := range productIDs {
		if _, ok := out[pid]; ok {
			continue
		}
		p, err := s.Get(ctx, pid)
		if err != nil {
			return nil, err
		}
		out[pid] = p
	}
	return out, nil
}

// Create validates and stores a new product.
func (s *Service) Create(ctx context.Context, p *Product) (*Product, error) {
	p.ProductID = strings.TrimSpace(p.ProductID)
	p.Name = strings.TrimSpace(p.Name)
	if err := p.Validate(ctx); err != nil {
		return nil, err
	}
	p.Stamp(s.now())

	if err := storecall.Write(ctx, s.policy, func(ctx context.Context) error {
		return s.store.Create(ctx, p)
	}); err != nil {
		return nil, err
	}

	logger.Info(ctx, "product created", "product_id", p.ProductID)
	return p, nil
}

// Update changes name and price. Stock is owned by documents and cannot be edited here.
func (s *Service) Update(ctx context.Context, productID, name string, price types.Money) (*Product, error) {
	p, err := s.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	p.Name = strings.TrimSpace(name)
	p.Price = price
	if err := p.Validate(ctx); err != nil {
		return nil, err
	}
	p.Stamp(s.now())

	if err := storecall.Write(ctx, s.policy, func(ctx context.Context) error {
		return s.store.Update(ctx, p)
	}); err != nil {
		return nil, err
	}
	return p, nil
}

// WithReferences installs the check run by Delete. It is set once while wiring,
// since the document engine that implements it is built on top of this service.
func (s *Service) WithReferences(refs ReferenceChecker) *Service {
	s.refs = refs
	return s
}

// Delete removes a product that no open bill references.
func (s *Service) Delete(ctx context.Context, productID string) error {
	if s.refs != nil {
		if err := s.refs.CheckUnreferenced(ctx, productID); err != nil {
			return err
		}
	}
	return storecall.Write(ctx, s.policy, func(ctx context.Context) error {
		return s.store.Delete(ctx, productID)
	})
}

// Reserve decrements stock for every line or for none of them.
// A shortfall on any line restores the lines already reserved and returns INSUFFICIENT_STOCK.
// A decrement with an unknown outcome is not restored; the earlier lines are.
func (s *Service) Reserve(ctx context.Context, lines []Line) error {
	lines = Aggregate(lines)
	for i, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		err := storecall.Write(ctx, s.policy, func(ctx context.Context) error {
			return s.store.ConditionalDecrement(ctx, line.ProductID, line.Quantity)
		})
		if err != nil {
			if apperror.HasCode(err, apperror.CodeStoreUnavailable) {
				// The decrement may have landed. Restoring it could create stock that never
				// existed, so the line is left for reconciliation.
				logger.Error(ctx, "stock decrement outcome unknown",
					"product_id", line.ProductID,
					"quantity", line.Quantity,
					"error", err,
				)
			}
			if rbErr := s.Restore(appctx.Detached(ctx), lines[:i]); rbErr != nil {
				logger.Error(ctx, "stock reservation rollback failed",
					"failed_product_id", line.ProductID,
					"error", rbErr,
				)
			}
			return err
		}
	}
	return nil
}

// Restore increments stock for every line. It keeps going past failures and
// returns all of them joined, so one unavailable product does not strand the rest.
func (s *Service) Restore(ctx context.Context, lines []Line) error {
	var errs []error
	for _, line := range Aggregate(lines) {
		if line.Quantity <= 0 {
			continue
		}
		err := storecall.Write(ctx, s.policy, func(ctx context.Context) error {
			return s.store.Increment(ctx, line.ProductID, line.Quantity)
		})
		if err != nil {
			logger.Error(ctx, "stock restore failed",
				"product_id", line.ProductID,
				"quantity", line.Quantity,
				"error", err,
			)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return apperror.NewInternal(errors.Join(errs...)).WithDetail("operation", "stock_restore")
	}
	return nil
}
