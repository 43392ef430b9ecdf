package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tallybook/internal/core/apperror"
	"tallybook/internal/core/id"
	"tallybook/internal/core/storecall"
	"tallybook/internal/core/types"
	"tallybook/internal/domain/customer"
	"tallybook/pkg/logger"
)

// Service posts, reverses and queries ledger entries.
type Service struct {
	store     Store
	customers customer.Reader
	policy    storecall.Policy
	now       func() time.Time
}

// NewService creates a new ledger service.
func NewService(store Store, customers customer.Reader, policy storecall.Policy) *Service {
	return &Service{
		store:     store,
		customers: customers,
		policy:    policy,
		now:       time.Now,
	}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Posting describes an entry generated by a document operation.
type Posting struct {
	DocumentID  string
	CustomerID  string
	Amount      types.Money
	Date        types.Date
	Description string
}

// PostIncome appends an Income entry linked to a document.
func (s *Service) PostIncome(ctx context.Context, p Posting) (*Entry, error) {
	e := s.newEntry(Income, p)
	return s.append(ctx, e)
}

// PostCompensation appends the Expense entry offsetting income already posted for a document.
func (s *Service) PostCompensation(ctx context.Context, p Posting) (*Entry, error) {
	if p.DocumentID == "" {
		return nil, apperror.NewValidation("compensation requires a related document")
	}
	e := s.newEntry(Expense, p)
	return s.append(ctx, e)
}

// NetIncome returns Σ income − Σ expense over entries.
func NetIncome(entries []*Entry) types.Money {
	net := types.Zero()
	for _, e := range entries {
		switch e.EntryType {
		case Income:
			net = net.Add(e.Amount)
		case Expense:
			net = net.Sub(e.Amount)
		}
	}
	return net
}

// Remove deletes an entry posted by an operation that failed to commit.
func (s *Service) Remove(ctx context.Context, entryID string) error {
	return storecall.Write(ctx, s.policy, func(ctx context.Context) error {
		return s.store.Remove(ctx, entryID)
	})
}

// ManualEntry is a user-posted entry with no related document.
type ManualEntry struct {
	EntryType   EntryType
	EntryDate   types.Date
	Description string
	Amount      types.Money
	CustomerID  string
}

// PostManual validates and appends a manual entry.
func (s *Service) PostManual(ctx context.Context, m ManualEntry) (*Entry, error) {
	e := s.newEntry(m.EntryType, Posting{
		CustomerID:  strings.TrimSpace(m.CustomerID),
		Amount:      m.Amount,
		Date:        m.EntryDate,
		Description: strings.TrimSpace(m.Description),
	})
	if err := e.Validate(ctx); err != nil {
		return nil, err
	}
	if e.CustomerID != "" && s.customers != nil {
		if _, err := storecall.Read(ctx, s.policy, func(ctx context.Context) (*customer.Customer, error) {
			return s.customers.Get(ctx, e.CustomerID)
		}); err != nil {
			return nil, err
		}
	}

	e, err := s.append(ctx, e)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "manual ledger entry posted",
		"entry_id", e.EntryID,
		"entry_type", e.EntryType,
		"amount", e.Amount.String(),
	)
	return e, nil
}

// Query returns one page of entries in ledger order.
func (s *Service) Query(ctx context.Context, f Filter, cursor string) (*Page, error) {
	if f.StartDate.IsZero() || f.EndDate.IsZero() {
		return nil, apperror.NewDateRangeRequired()
	}
	if f.StartDate.After(f.EndDate) {
		return nil, apperror.NewValidation("startDate must not be after endDate").
			WithDetail("startDate", f.StartDate.String()).
			WithDetail("endDate", f.EndDate.String())
	}
	if f.EntryType != "" && f.EntryType != Income && f.EntryType != Expense {
		return nil, apperror.NewValidation("entryType must be INCOME or EXPENSE")
	}
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultLimit
	case f.Limit > MaxLimit:
		f.Limit = MaxLimit
	}

	var after *Cursor
	if cursor != "" {
		c, err := DecodeCursor(cursor)
		if err != nil {
			return nil, err
		}
		after = c
	}

	type result struct {
		entries []*Entry
		next    *Cursor
	}
	res, err := storecall.Read(ctx, s.policy, func(ctx context.Context) (result, error) {
		entries, next, err := s.store.Query(ctx, f, after)
		return result{entries, next}, err
	})
	if err != nil {
		return nil, err
	}

	page := &Page{Entries: res.entries}
	if page.Entries == nil {
		page.Entries = []*Entry{}
	}
	if res.next != nil {
		page.NextCursor = res.next.Encode()
	}
	return page, nil
}

// ForDocument returns every entry linked to a document.
func (s *Service) ForDocument(ctx context.Context, documentID string) ([]*Entry, error) {
	return storecall.Read(ctx, s.policy, func(ctx context.Context) ([]*Entry, error) {
		return s.store.ListByDocument(ctx, documentID)
	})
}

// ForCustomer returns entries of a customer or of any of the given documents.
func (s *Service) ForCustomer(ctx context.Context, customerID string, documentIDs []string) ([]*Entry, error) {
	return storecall.Read(ctx, s.policy, func(ctx context.Context) ([]*Entry, error) {
		return s.store.ListByCustomer(ctx, customerID, documentIDs)
	})
}

func (s *Service) newEntry(t EntryType, p Posting) *Entry {
	return &Entry{
		EntryID:           id.New(),
		EntryType:         t,
		EntryDate:         p.Date,
		Description:       p.Description,
		Amount:            p.Amount,
		CustomerID:        p.CustomerID,
		RelatedDocumentID: p.DocumentID,
		CreatedAt:         s.now().UTC().Truncate(time.Microsecond),
	}
}

func (s *Service) append(ctx context.Context, e *Entry) (*Entry, error) {
	if err := e.Validate(ctx); err != nil {
		return nil, err
	}
	if err := storecall.Write(ctx, s.policy, func(ctx context.Context) error {
		return s.store.Append(ctx, e)
	}); err != nil {
		return nil, fmt.Errorf("append ledger entry: %w", err)
	}
	return e, nil
}
