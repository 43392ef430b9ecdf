package memory

import (
	"context"
	"sort"
	"sync"

	"tallybook/internal/core/apperror"
	"tallybook/internal/domain/ledger"
)

// Ledger implements ledger.Store. Entries are kept in ledger order, with a
// per-customer index in the same order so customer queries skip the full scan.
type Ledger struct {
	mu         sync.RWMutex
	entries    []*ledger.Entry
	byID       map[string]*ledger.Entry
	byCustomer map[string][]*ledger.Entry
	byDocument map[string][]*ledger.Entry
}

var _ ledger.Store = (*Ledger)(nil)

// NewLedger creates an empty ledger store.
func NewLedger() *Ledger {
	return &Ledger{
		byID:       make(map[string]*ledger.Entry),
		byCustomer: make(map[string][]*ledger.Entry),
		byDocument: make(map[string][]*ledger.Entry),
	}
}

func (s *Ledger) Append(_ context.Context, e *ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[e.EntryID]; exists {
		return apperror.NewDuplicate("ledger entry", "entryId", e.EntryID)
	}
	stored := *e
	s.byID[stored.EntryID] = &stored
	s.entries = insertOrdered(s.entries, &stored)
	if stored.CustomerID != "" {
		s.byCustomer[stored.CustomerID] = insertOrdered(s.byCustomer[stored.CustomerID], &stored)
	}
	if stored.RelatedDocumentID != "" {
		s.byDocument[stored.RelatedDocumentID] = append(s.byDocument[stored.RelatedDocumentID], &stored)
	}
	return nil
}

func (s *Ledger) Remove(_ context.Context, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[entryID]
	if !ok {
		return apperror.NewNotFound("ledger entry", entryID)
	}
	delete(s.byID, entryID)
	s.entries = without(s.entries, entryID)
	if e.CustomerID != "" {
		s.byCustomer[e.CustomerID] = without(s.byCustomer[e.CustomerID], entryID)
	}
	if e.RelatedDocumentID != "" {
		s.byDocument[e.RelatedDocumentID] = without(s.byDocument[e.RelatedDocumentID], entryID)
	}
	return nil
}

func (s *Ledger) Query(_ context.Context, f ledger.Filter, after *ledger.Cursor) ([]*ledger.Entry, *ledger.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.entries
	if f.CustomerID != "" {
		src = s.byCustomer[f.CustomerID]
	}

	start := sort.Search(len(src), func(i int) bool {
		return !src[i].EntryDate.Before(f.StartDate)
	})
	if after != nil {
		if i := sort.Search(len(src), func(i int) bool { return after.Compare(src[i]) > 0 }); i > start {
			start = i
		}
	}

	limit := f.Limit
	if limit <= 0 {
		limit = ledger.DefaultLimit
	}
	out := make([]*ledger.Entry, 0, limit+1)
	for i := start; i < len(src) && len(out) <= limit; i++ {
		e := src[i]
		if e.EntryDate.After(f.EndDate) {
			break
		}
		if f.EntryType != "" && e.EntryType != f.EntryType {
			continue
		}
		c := *e
		out = append(out, &c)
	}

	var next *ledger.Cursor
	if len(out) > limit {
		out = out[:limit]
		next = ledger.CursorOf(out[limit-1])
	}
	return out, next, nil
}

func (s *Ledger) ListByDocument(_ context.Context, documentID string) ([]*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return copyEntries(s.byDocument[documentID]), nil
}

func (s *Ledger) ListByCustomer(_ context.Context, customerID string, documentIDs []string) ([]*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []*ledger.Entry
	add := func(entries []*ledger.Entry) {
		for _, e := range entries {
			if seen[e.EntryID] {
				continue
			}
			seen[e.EntryID] = true
			c := *e
			out = append(out, &c)
		}
	}
	add(s.byCustomer[customerID])
	for _, docID := range documentIDs {
		add(s.byDocument[docID])
	}
	sort.Slice(out, func(i, j int) bool { return ledger.Less(out[i], out[j]) })
	return out, nil
}

func insertOrdered(entries []*ledger.Entry, e *ledger.Entry) []*ledger.Entry {
	i := sort.Search(len(entries), func(i int) bool { return ledger.Less(e, entries[i]) })
	entries = append(entries, nil)
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	return entries
}

func without(entries []*ledger.Entry, entryID string) []*ledger.Entry {
	for i, e := range entries {
		if e.EntryID == entryID {
			return append(entries[:i], entries[i+1:]...)
		}
	}
	return entries
}

func copyEntries(entries []*ledger.Entry) []*ledger.Entry {
	out := make([]*ledger.Entry, 0, len(entries))
	for _, e := range entries {
		c := *e
		out = append(out, &c)
	}
	return out
}
