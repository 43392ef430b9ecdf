package memory

import (
	"context"
	"sync"

	"tallybook/internal/core/apperror"
	"tallybook/internal/domain/document"
)

// Documents implements document.Store with a per-document version check.
type Documents struct {
	mu   sync.RWMutex
	docs map[string]*document.Document
}

var _ document.Store = (*Documents)(nil)

// NewDocuments creates an empty document store.
func NewDocuments() *Documents {
	return &Documents{docs: make(map[string]*document.Document)}
}

func (s *Documents) Put(_ context.Context, d *document.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[d.DocumentID]; exists {
		return apperror.NewDuplicate("document", "documentId", d.DocumentID)
	}
	s.docs[d.DocumentID] = d.Clone()
	return nil
}

func (s *Documents) Get(_ context.Context, documentID string) (*document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.docs[documentID]
	if !ok {
		return nil, apperror.NewNotFound("document", documentID)
	}
	return d.Clone(), nil
}

func (s *Documents) ConditionalUpdate(
	_ context.Context,
	documentID string,
	expectedVersion int,
	mutate document.Mutator,
) (*document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.docs[documentID]
	if !ok {
		return nil, apperror.NewNotFound("document", documentID)
	}
	if current.Version != expectedVersion {
		return nil, apperror.NewConcurrentModification("document", documentID).
			WithDetail("expected_version", expectedVersion).
			WithDetail("actual_version", current.Version)
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.Version = expectedVersion + 1
	s.docs[documentID] = next
	return next.Clone(), nil
}

func (s *Documents) Delete(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[documentID]; !ok {
		return apperror.NewNotFound("document", documentID)
	}
	delete(s.docs, documentID)
	return nil
}

func (s *Documents) List(_ context.Context, f document.ListFilter) ([]*document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*document.Document, 0)
	for _, d := range s.docs {
		if f.Matches(d) {
			out = append(out, d.Clone())
		}
	}
	document.SortNewestFirst(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
