package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tallybook/internal/core/apperror"
	"tallybook/internal/core/types"
	"tallybook/internal/domain/document"
	"tallybook/internal/domain/inventory"
)

func TestConditionalDecrement(t *testing.T) {
	ctx := context.Background()
	s := NewProducts()
	require.NoError(t, s.Create(ctx, &inventory.Product{ProductID: "P1", Name: "Widget", Price: types.MustMoney("1"), Quantity: 3}))

	require.NoError(t, s.ConditionalDecrement(ctx, "P1", 3))
	err := s.ConditionalDecrement(ctx, "P1", 1)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))

	require.NoError(t, s.Increment(ctx, "P1", 2))
	p, err := s.Get(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.Quantity)

	assert.True(t, apperror.IsNotFound(s.ConditionalDecrement(ctx, "nope", 1)))
}

func TestProductUpdateKeepsQuantity(t *testing.T) {
	ctx := context.Background()
	s := NewProducts()
	require.NoError(t, s.Create(ctx, &inventory.Product{ProductID: "P1", Name: "Widget", Price: types.MustMoney("1"), Quantity: 7}))

	require.NoError(t, s.Update(ctx, &inventory.Product{ProductID: "P1", Name: "Widget v2", Price: types.MustMoney("2"), Quantity: 999}))
	p, err := s.Get(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, "Widget v2", p.Name)
	assert.Equal(t, int64(7), p.Quantity)
}

func TestDocumentConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewDocuments()
	doc := &document.Document{DocumentID: "D1", DocumentType: document.TypeQuotation, Status: document.StatusActive}
	doc.Version = 1
	require.NoError(t, s.Put(ctx, doc))
	assert.True(t, apperror.HasCode(s.Put(ctx, doc), apperror.CodeDuplicate))

	updated, err := s.ConditionalUpdate(ctx, "D1", 1, func(d *document.Document) error {
		d.Notes = "first"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	_, err = s.ConditionalUpdate(ctx, "D1", 1, func(d *document.Document) error {
		d.Notes = "stale"
		return nil
	})
	assert.True(t, apperror.IsConcurrentModification(err))

	_, err = s.ConditionalUpdate(ctx, "D1", 2, func(*document.Document) error {
		return apperror.NewValidation("nope")
	})
	require.Error(t, err)

	got, err := s.Get(ctx, "D1")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Notes)
	assert.Equal(t, 2, got.Version)

	got.Notes = "mutated copy"
	again, err := s.Get(ctx, "D1")
	require.NoError(t, err)
	assert.Equal(t, "first", again.Notes)
}
