package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"tallybook/internal/core/apperror"
	"tallybook/internal/domain/document"
	"tallybook/internal/infrastructure/storage/postgres"
)

// DocumentRepo implements document.Store.
type DocumentRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var _ document.Store = (*DocumentRepo)(nil)

// NewDocumentRepo creates a document repository.
func NewDocumentRepo(txManager *postgres.TxManager) *DocumentRepo {
	return &DocumentRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Put inserts a new document. A taken id or number returns DUPLICATE.
func (r *DocumentRepo) Put(ctx context.Context, d *document.Document) error {
	row, err := toRow(d)
	if err != nil {
		return err
	}
	sql, args, err := r.builder.Insert(documentsTable).
		Columns(documentColumns...).
		Values(row.values()...).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(fmt.Errorf("insert document: %w", err), "document", d.DocumentID)
	}
	return nil
}

func (r *DocumentRepo) Get(ctx context.Context, documentID string) (*document.Document, error) {
	sql, args, err := r.builder.Select(documentColumns...).
		From(documentsTable).
		Where(squirrel.Eq{"document_id": documentID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row documentRow
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("document", documentID)
		}
		return nil, postgres.MapError(fmt.Errorf("get document: %w", err), "document", documentID)
	}
	return row.toDocument()
}

// ConditionalUpdate reads the document, applies mutate and writes it back guarded
// by the version it read. Any concurrent write in between fails the guard.
func (r *DocumentRepo) ConditionalUpdate(
	ctx context.Context,
	documentID string,
	expectedVersion int,
	mutate document.Mutator,
) (*document.Document, error) {
	current, err := r.Get(ctx, documentID)
	if err != nil {
		return nil, err
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

	row, err := toRow(next)
	if err != nil {
		return nil, err
	}
	sql, args, err := r.updateQuery(row, expectedVersion).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return nil, postgres.MapError(fmt.Errorf("update document: %w", err), "document", documentID)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperror.NewConcurrentModification("document", documentID).
			WithDetail("expected_version", expectedVersion)
	}
	return next, nil
}

func (r *DocumentRepo) updateQuery(row *documentRow, expectedVersion int) squirrel.UpdateBuilder {
	var bill any
	if row.BillDetails != nil {
		bill = row.BillDetails
	}
	return r.builder.Update(documentsTable).
		Set("customer_name", row.CustomerName).
		Set("items", row.Items).
		Set("grand_total", row.GrandTotal).
		Set("notes", row.Notes).
		Set("status", row.Status).
		Set("bill_details", bill).
		Set("version", row.Version).
		Set("updated_at", row.UpdatedAt).
		Where(squirrel.Eq{"document_id": row.DocumentID}).
		Where(squirrel.Eq{"version": expectedVersion})
}

func (r *DocumentRepo) Delete(ctx context.Context, documentID string) error {
	sql, args, err := r.builder.Delete(documentsTable).
		Where(squirrel.Eq{"document_id": documentID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(fmt.Errorf("delete document: %w", err), "document", documentID)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("document", documentID)
	}
	return nil
}

// List implements document.Store.
func (r *DocumentRepo) List(ctx context.Context, f document.ListFilter) ([]*document.Document, error) {
	sql, args, err := r.listQuery(f).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []*documentRow
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, postgres.MapError(fmt.Errorf("list documents: %w", err), "document", "")
	}

	out := make([]*document.Document, 0, len(rows))
	for _, row := range rows {
		d, err := row.toDocument()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *DocumentRepo) listQuery(f document.ListFilter) squirrel.SelectBuilder {
	q := r.builder.Select(documentColumns...).From(documentsTable)

	if f.DocumentType != "" {
		q = q.Where(squirrel.Eq{"document_type": string(f.DocumentType)})
	}
	if f.CustomerID != "" {
		q = q.Where(squirrel.Eq{"customer_id": f.CustomerID})
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		q = q.Where(squirrel.Eq{"status": statuses})
	}
	if !f.StartDate.IsZero() {
		q = q.Where(squirrel.GtOrEq{"document_date": f.StartDate})
	}
	if !f.EndDate.IsZero() {
		q = q.Where(squirrel.LtOrEq{"document_date": f.EndDate})
	}

	q = q.OrderBy("document_date DESC", "created_at DESC", "document_id DESC")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	return q
}
