// Package register_repo provides the PostgreSQL ledger store.
package register_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"tallybook/internal/core/apperror"
	"tallybook/internal/domain/ledger"
	"tallybook/internal/infrastructure/storage/postgres"
)

const ledgerTable = "ledger_entries"

var ledgerColumns = []string{
	"entry_id", "entry_type", "entry_date", "description", "amount",
	"customer_id", "related_document_id", "created_at",
}

// ledgerOrder is the ledger sort key; the cursor compares against the same tuple.
var ledgerOrder = []string{"entry_date", "created_at", "entry_id"}

// LedgerRepo implements ledger.Store.
type LedgerRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var _ ledger.Store = (*LedgerRepo)(nil)

// NewLedgerRepo creates a ledger repository.
func NewLedgerRepo(txManager *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *LedgerRepo) Append(ctx context.Context, e *ledger.Entry) error {
	sql, args, err := r.builder.Insert(ledgerTable).
		Columns(ledgerColumns...).
		Values(e.EntryID, e.EntryType, e.EntryDate, e.Description, e.Amount,
			e.CustomerID, e.RelatedDocumentID, e.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(fmt.Errorf("insert ledger entry: %w", err), "ledger entry", e.EntryID)
	}
	return nil
}

func (r *LedgerRepo) Remove(ctx context.Context, entryID string) error {
	sql, args, err := r.builder.Delete(ledgerTable).
		Where(squirrel.Eq{"entry_id": entryID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(fmt.Errorf("delete ledger entry: %w", err), "ledger entry", entryID)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("ledger entry", entryID)
	}
	return nil
}

// Query fetches one row past the limit to learn whether another page exists.
func (r *LedgerRepo) Query(ctx context.Context, f ledger.Filter, after *ledger.Cursor) ([]*ledger.Entry, *ledger.Cursor, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = ledger.DefaultLimit
	}

	entries, err := r.selectEntries(ctx, r.pageQuery(f, after, limit))
	if err != nil {
		return nil, nil, err
	}

	var next *ledger.Cursor
	if len(entries) > limit {
		entries = entries[:limit]
		next = ledger.CursorOf(entries[limit-1])
	}
	return entries, next, nil
}

func (r *LedgerRepo) pageQuery(f ledger.Filter, after *ledger.Cursor, limit int) squirrel.SelectBuilder {
	q := r.builder.Select(ledgerColumns...).From(ledgerTable)

	if !f.StartDate.IsZero() {
		q = q.Where(squirrel.GtOrEq{"entry_date": f.StartDate})
	}
	if !f.EndDate.IsZero() {
		q = q.Where(squirrel.LtOrEq{"entry_date": f.EndDate})
	}
	if f.EntryType != "" {
		q = q.Where(squirrel.Eq{"entry_type": string(f.EntryType)})
	}
	if f.CustomerID != "" {
		q = q.Where(squirrel.Eq{"customer_id": f.CustomerID})
	}
	if after != nil {
		q = q.Where(squirrel.Expr("(entry_date, created_at, entry_id) > (?::date, ?, ?)",
			after.EntryDate, after.CreatedAt, after.EntryID))
	}

	return q.OrderBy(ledgerOrder...).Limit(uint64(limit) + 1)
}

func (r *LedgerRepo) ListByDocument(ctx context.Context, documentID string) ([]*ledger.Entry, error) {
	return r.selectEntries(ctx, r.builder.Select(ledgerColumns...).
		From(ledgerTable).
		Where(squirrel.Eq{"related_document_id": documentID}).
		OrderBy(ledgerOrder...))
}

func (r *LedgerRepo) ListByCustomer(ctx context.Context, customerID string, documentIDs []string) ([]*ledger.Entry, error) {
	return r.selectEntries(ctx, r.customerQuery(customerID, documentIDs))
}

func (r *LedgerRepo) customerQuery(customerID string, documentIDs []string) squirrel.SelectBuilder {
	match := squirrel.Or{squirrel.Eq{"customer_id": customerID}}
	if len(documentIDs) > 0 {
		match = append(match, squirrel.Eq{"related_document_id": documentIDs})
	}
	return r.builder.Select(ledgerColumns...).
		From(ledgerTable).
		Where(match).
		OrderBy(ledgerOrder...)
}

func (r *LedgerRepo) selectEntries(ctx context.Context, q squirrel.SelectBuilder) ([]*ledger.Entry, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	entries := make([]*ledger.Entry, 0)
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &entries, sql, args...); err != nil {
		return nil, postgres.MapError(fmt.Errorf("query ledger: %w", err), "ledger entry", "")
	}
	for _, e := range entries {
		e.CreatedAt = e.CreatedAt.UTC()
	}
	return entries, nil
}
