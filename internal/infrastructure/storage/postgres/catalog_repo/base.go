// Package catalog_repo provides the PostgreSQL product and customer stores.
package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"tallybook/internal/core/apperror"
	"tallybook/internal/infrastructure/storage/postgres"
)

// BaseRepo provides CRUD for a table keyed by a single text column.
// Columns come from the "db" tags of T.
type BaseRepo[T any] struct {
	txManager  *postgres.TxManager
	tableName  string
	entityName string
	keyCol     string
	selectCols []string
	orderBy    []string
}

// NewBaseRepo creates a base repository over tableName.
func NewBaseRepo[T any](txManager *postgres.TxManager, tableName, entityName, keyCol string, orderBy ...string) *BaseRepo[T] {
	return &BaseRepo[T]{
		txManager:  txManager,
		tableName:  tableName,
		entityName: entityName,
		keyCol:     keyCol,
		selectCols: postgres.ExtractDBColumns[T](),
		orderBy:    orderBy,
	}
}

// Builder returns a squirrel builder with PostgreSQL placeholders.
func (r *BaseRepo[T]) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *BaseRepo[T]) querier(ctx context.Context) postgres.Querier {
	return r.txManager.GetQuerier(ctx)
}

func (r *BaseRepo[T]) baseSelect() squirrel.SelectBuilder {
	return r.Builder().Select(r.selectCols...).From(r.tableName)
}

func (r *BaseRepo[T]) insertQuery(entity *T) squirrel.InsertBuilder {
	data := postgres.StructToMap(entity)
	filtered := make(map[string]any, len(r.selectCols))
	for _, col := range r.selectCols {
		if val, ok := data[col]; ok {
			filtered[col] = val
		}
	}
	return r.Builder().Insert(r.tableName).SetMap(filtered)
}

// updateQuery sets only the listed columns of the row identified by key.
func (r *BaseRepo[T]) updateQuery(entity *T, key string, cols ...string) squirrel.UpdateBuilder {
	data := postgres.StructToMap(entity)
	q := r.Builder().Update(r.tableName)
	for _, col := range cols {
		q = q.Set(col, data[col])
	}
	return q.Where(squirrel.Eq{r.keyCol: key})
}

func (r *BaseRepo[T]) listQuery() squirrel.SelectBuilder {
	q := r.baseSelect()
	if len(r.orderBy) > 0 {
		q = q.OrderBy(r.orderBy...)
	}
	return q
}

// Create inserts entity. A taken key returns DUPLICATE.
func (r *BaseRepo[T]) Create(ctx context.Context, entity *T, key string) error {
	sql, args, err := r.insertQuery(entity).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.querier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(fmt.Errorf("insert %s: %w", r.tableName, err), r.entityName, key)
	}
	return nil
}

// Get loads the row identified by key.
func (r *BaseRepo[T]) Get(ctx context.Context, key string) (*T, error) {
	sql, args, err := r.baseSelect().Where(squirrel.Eq{r.keyCol: key}).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	entity := new(T)
	if err := pgxscan.Get(ctx, r.querier(ctx), entity, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(r.entityName, key)
		}
		return nil, postgres.MapError(fmt.Errorf("get %s: %w", r.tableName, err), r.entityName, key)
	}
	return entity, nil
}

// List returns every row in the repository order.
func (r *BaseRepo[T]) List(ctx context.Context) ([]*T, error) {
	sql, args, err := r.listQuery().ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	items := make([]*T, 0)
	if err := pgxscan.Select(ctx, r.querier(ctx), &items, sql, args...); err != nil {
		return nil, postgres.MapError(fmt.Errorf("list %s: %w", r.tableName, err), r.entityName, "")
	}
	return items, nil
}

// Update writes cols of entity. A missing row returns NOT_FOUND.
func (r *BaseRepo[T]) Update(ctx context.Context, entity *T, key string, cols ...string) error {
	sql, args, err := r.updateQuery(entity, key, cols...).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(fmt.Errorf("update %s: %w", r.tableName, err), r.entityName, key)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound(r.entityName, key)
	}
	return nil
}

// Delete removes the row. A missing row returns NOT_FOUND.
func (r *BaseRepo[T]) Delete(ctx context.Context, key string) error {
	sql, args, err := r.Builder().Delete(r.tableName).Where(squirrel.Eq{r.keyCol: key}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	tag, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(fmt.Errorf("delete %s: %w", r.tableName, err), r.entityName, key)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound(r.entityName, key)
	}
	return nil
}
