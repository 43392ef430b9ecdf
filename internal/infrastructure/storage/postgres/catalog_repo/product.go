package catalog_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"tallybook/internal/core/apperror"
	"tallybook/internal/domain/inventory"
	"tallybook/internal/infrastructure/storage/postgres"
)

const productsTable = "products"

// ProductRepo implements inventory.Store.
type ProductRepo struct {
	*BaseRepo[inventory.Product]
}

var _ inventory.Store = (*ProductRepo)(nil)

// NewProductRepo creates a product repository.
func NewProductRepo(txManager *postgres.TxManager) *ProductRepo {
	return &ProductRepo{
		BaseRepo: NewBaseRepo[inventory.Product](txManager, productsTable, "product", "product_id", "name", "product_id"),
	}
}

func (r *ProductRepo) Get(ctx context.Context, productID string) (*inventory.Product, error) {
	return r.BaseRepo.Get(ctx, productID)
}

func (r *ProductRepo) Create(ctx context.Context, p *inventory.Product) error {
	return r.BaseRepo.Create(ctx, p, p.ProductID)
}

// Update writes name, price and updated_at and reads back the current quantity.
func (r *ProductRepo) Update(ctx context.Context, p *inventory.Product) error {
	sql, args, err := r.updateQuery(p, p.ProductID, "name", "price", "updated_at").
		Suffix("RETURNING quantity, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if err := r.querier(ctx).QueryRow(ctx, sql, args...).Scan(&p.Quantity, &p.CreatedAt); err != nil {
		return postgres.MapError(fmt.Errorf("update product: %w", err), "product", p.ProductID)
	}
	return nil
}

// ConditionalDecrement implements inventory.Store with a single guarded UPDATE.
func (r *ProductRepo) ConditionalDecrement(ctx context.Context, productID string, amount int64) error {
	sql, args, err := r.decrementQuery(productID, amount).ToSql()
	if err != nil {
		return fmt.Errorf("build decrement: %w", err)
	}

	var remaining int64
	err = r.querier(ctx).QueryRow(ctx, sql, args...).Scan(&remaining)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return postgres.MapError(fmt.Errorf("decrement stock: %w", err), "product", productID)
	}

	// No row matched: tell a missing product from a short one.
	current, getErr := r.Get(ctx, productID)
	if getErr != nil {
		return getErr
	}
	return apperror.NewInsufficientStock(productID, amount, current.Quantity)
}

func (r *ProductRepo) decrementQuery(productID string, amount int64) squirrel.UpdateBuilder {
	return r.Builder().Update(productsTable).
		Set("quantity", squirrel.Expr("quantity - ?", amount)).
		Where(squirrel.Eq{"product_id": productID}).
		Where(squirrel.GtOrEq{"quantity": amount}).
		Suffix("RETURNING quantity")
}

// Increment implements inventory.Store.
func (r *ProductRepo) Increment(ctx context.Context, productID string, amount int64) error {
	sql, args, err := r.incrementQuery(productID, amount).ToSql()
	if err != nil {
		return fmt.Errorf("build increment: %w", err)
	}
	tag, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(fmt.Errorf("increment stock: %w", err), "product", productID)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("product", productID)
	}
	return nil
}

func (r *ProductRepo) incrementQuery(productID string, amount int64) squirrel.UpdateBuilder {
	return r.Builder().Update(productsTable).
		Set("quantity", squirrel.Expr("quantity + ?", amount)).
		Where(squirrel.Eq{"product_id": productID})
}
