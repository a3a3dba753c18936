package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/retail-orders/internal/domain/product"
)

const (
	selectProductsByIDsSQL = `SELECT p.id, p.name, p.price, COALESCE(p.subcategory_id, ''),
		COALESCE(c.parent_id, ''), p.sales_count
	FROM products p
	LEFT JOIN categories c ON c.id = p.subcategory_id
	WHERE p.id = ANY($1)`

	incrementSalesSQL = `UPDATE products SET sales_count = sales_count + $2 WHERE id = $1`

	insertProductSQL = `INSERT INTO products (id, name, price, subcategory_id)
	VALUES ($1, $2, $3, NULLIF($4, ''))`

	insertCategorySQL = `INSERT INTO categories (id, name, parent_id)
	VALUES ($1, $2, NULLIF($3, '')) ON CONFLICT (id) DO NOTHING`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	store *Store
}

// NewProductRepository returns a ProductRepository over the given store.
func NewProductRepository(store *Store) *ProductRepository {
	return &ProductRepository{store: store}
}

// GetByID loads one product with its category parent resolved.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	products, err := r.GetByIDs(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, product.ErrNotFound
	}
	return &products[0], nil
}

// GetByIDs batch-fetches products in a single query, joining each product's
// subcategory to resolve its parent category for discount matching.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.store.db(ctx).Query(ctx, selectProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("scanning products: %w", err)
	}
	return products, nil
}

// IncrementSales adds qty to the product's cumulative sales counter.
func (r *ProductRepository) IncrementSales(ctx context.Context, id string, qty int) error {
	tag, err := r.store.db(ctx).Exec(ctx, incrementSalesSQL, id, qty)
	if err != nil {
		return fmt.Errorf("incrementing sales of product %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(product.ErrNotFound, "product %q", id)
	}
	return nil
}

// CreateProduct persists a catalog product. Used by seeding.
func (r *ProductRepository) CreateProduct(ctx context.Context, p *product.Product) error {
	_, err := r.store.db(ctx).Exec(ctx, insertProductSQL, p.ID, p.Name, p.Price, p.SubcategoryID)
	if err != nil {
		return fmt.Errorf("inserting product %q: %w", p.ID, err)
	}
	return nil
}

// CreateCategory persists a category node. Used by seeding.
func (r *ProductRepository) CreateCategory(ctx context.Context, id, name, parentID string) error {
	_, err := r.store.db(ctx).Exec(ctx, insertCategorySQL, id, name, parentID)
	if err != nil {
		return fmt.Errorf("inserting category %q: %w", id, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.SubcategoryID, &p.CategoryID, &p.SalesCount)
	return p, err
}
