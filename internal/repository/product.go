package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-fulfillment/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, name, price, description, image_path, stock_quantity, stock_status, created_at
		FROM products ORDER BY created_at, id`

	getProductByIDSQL = `SELECT id, name, price, description, image_path, stock_quantity, stock_status, created_at
		FROM products WHERE id = $1`

	insertProductSQL = `INSERT INTO products (id, name, price, description, image_path, stock_quantity, stock_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	updateProductSQL = `UPDATE products
		SET name = $2, price = $3, description = $4, image_path = $5
		WHERE id = $1`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	// upsertProductSQL refreshes catalog fields on conflict but leaves the
	// stock ledger of an existing product alone.
	upsertProductSQL = `INSERT INTO products (id, name, price, description, image_path, stock_quantity, stock_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    price = EXCLUDED.price,
		    description = EXCLUDED.description,
		    image_path = EXCLUDED.image_path`

	// debitStockSQL is the whole stock ledger debit: one conditional
	// read-modify-write. The WHERE guard keeps the quantity non-negative under
	// concurrent debits, and the row reaching zero flips to OUT_OF_STOCK in
	// the same statement.
	debitStockSQL = `UPDATE products
		SET stock_quantity = stock_quantity - $2,
		    stock_status = CASE WHEN stock_quantity - $2 = 0 THEN 'OUT_OF_STOCK' ELSE stock_status END
		WHERE id = $1 AND stock_quantity >= $2`

	// creditStockSQL restores quantity without touching the status flag.
	creditStockSQL = `UPDATE products
		SET stock_quantity = stock_quantity + $2
		WHERE id = $1`

	getStockQuantitySQL = `SELECT stock_quantity FROM products WHERE id = $1`
)

var (
	_ product.Repository = (*ProductRepository)(nil)
	_ product.Ledger     = (*ProductRepository)(nil)
)

// ProductRepository implements product.Repository and product.Ledger backed
// by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns the full catalog ordered by creation time.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// Create persists a new product together with its stock ledger.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	err := r.pool.QueryRow(ctx, insertProductSQL,
		p.ID, p.Name, p.Price, p.Description, p.ImagePath,
		p.Stock.Quantity, string(p.Stock.Status),
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating product %q: %w", p.ID, err)
	}
	return nil
}

// Update persists the catalog fields of a product. Stock changes only
// through Debit and Credit.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	tag, err := r.pool.Exec(ctx, updateProductSQL,
		p.ID, p.Name, p.Price, p.Description, p.ImagePath,
	)
	if err != nil {
		return fmt.Errorf("updating product %q: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Delete removes a product and its stock.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Upsert inserts a product or refreshes its catalog fields. Used by seed and
// ingest tooling; the API creates products through Create.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	_, err := r.pool.Exec(ctx, upsertProductSQL,
		p.ID, p.Name, p.Price, p.Description, p.ImagePath,
		p.Stock.Quantity, string(p.Stock.Status),
	)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

// Debit atomically decrements the product's available quantity.
func (r *ProductRepository) Debit(ctx context.Context, productID string, qty int) error {
	return debitStock(ctx, r.pool, productID, qty)
}

// Credit atomically increments the product's available quantity. The status
// flag is left untouched.
func (r *ProductRepository) Credit(ctx context.Context, productID string, qty int) error {
	return creditStock(ctx, r.pool, productID, qty)
}

// debitStock runs the conditional debit on any querier, so order creation
// can reuse it inside its transaction.
func debitStock(ctx context.Context, q querier, productID string, qty int) error {
	if qty <= 0 {
		return product.ErrInvalidQuantity
	}

	tag, err := q.Exec(ctx, debitStockSQL, productID, qty)
	if err != nil {
		return fmt.Errorf("debiting stock for product %q: %w", productID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// The guard rejected the debit: either the product is gone or the
	// quantity is short. Distinguish for the caller.
	var available int
	err = q.QueryRow(ctx, getStockQuantitySQL, productID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return product.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking stock for product %q: %w", productID, err)
	}
	return &product.InsufficientStockError{
		ProductID: productID,
		Requested: qty,
		Available: available,
	}
}

func creditStock(ctx context.Context, q querier, productID string, qty int) error {
	if qty <= 0 {
		return product.ErrInvalidQuantity
	}

	tag, err := q.Exec(ctx, creditStockSQL, productID, qty)
	if err != nil {
		return fmt.Errorf("crediting stock for product %q: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p      product.Product
		status string
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Price, &p.Description, &p.ImagePath,
		&p.Stock.Quantity, &status, &p.CreatedAt,
	)
	p.Stock.Status = product.Status(status)
	return p, err
}
