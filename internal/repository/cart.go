package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-fulfillment/internal/domain/cart"
)

const (
	getCartByMemberSQL = `SELECT id, member_id, total_count, total_price, created_at
		FROM carts WHERE member_id = $1`

	getCartIDByItemSQL = `SELECT cart_id FROM cart_items WHERE id = $1`

	getCartByIDSQL = `SELECT id, member_id, total_count, total_price, created_at
		FROM carts WHERE id = $1`

	listCartItemsSQL = `SELECT id, product_id, product_name, count, unit_price, line_total
		FROM cart_items WHERE cart_id = $1 ORDER BY id`

	upsertCartSQL = `INSERT INTO carts (id, member_id, total_count, total_price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET total_count = $3, total_price = $4`

	deleteCartItemsSQL = `DELETE FROM cart_items WHERE cart_id = $1`

	insertCartItemSQL = `INSERT INTO cart_items (id, cart_id, product_id, product_name, count, unit_price, line_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	deleteCartSQL = `DELETE FROM carts WHERE id = $1`
)

// uniqueViolation is the PostgreSQL error code for unique constraint breaks.
const uniqueViolation = "23505"

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// GetByMember returns the member's cart with all of its lines.
func (r *CartRepository) GetByMember(ctx context.Context, memberID string) (*cart.Cart, error) {
	c, err := r.scanCart(ctx, getCartByMemberSQL, memberID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cart.ErrNotFound
	}
	return c, err
}

// GetByItem returns the cart owning the given cart item.
func (r *CartRepository) GetByItem(ctx context.Context, itemID string) (*cart.Cart, error) {
	var cartID string
	err := r.pool.QueryRow(ctx, getCartIDByItemSQL, itemID).Scan(&cartID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cart.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolving cart for item %q: %w", itemID, err)
	}

	c, err := r.scanCart(ctx, getCartByIDSQL, cartID)
	if errors.Is(err, pgx.ErrNoRows) {
		// The cart vanished between the two reads.
		return nil, cart.ErrItemNotFound
	}
	return c, err
}

// Save upserts the cart header and replaces its full line set in one
// transaction, so the denormalized totals and the lines can never disagree
// for a reader.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertCartSQL,
			c.ID, c.MemberID, c.TotalCount, c.TotalPrice,
		); err != nil {
			return fmt.Errorf("upserting cart %q: %w", c.ID, err)
		}

		if _, err := tx.Exec(ctx, deleteCartItemsSQL, c.ID); err != nil {
			return fmt.Errorf("clearing items of cart %q: %w", c.ID, err)
		}

		for _, item := range c.Items {
			if _, err := tx.Exec(ctx, insertCartItemSQL,
				item.ID, c.ID, item.ProductID, item.ProductName,
				item.Count, item.UnitPrice, item.LineTotal,
			); err != nil {
				return fmt.Errorf("inserting item %q into cart %q: %w", item.ID, c.ID, err)
			}
		}
		return nil
	})

	// The unique index on member_id rejects a second cart for the member.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return cart.ErrAlreadyExists
	}
	return err
}

// Delete removes the cart; its items go with it via ON DELETE CASCADE.
func (r *CartRepository) Delete(ctx context.Context, cartID string) error {
	tag, err := r.pool.Exec(ctx, deleteCartSQL, cartID)
	if err != nil {
		return fmt.Errorf("deleting cart %q: %w", cartID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrNotFound
	}
	return nil
}

func (r *CartRepository) scanCart(ctx context.Context, sql string, arg any) (*cart.Cart, error) {
	var c cart.Cart
	err := r.pool.QueryRow(ctx, sql, arg).
		Scan(&c.ID, &c.MemberID, &c.TotalCount, &c.TotalPrice, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("getting cart: %w", err)
	}

	rows, err := r.pool.Query(ctx, listCartItemsSQL, c.ID)
	if err != nil {
		return nil, fmt.Errorf("listing items of cart %q: %w", c.ID, err)
	}
	c.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Item, error) {
		var item cart.Item
		err := row.Scan(&item.ID, &item.ProductID, &item.ProductName,
			&item.Count, &item.UnitPrice, &item.LineTotal)
		return item, err
	})
	if err != nil {
		return nil, fmt.Errorf("collecting items of cart %q: %w", c.ID, err)
	}
	return &c, nil
}
