package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-fulfillment/internal/domain/delivery"
	"github.com/xenking/kart-fulfillment/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (id, member_id, address, total_count, total_price, delivery_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	insertOrderItemSQL = `INSERT INTO order_items (id, order_id, product_id, product_name, count, line_total)
		VALUES ($1, $2, $3, $4, $5, $6)`

	getOrderByIDSQL = `SELECT id, member_id, address, total_count, total_price, COALESCE(delivery_id::text, ''), created_at
		FROM orders WHERE id = $1`

	listOrdersByMemberSQL = `SELECT id, member_id, address, total_count, total_price, COALESCE(delivery_id::text, ''), created_at
		FROM orders WHERE member_id = $1 ORDER BY created_at, id`

	listOrderItemsSQL = `SELECT id, order_id, product_id, product_name, count, line_total
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`

	// Consolidation lookup locks the READY delivery row so it cannot start
	// (or be cancelled away) while this order is being attached.
	findReadyDeliverySQL = `SELECT id FROM deliveries
		WHERE address = $1 AND status = 'READY' FOR UPDATE`

	// The partial unique index deliveries_ready_address_idx turns the
	// find-or-create race into an insert conflict: the loser re-selects the
	// winner's row instead of opening a second delivery.
	insertDeliverySQL = `INSERT INTO deliveries (id, address, status, tracking_number)
		VALUES ($1, $2, 'READY', $3)
		ON CONFLICT (address) WHERE status = 'READY' DO NOTHING`

	lockOrderSQL = `SELECT COALESCE(delivery_id::text, '') FROM orders WHERE id = $1 FOR UPDATE`

	lockDeliveryStatusSQL = `SELECT status FROM deliveries WHERE id = $1 FOR UPDATE`

	listRestockItemsSQL = `SELECT product_id, count FROM order_items WHERE order_id = $1`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	countDeliveryOrdersSQL = `SELECT count(*) FROM orders WHERE delivery_id = $1`

	cancelDeliverySQL = `UPDATE deliveries SET status = 'CANCELLED' WHERE id = $1`
)

// consolidationAttempts bounds the insert/re-select loop. Two rounds suffice:
// a lost insert conflict means a committed READY row exists to re-select.
const consolidationAttempts = 3

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order as one atomic unit: every item's stock debit,
// the order row with its item snapshots, and the attachment to the READY
// delivery for the destination address. Any failure rolls the whole unit
// back, so a debit can never outlive a failed order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, item := range o.Items {
			if err := debitStock(ctx, tx, item.ProductID, item.Count); err != nil {
				return err
			}
		}

		deliveryID, err := attachReadyDelivery(ctx, tx, o.Address)
		if err != nil {
			return err
		}

		if err := tx.QueryRow(ctx, insertOrderSQL,
			o.ID, o.MemberID, o.Address, o.TotalCount, o.TotalPrice, deliveryID,
		).Scan(&o.CreatedAt); err != nil {
			return fmt.Errorf("creating order %q: %w", o.ID, err)
		}

		for _, item := range o.Items {
			if _, err := tx.Exec(ctx, insertOrderItemSQL,
				item.ID, o.ID, item.ProductID, item.ProductName, item.Count, item.LineTotal,
			); err != nil {
				return fmt.Errorf("creating item %q of order %q: %w", item.ID, o.ID, err)
			}
		}

		o.DeliveryID = deliveryID
		return nil
	})
}

// attachReadyDelivery finds the open delivery for the address, creating one
// with a fresh tracking number when none exists.
func attachReadyDelivery(ctx context.Context, tx pgx.Tx, address string) (string, error) {
	for range consolidationAttempts {
		var id string
		err := tx.QueryRow(ctx, findReadyDeliverySQL, address).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("finding ready delivery for %q: %w", address, err)
		}

		id = uuid.New().String()
		tag, err := tx.Exec(ctx, insertDeliverySQL, id, address, uuid.New().String())
		if err != nil {
			return "", fmt.Errorf("creating delivery for %q: %w", address, err)
		}
		if tag.RowsAffected() == 1 {
			return id, nil
		}
		// Lost the insert race; the next round re-selects the winner.
	}
	return "", fmt.Errorf("consolidating delivery for %q: retries exhausted", address)
}

// GetByID returns a single order with its item snapshots.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	if err := r.loadItems(ctx, []*order.Order{&o}); err != nil {
		return nil, err
	}
	return &o, nil
}

// ListByMember returns all orders placed by the member, oldest first.
func (r *OrderRepository) ListByMember(ctx context.Context, memberID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByMemberSQL, memberID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of member %q: %w", memberID, err)
	}

	list, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("collecting orders of member %q: %w", memberID, err)
	}

	refs := make([]*order.Order, len(list))
	for i := range list {
		refs[i] = &list[i]
	}
	if err := r.loadItems(ctx, refs); err != nil {
		return nil, err
	}
	return list, nil
}

// Cancel reverses the order atomically: it locks the order and its delivery,
// rejects the cancellation once the delivery has left READY, credits every
// item's stock, deletes the order, and cancels the delivery when this was
// its last order. The delivery row lock serializes cancellation against the
// scheduled sweep's start on the same delivery.
func (r *OrderRepository) Cancel(ctx context.Context, id string) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		var deliveryID string
		err := tx.QueryRow(ctx, lockOrderSQL, id).Scan(&deliveryID)
		if errors.Is(err, pgx.ErrNoRows) {
			return order.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("locking order %q: %w", id, err)
		}

		if deliveryID != "" {
			var status string
			err := tx.QueryRow(ctx, lockDeliveryStatusSQL, deliveryID).Scan(&status)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("locking delivery %q: %w", deliveryID, err)
			}
			if err == nil && delivery.Status(status) != delivery.StatusReady {
				return order.ErrAlreadyShipped
			}
		}

		rows, err := tx.Query(ctx, listRestockItemsSQL, id)
		if err != nil {
			return fmt.Errorf("listing items of order %q: %w", id, err)
		}
		type restock struct {
			productID string
			count     int
		}
		restocks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (restock, error) {
			var rs restock
			err := row.Scan(&rs.productID, &rs.count)
			return rs, err
		})
		if err != nil {
			return fmt.Errorf("collecting items of order %q: %w", id, err)
		}

		for _, rs := range restocks {
			if err := creditStock(ctx, tx, rs.productID, rs.count); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(ctx, deleteOrderSQL, id); err != nil {
			return fmt.Errorf("deleting order %q: %w", id, err)
		}

		if deliveryID != "" {
			var remaining int
			if err := tx.QueryRow(ctx, countDeliveryOrdersSQL, deliveryID).Scan(&remaining); err != nil {
				return fmt.Errorf("counting orders of delivery %q: %w", deliveryID, err)
			}
			// Policy: a delivery emptied by cancellation is cancelled too,
			// instead of lingering READY under a stale tracking number.
			if remaining == 0 {
				if _, err := tx.Exec(ctx, cancelDeliverySQL, deliveryID); err != nil {
					return fmt.Errorf("cancelling empty delivery %q: %w", deliveryID, err)
				}
			}
		}
		return nil
	})
}

// loadItems fetches item snapshots for the given orders in a single query.
func (r *OrderRepository) loadItems(ctx context.Context, orders []*order.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	byID := make(map[string]*order.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
	}

	rows, err := r.pool.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item    order.Item
			orderID string
		)
		if err := rows.Scan(&item.ID, &orderID, &item.ProductID,
			&item.ProductName, &item.Count, &item.LineTotal); err != nil {
			return fmt.Errorf("scanning order item: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return rows.Err()
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.MemberID, &o.Address,
		&o.TotalCount, &o.TotalPrice, &o.DeliveryID, &o.CreatedAt)
	return o, err
}
