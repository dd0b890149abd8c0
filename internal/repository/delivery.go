package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-fulfillment/internal/domain/delivery"
)

const (
	getDeliveryByIDSQL = `SELECT id, address, status, tracking_number, shipping_date, created_at
		FROM deliveries WHERE id = $1`

	listDeliveriesByStatusSQL = `SELECT id, address, status, tracking_number, shipping_date, created_at
		FROM deliveries WHERE status = $1 ORDER BY created_at, id`

	listDeliveryOrderRefsSQL = `SELECT delivery_id::text, id, member_id FROM orders
		WHERE delivery_id = ANY($1) ORDER BY created_at, id`

	// The status guard makes Start idempotent, and the implicit row lock of
	// the UPDATE serializes it against a concurrent cancellation holding the
	// delivery row.
	startDeliverySQL = `UPDATE deliveries
		SET status = 'IN_PROGRESS', shipping_date = $2
		WHERE id = $1 AND status = 'READY'`

	deliveryExistsSQL = `SELECT EXISTS (SELECT 1 FROM deliveries WHERE id = $1)`
)

var _ delivery.Repository = (*DeliveryRepository)(nil)

// DeliveryRepository implements delivery.Repository backed by PostgreSQL.
type DeliveryRepository struct {
	pool *pgxpool.Pool
}

// NewDeliveryRepository returns a DeliveryRepository that uses the given pool.
func NewDeliveryRepository(pool *pgxpool.Pool) *DeliveryRepository {
	return &DeliveryRepository{pool: pool}
}

// GetByID returns a delivery with the references of its attached orders.
func (r *DeliveryRepository) GetByID(ctx context.Context, id string) (*delivery.Delivery, error) {
	rows, err := r.pool.Query(ctx, getDeliveryByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting delivery %q: %w", id, err)
	}

	d, err := pgx.CollectExactlyOneRow(rows, scanDelivery)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, delivery.ErrNotFound
		}
		return nil, fmt.Errorf("getting delivery %q: %w", id, err)
	}

	if err := r.loadOrderRefs(ctx, []*delivery.Delivery{&d}); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListByStatus returns all deliveries in the given state, oldest first.
func (r *DeliveryRepository) ListByStatus(ctx context.Context, status delivery.Status) ([]delivery.Delivery, error) {
	rows, err := r.pool.Query(ctx, listDeliveriesByStatusSQL, string(status))
	if err != nil {
		return nil, fmt.Errorf("listing %s deliveries: %w", status, err)
	}

	list, err := pgx.CollectRows(rows, scanDelivery)
	if err != nil {
		return nil, fmt.Errorf("collecting %s deliveries: %w", status, err)
	}

	refs := make([]*delivery.Delivery, len(list))
	for i := range list {
		refs[i] = &list[i]
	}
	if err := r.loadOrderRefs(ctx, refs); err != nil {
		return nil, err
	}
	return list, nil
}

// Start transitions a READY delivery to IN_PROGRESS, stamping the shipping
// date. It reports false without error when the delivery exists but is not
// READY.
func (r *DeliveryRepository) Start(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, startDeliverySQL, id, at)
	if err != nil {
		return false, fmt.Errorf("starting delivery %q: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, deliveryExistsSQL, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking delivery %q: %w", id, err)
	}
	if !exists {
		return false, delivery.ErrNotFound
	}
	return false, nil
}

// loadOrderRefs fetches order references for the given deliveries in one
// query.
func (r *DeliveryRepository) loadOrderRefs(ctx context.Context, deliveries []*delivery.Delivery) error {
	if len(deliveries) == 0 {
		return nil
	}

	ids := make([]string, len(deliveries))
	byID := make(map[string]*delivery.Delivery, len(deliveries))
	for i, d := range deliveries {
		ids[i] = d.ID
		byID[d.ID] = d
	}

	rows, err := r.pool.Query(ctx, listDeliveryOrderRefsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing delivery orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			deliveryID string
			ref        delivery.OrderRef
		)
		if err := rows.Scan(&deliveryID, &ref.OrderID, &ref.MemberID); err != nil {
			return fmt.Errorf("scanning delivery order ref: %w", err)
		}
		if d, ok := byID[deliveryID]; ok {
			d.Orders = append(d.Orders, ref)
		}
	}
	return rows.Err()
}

func scanDelivery(row pgx.CollectableRow) (delivery.Delivery, error) {
	var (
		d      delivery.Delivery
		status string
	)
	err := row.Scan(&d.ID, &d.Address, &status, &d.TrackingNumber, &d.ShippingDate, &d.CreatedAt)
	d.Status = delivery.Status(status)
	return d, err
}
