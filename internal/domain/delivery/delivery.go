package delivery

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested delivery does not exist.
var ErrNotFound = errors.New("delivery not found")

// Status is the delivery state machine: READY -> IN_PROGRESS -> COMPLETED,
// with READY -> CANCELLED reachable when the last attached order is
// cancelled out of the delivery.
type Status string

const (
	StatusReady      Status = "READY"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// OrderRef is a non-owning reference to an order attached to a delivery.
type OrderRef struct {
	OrderID  string
	MemberID string
}

// Delivery groups orders awaiting shipment to one destination address. While
// READY it keeps absorbing further orders for the same address; the tracking
// number is an opaque unique token and ShippingDate stays nil until the
// delivery starts. Deliveries do not aggregate price or count, only order
// membership.
type Delivery struct {
	ID             string
	Address        string
	Status         Status
	TrackingNumber string
	ShippingDate   *time.Time
	Orders         []OrderRef
	CreatedAt      time.Time
}

// Repository defines persistence operations for deliveries. Consolidation
// (find-or-create the READY delivery for an address) happens inside order
// creation; see order.Repository.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Delivery, error)
	ListByStatus(ctx context.Context, status Status) ([]Delivery, error)
	// Start transitions a READY delivery to IN_PROGRESS and stamps the
	// shipping date. It reports whether the transition happened: false means
	// the delivery exists but is not READY, which callers treat as a no-op.
	// Start takes the delivery row lock, so it is serialized against order
	// cancellation on the same delivery.
	Start(ctx context.Context, id string, at time.Time) (bool, error)
}
