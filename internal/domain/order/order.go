package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrEmptyItems is returned when an order is placed without items.
	ErrEmptyItems = errors.New("items required")
	// ErrAlreadyShipped is returned when cancellation is attempted after the
	// order's delivery has left the READY state.
	ErrAlreadyShipped = errors.New("order already shipped")
)

// Item is an immutable snapshot of a product line taken at order-creation
// time. Later product or cart mutations never affect it.
type Item struct {
	ID          string
	ProductID   string
	ProductName string
	Count       int
	LineTotal   decimal.Decimal
}

// Order is created atomically with its items and the matching stock debit.
// After creation it is immutable; cancellation is the only deletion path.
// Address is a destination snapshot, not a live reference to the member's
// current default address.
type Order struct {
	ID         string
	MemberID   string
	Address    string
	Items      []Item
	TotalCount int
	TotalPrice decimal.Decimal
	DeliveryID string
	CreatedAt  time.Time
}

// Repository defines persistence operations for orders.
//
// Create is a single atomic unit: it debits stock for every item, persists
// the order with its items, and attaches the order to a READY delivery for
// its address (creating one when none exists), setting o.DeliveryID. A debit
// failure on any item rolls back the debits of all previous items.
//
// Cancel is the reverse unit: it verifies the owning delivery (if any) is
// still READY, credits stock for every item, and deletes the order. Cancel
// and delivery start are serialized per delivery.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByMember(ctx context.Context, memberID string) ([]Order, error)
	Cancel(ctx context.Context, id string) error
}
