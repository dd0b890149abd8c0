package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a member has no cart.
	ErrNotFound = errors.New("cart not found")
	// ErrItemNotFound is returned when a cart item does not exist.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrAlreadyExists is returned when a cart is created for a member that
	// already holds one. A member has at most one cart.
	ErrAlreadyExists = errors.New("cart already exists for member")
	// ErrOwnerMismatch is returned when a cart item is mutated by a member
	// that does not own it.
	ErrOwnerMismatch = errors.New("cart item does not belong to member")
)

// Item is a single cart line. UnitPrice is the product price captured when
// the line was created; LineTotal is always Count times UnitPrice.
type Item struct {
	ID          string
	ProductID   string
	ProductName string
	Count       int
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

// Cart is a member's mutable basket. TotalCount and TotalPrice are
// denormalized caches; Recalculate rebuilds them from the full line set and
// must run after every line mutation so they never drift incrementally.
type Cart struct {
	ID         string
	MemberID   string
	Items      []Item
	TotalCount int
	TotalPrice decimal.Decimal
	CreatedAt  time.Time
}

// Recalculate recomputes every line total and the cart totals from scratch.
func (c *Cart) Recalculate() {
	c.TotalCount = 0
	c.TotalPrice = decimal.Zero
	for i := range c.Items {
		item := &c.Items[i]
		item.LineTotal = item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Count)))
		c.TotalCount += item.Count
		c.TotalPrice = c.TotalPrice.Add(item.LineTotal)
	}
}

// FindItem returns the line holding productID, or nil.
func (c *Cart) FindItem(productID string) *Item {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i]
		}
	}
	return nil
}

// RemoveItem drops the line with the given item ID. It reports whether a
// line was removed.
func (c *Cart) RemoveItem(itemID string) bool {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return true
		}
	}
	return false
}

// Repository defines persistence operations for carts. Save persists the
// cart header and its full line set in one transaction, so a reader never
// observes totals that disagree with the lines.
type Repository interface {
	// GetByMember returns the member's cart, or ErrNotFound.
	GetByMember(ctx context.Context, memberID string) (*Cart, error)
	// GetByItem returns the cart owning the given item, or ErrItemNotFound.
	GetByItem(ctx context.Context, itemID string) (*Cart, error)
	// Save upserts the cart and replaces its items atomically. Creating a
	// second cart for a member fails with ErrAlreadyExists.
	Save(ctx context.Context, c *Cart) error
	// Delete removes the cart and all of its items.
	Delete(ctx context.Context, cartID string) error
}
