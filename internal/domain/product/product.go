package product

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// ErrInvalidQuantity is returned when a stock mutation is requested with a
// non-positive quantity.
var ErrInvalidQuantity = errors.New("quantity must be greater than 0")

// InsufficientStockError indicates a debit larger than the available quantity.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Status describes the sale state of a product's stock.
type Status string

const (
	StatusInStock    Status = "IN_STOCK"
	StatusOutOfStock Status = "OUT_OF_STOCK"
	StatusPreOrder   Status = "PRE_ORDER"
)

// Stock is the per-product available-quantity ledger. Quantity never goes
// negative. Debit forces OUT_OF_STOCK when the quantity reaches zero; Credit
// leaves the status untouched, so a restocked product stays OUT_OF_STOCK (or
// PRE_ORDER) until the status is changed explicitly.
type Stock struct {
	Quantity int
	Status   Status
}

// Debit removes qty units. It fails without mutating the stock when qty
// exceeds the available quantity.
func (s *Stock) Debit(productID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if qty > s.Quantity {
		return &InsufficientStockError{ProductID: productID, Requested: qty, Available: s.Quantity}
	}
	s.Quantity -= qty
	if s.Quantity == 0 {
		s.Status = StatusOutOfStock
	}
	return nil
}

// Credit returns qty units to the ledger. The status is not recomputed.
func (s *Stock) Credit(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	s.Quantity += qty
	return nil
}

// Product represents a catalog item available for purchase. The stock ledger
// is owned by its product: created with it, never deleted independently.
type Product struct {
	ID          string
	Name        string
	Price       decimal.Decimal
	Description string
	ImagePath   string
	Stock       Stock
	CreatedAt   time.Time
}

// Repository defines persistence operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
}

// Ledger applies atomic stock mutations. Implementations must serialize
// concurrent debits on the same product: a debit is a single conditional
// read-modify-write, never a separate read and write.
type Ledger interface {
	// Debit decrements the product's quantity, failing with
	// *InsufficientStockError when qty exceeds the available amount.
	Debit(ctx context.Context, productID string, qty int) error
	// Credit increments the product's quantity without touching the status.
	Credit(ctx context.Context, productID string, qty int) error
}
