package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-fulfillment/internal/domain/cart"
	"github.com/xenking/kart-fulfillment/internal/domain/member"
	"github.com/xenking/kart-fulfillment/internal/domain/product"
)

// Notifier receives a best-effort order confirmation. Implementations must
// never fail the triggering operation: errors are logged and swallowed.
type Notifier interface {
	OrderPlaced(ctx context.Context, recipient member.Member, o Order)
}

// ItemRequest names a product and a quantity for direct order placement.
type ItemRequest struct {
	ProductID string
	Quantity  int
}

// CreateRequest holds the input for placing an order from an explicit item
// list. An empty Address falls back to the member's default address.
type CreateRequest struct {
	MemberID string
	Address  string
	Items    []ItemRequest
}

// Service encapsulates order assembly, cancellation, and restock logic.
// Both creation paths (explicit items and from-cart) debit stock inside the
// order transaction, all-or-nothing.
type Service struct {
	members  member.Repository
	products product.Repository
	carts    cart.Repository
	orders   Repository
	notifier Notifier
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	members member.Repository,
	products product.Repository,
	carts cart.Repository,
	orders Repository,
	notifier Notifier,
) *Service {
	return &Service{
		members:  members,
		products: products,
		carts:    carts,
		orders:   orders,
		notifier: notifier,
	}
}

// CreateFromItems builds immutable item snapshots at current catalog prices
// and persists the order. Stock for every item is debited within the same
// transaction; when any single item cannot be satisfied the whole operation
// fails and no stock is touched.
func (s *Service) CreateFromItems(ctx context.Context, req CreateRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	m, err := s.members.GetByID(ctx, req.MemberID)
	if err != nil {
		return nil, err
	}
	address := req.Address
	if address == "" {
		address = m.Address
	}

	items := make([]Item, 0, len(req.Items))
	for _, ir := range req.Items {
		if ir.Quantity < 1 {
			return nil, product.ErrInvalidQuantity
		}
		p, err := s.products.GetByID(ctx, ir.ProductID)
		if err != nil {
			return nil, err
		}
		items = append(items, Item{
			ID:          uuid.New().String(),
			ProductID:   p.ID,
			ProductName: p.Name,
			Count:       ir.Quantity,
			LineTotal:   p.Price.Mul(decimal.NewFromInt(int64(ir.Quantity))),
		})
	}

	return s.create(ctx, m, address, items)
}

// CreateFromCart converts the member's cart into an order, reusing the
// cart's line snapshots and totals, then clears the cart. The debit policy
// is the same as CreateFromItems: stock is reserved at order time, not at
// add-to-cart time.
func (s *Service) CreateFromCart(ctx context.Context, memberID string) (*Order, error) {
	m, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}

	c, err := s.carts.GetByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if len(c.Items) == 0 {
		return nil, cart.ErrNotFound
	}

	items := make([]Item, 0, len(c.Items))
	for _, ci := range c.Items {
		items = append(items, Item{
			ID:          uuid.New().String(),
			ProductID:   ci.ProductID,
			ProductName: ci.ProductName,
			Count:       ci.Count,
			LineTotal:   ci.LineTotal,
		})
	}

	o, err := s.create(ctx, m, m.Address, items)
	if err != nil {
		return nil, err
	}

	// Empty the cart but keep it. The order transaction has already
	// committed; a failure here leaves a stale cart, never a stock or order
	// inconsistency.
	c.Items = nil
	c.Recalculate()
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "clear cart after checkout")
	}
	return o, nil
}

func (s *Service) create(ctx context.Context, m *member.Member, address string, items []Item) (*Order, error) {
	o := &Order{
		ID:       uuid.New().String(),
		MemberID: m.ID,
		Address:  address,
		Items:    items,
	}
	for _, item := range items {
		o.TotalCount += item.Count
		o.TotalPrice = o.TotalPrice.Add(item.LineTotal)
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, err
	}

	s.notifier.OrderPlaced(ctx, *m, *o)
	return o, nil
}

// Show returns a single order.
func (s *Service) Show(ctx context.Context, orderID string) (*Order, error) {
	return s.orders.GetByID(ctx, orderID)
}

// ListByMember returns all orders placed by a member.
func (s *Service) ListByMember(ctx context.Context, memberID string) ([]Order, error) {
	if _, err := s.members.GetByID(ctx, memberID); err != nil {
		return nil, err
	}
	return s.orders.ListByMember(ctx, memberID)
}

// Cancel reverses an order's stock effect and deletes it. It fails with
// ErrAlreadyShipped once the owning delivery has left the READY state.
func (s *Service) Cancel(ctx context.Context, orderID string) error {
	return s.orders.Cancel(ctx, orderID)
}

// ChangeBaseAddress updates the member's default shipping address. Existing
// orders keep their address snapshots.
func (s *Service) ChangeBaseAddress(ctx context.Context, memberID, address string) error {
	if _, err := s.members.GetByID(ctx, memberID); err != nil {
		return err
	}
	return s.members.UpdateAddress(ctx, memberID, address)
}
