package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/kart-fulfillment/internal/domain/member"
	"github.com/xenking/kart-fulfillment/internal/domain/product"
)

// Service encapsulates cart aggregate business logic. Stock is checked on
// add but debited only at order time.
type Service struct {
	members  member.Repository
	products product.Repository
	carts    Repository
}

// NewService creates a cart Service with the required domain dependencies.
func NewService(members member.Repository, products product.Repository, carts Repository) *Service {
	return &Service{
		members:  members,
		products: products,
		carts:    carts,
	}
}

// AddItem resolves or lazily creates the member's cart, merges the product
// into an existing line or appends a new one, and recomputes the cart
// totals. It returns the updated cart snapshot.
func (s *Service) AddItem(ctx context.Context, memberID, productID string, count int) (*Cart, error) {
	if count < 1 {
		return nil, product.ErrInvalidQuantity
	}

	if _, err := s.members.GetByID(ctx, memberID); err != nil {
		return nil, err
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p.Stock.Quantity < count {
		return nil, &product.InsufficientStockError{
			ProductID: productID,
			Requested: count,
			Available: p.Stock.Quantity,
		}
	}

	c, err := s.carts.GetByMember(ctx, memberID)
	switch {
	case errors.Is(err, ErrNotFound):
		c = &Cart{ID: uuid.New().String(), MemberID: memberID}
	case err != nil:
		return nil, errors.Wrap(err, "get cart")
	}

	if item := c.FindItem(productID); item != nil {
		// Merge: sum counts, reprice the whole line at the current unit price.
		item.Count += count
		item.UnitPrice = p.Price
	} else {
		c.Items = append(c.Items, Item{
			ID:          uuid.New().String(),
			ProductID:   p.ID,
			ProductName: p.Name,
			Count:       count,
			UnitPrice:   p.Price,
		})
	}
	c.Recalculate()

	if err := s.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

// Show returns the member's cart.
func (s *Service) Show(ctx context.Context, memberID string) (*Cart, error) {
	if _, err := s.members.GetByID(ctx, memberID); err != nil {
		return nil, err
	}
	return s.carts.GetByMember(ctx, memberID)
}

// RemoveItem deletes a single cart line and recomputes the totals. When the
// last line is removed the cart itself is deleted and nil is returned.
func (s *Service) RemoveItem(ctx context.Context, itemID string) (*Cart, error) {
	c, err := s.carts.GetByItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	c.RemoveItem(itemID)
	if len(c.Items) == 0 {
		if err := s.carts.Delete(ctx, c.ID); err != nil {
			return nil, errors.Wrap(err, "delete emptied cart")
		}
		return nil, nil
	}

	c.Recalculate()
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

// UpdateItemCount applies a count delta to a cart line. A resulting count
// below 1 deletes the line instead of going zero or negative; the line total
// is repriced at the line's stored unit price.
func (s *Service) UpdateItemCount(ctx context.Context, memberID, itemID string, delta int) (*Cart, error) {
	c, err := s.carts.GetByItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if c.MemberID != memberID {
		return nil, ErrOwnerMismatch
	}

	var item *Item
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			item = &c.Items[i]
			break
		}
	}
	if item == nil {
		return nil, ErrItemNotFound
	}

	if item.Count+delta < 1 {
		return s.removeAndSave(ctx, c, itemID)
	}

	item.Count += delta
	c.Recalculate()
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

func (s *Service) removeAndSave(ctx context.Context, c *Cart, itemID string) (*Cart, error) {
	c.RemoveItem(itemID)
	if len(c.Items) == 0 {
		if err := s.carts.Delete(ctx, c.ID); err != nil {
			return nil, errors.Wrap(err, "delete emptied cart")
		}
		return nil, nil
	}
	c.Recalculate()
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

// DeleteCart removes the member's cart with all of its lines.
func (s *Service) DeleteCart(ctx context.Context, memberID string) error {
	if _, err := s.members.GetByID(ctx, memberID); err != nil {
		return err
	}
	c, err := s.carts.GetByMember(ctx, memberID)
	if err != nil {
		return err
	}
	return s.carts.Delete(ctx, c.ID)
}
