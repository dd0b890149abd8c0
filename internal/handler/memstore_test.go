package handler

// In-memory repositories backing the handler tests. They honor the same
// contracts as the postgres implementations: atomic debit-or-nothing order
// creation, address consolidation onto READY deliveries, and row-level
// cancel/start exclusion collapsed onto one store lock.

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xenking/kart-fulfillment/internal/domain/cart"
	"github.com/xenking/kart-fulfillment/internal/domain/delivery"
	"github.com/xenking/kart-fulfillment/internal/domain/member"
	"github.com/xenking/kart-fulfillment/internal/domain/order"
	"github.com/xenking/kart-fulfillment/internal/domain/product"
)

type memStore struct {
	mu         sync.Mutex
	members    map[string]*member.Member
	products   map[string]*product.Product
	carts      map[string]*cart.Cart
	orders     map[string]*order.Order
	deliveries map[string]*delivery.Delivery
}

func newMemStore() *memStore {
	return &memStore{
		members:    make(map[string]*member.Member),
		products:   make(map[string]*product.Product),
		carts:      make(map[string]*cart.Cart),
		orders:     make(map[string]*order.Order),
		deliveries: make(map[string]*delivery.Delivery),
	}
}

// --- member.Repository ---

type memMemberRepo struct{ s *memStore }

func (r memMemberRepo) GetByID(_ context.Context, id string) (*member.Member, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.members[id]
	if !ok {
		return nil, member.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r memMemberRepo) UpdateAddress(_ context.Context, id, address string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.members[id]
	if !ok {
		return member.ErrNotFound
	}
	m.Address = address
	return nil
}

// --- product.Repository ---

type memProductRepo struct{ s *memStore }

func (r memProductRepo) List(_ context.Context) ([]product.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]product.Product, 0, len(r.s.products))
	for _, p := range r.s.products {
		out = append(out, *p)
	}
	return out, nil
}

func (r memProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r memProductRepo) Create(_ context.Context, p *product.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p.CreatedAt = time.Now()
	cp := *p
	r.s.products[p.ID] = &cp
	return nil
}

func (r memProductRepo) Update(_ context.Context, p *product.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.products[p.ID]
	if !ok {
		return product.ErrNotFound
	}
	existing.Name = p.Name
	existing.Price = p.Price
	existing.Description = p.Description
	existing.ImagePath = p.ImagePath
	return nil
}

func (r memProductRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[id]; !ok {
		return product.ErrNotFound
	}
	delete(r.s.products, id)
	return nil
}

// --- cart.Repository ---

type memCartRepo struct{ s *memStore }

func copyCart(c *cart.Cart) *cart.Cart {
	cp := *c
	cp.Items = append([]cart.Item(nil), c.Items...)
	return &cp
}

func (r memCartRepo) GetByMember(_ context.Context, memberID string) (*cart.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.carts[memberID]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return copyCart(c), nil
}

func (r memCartRepo) GetByItem(_ context.Context, itemID string) (*cart.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.carts {
		for _, item := range c.Items {
			if item.ID == itemID {
				return copyCart(c), nil
			}
		}
	}
	return nil, cart.ErrItemNotFound
}

func (r memCartRepo) Save(_ context.Context, c *cart.Cart) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing, ok := r.s.carts[c.MemberID]; ok && existing.ID != c.ID {
		return cart.ErrAlreadyExists
	}
	r.s.carts[c.MemberID] = copyCart(c)
	return nil
}

func (r memCartRepo) Delete(_ context.Context, cartID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for memberID, c := range r.s.carts {
		if c.ID == cartID {
			delete(r.s.carts, memberID)
			return nil
		}
	}
	return cart.ErrNotFound
}

// --- order.Repository ---

type memOrderRepo struct{ s *memStore }

func (r memOrderRepo) Create(_ context.Context, o *order.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	debited := make([]order.Item, 0, len(o.Items))
	rollback := func() {
		for _, item := range debited {
			_ = r.s.products[item.ProductID].Stock.Credit(item.Count)
		}
	}
	for _, item := range o.Items {
		p, ok := r.s.products[item.ProductID]
		if !ok {
			rollback()
			return product.ErrNotFound
		}
		if err := p.Stock.Debit(p.ID, item.Count); err != nil {
			rollback()
			return err
		}
		debited = append(debited, item)
	}

	d := r.readyDeliveryFor(o.Address)
	d.Orders = append(d.Orders, delivery.OrderRef{OrderID: o.ID, MemberID: o.MemberID})
	o.DeliveryID = d.ID
	o.CreatedAt = time.Now()

	cp := *o
	cp.Items = append([]order.Item(nil), o.Items...)
	r.s.orders[o.ID] = &cp
	return nil
}

func (r memOrderRepo) readyDeliveryFor(address string) *delivery.Delivery {
	for _, d := range r.s.deliveries {
		if d.Address == address && d.Status == delivery.StatusReady {
			return d
		}
	}
	d := &delivery.Delivery{
		ID:             uuid.New().String(),
		Address:        address,
		Status:         delivery.StatusReady,
		TrackingNumber: uuid.New().String(),
		CreatedAt:      time.Now(),
	}
	r.s.deliveries[d.ID] = d
	return d
}

func (r memOrderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r memOrderRepo) ListByMember(_ context.Context, memberID string) ([]order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []order.Order
	for _, o := range r.s.orders {
		if o.MemberID == memberID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r memOrderRepo) Cancel(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, ok := r.s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	d := r.s.deliveries[o.DeliveryID]
	if d != nil && d.Status != delivery.StatusReady {
		return order.ErrAlreadyShipped
	}

	for _, item := range o.Items {
		if p, ok := r.s.products[item.ProductID]; ok {
			_ = p.Stock.Credit(item.Count)
		}
	}
	delete(r.s.orders, id)

	if d != nil {
		for i, ref := range d.Orders {
			if ref.OrderID == id {
				d.Orders = append(d.Orders[:i], d.Orders[i+1:]...)
				break
			}
		}
		if len(d.Orders) == 0 {
			d.Status = delivery.StatusCancelled
		}
	}
	return nil
}

// --- delivery.Repository ---

type memDeliveryRepo struct{ s *memStore }

func (r memDeliveryRepo) GetByID(_ context.Context, id string) (*delivery.Delivery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.deliveries[id]
	if !ok {
		return nil, delivery.ErrNotFound
	}
	cp := *d
	cp.Orders = append([]delivery.OrderRef(nil), d.Orders...)
	return &cp, nil
}

func (r memDeliveryRepo) ListByStatus(_ context.Context, status delivery.Status) ([]delivery.Delivery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []delivery.Delivery
	for _, d := range r.s.deliveries {
		if d.Status == status {
			cp := *d
			cp.Orders = append([]delivery.OrderRef(nil), d.Orders...)
			out = append(out, cp)
		}
	}
	return out, nil
}

func (r memDeliveryRepo) Start(_ context.Context, id string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.deliveries[id]
	if !ok {
		return false, delivery.ErrNotFound
	}
	if d.Status != delivery.StatusReady {
		return false, nil
	}
	d.Status = delivery.StatusInProgress
	d.ShippingDate = &at
	return true, nil
}
