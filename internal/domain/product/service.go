package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateRequest holds the input for adding a product to the catalog. The
// stock ledger is created together with the product.
type CreateRequest struct {
	Name          string
	Price         decimal.Decimal
	Description   string
	ImagePath     string
	StockQuantity int
	StockStatus   Status
}

// UpdateRequest holds the mutable catalog fields of an existing product.
// Stock is not updated here; it changes only through the Ledger.
type UpdateRequest struct {
	Name        string
	Price       decimal.Decimal
	Description string
	ImagePath   string
}

// Service encapsulates catalog management business logic.
type Service struct {
	products Repository
}

// NewService creates a product Service.
func NewService(products Repository) *Service {
	return &Service{products: products}
}

// Create adds a new product with its initial stock.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Product, error) {
	if req.StockQuantity < 0 {
		return nil, ErrInvalidQuantity
	}
	status := req.StockStatus
	if status == "" {
		status = StatusInStock
	}
	if req.StockQuantity == 0 && status == StatusInStock {
		status = StatusOutOfStock
	}

	p := &Product{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Price:       req.Price,
		Description: req.Description,
		ImagePath:   req.ImagePath,
		Stock: Stock{
			Quantity: req.StockQuantity,
			Status:   status,
		},
	}
	if err := s.products.Create(ctx, p); err != nil {
		return nil, errors.Wrap(err, "create product")
	}
	return p, nil
}

// Update changes the catalog fields of an existing product.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*Product, error) {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	p.Name = req.Name
	p.Price = req.Price
	p.Description = req.Description
	p.ImagePath = req.ImagePath

	if err := s.products.Update(ctx, p); err != nil {
		return nil, errors.Wrap(err, "update product")
	}
	return p, nil
}

// Delete removes a product and its stock from the catalog.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.products.GetByID(ctx, id); err != nil {
		return err
	}
	return s.products.Delete(ctx, id)
}

// List returns the full catalog.
func (s *Service) List(ctx context.Context) ([]Product, error) {
	return s.products.List(ctx)
}

// GetByID returns a single product.
func (s *Service) GetByID(ctx context.Context, id string) (*Product, error) {
	return s.products.GetByID(ctx, id)
}
