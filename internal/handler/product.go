package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-fulfillment/internal/domain/product"
)

type productRequest struct {
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Description   string          `json:"description"`
	ImagePath     string          `json:"imagePath"`
	StockQuantity int             `json:"stockQuantity"`
	StockStatus   string          `json:"stockStatus"`
}

type productResponse struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Description   string          `json:"description"`
	ImagePath     string          `json:"imagePath"`
	StockQuantity int             `json:"stockQuantity"`
	StockStatus   string          `json:"stockStatus"`
	CreatedAt     time.Time       `json:"createdAt"`
}

func toProductResponse(p product.Product) productResponse {
	return productResponse{
		ID:            p.ID,
		Name:          p.Name,
		Price:         p.Price,
		Description:   p.Description,
		ImagePath:     p.ImagePath,
		StockQuantity: p.Stock.Quantity,
		StockStatus:   string(p.Stock.Status),
		CreatedAt:     p.CreatedAt,
	}
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	list, err := h.products.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]productResponse, len(list))
	for i, p := range list {
		resp[i] = toProductResponse(p)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(*p))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	p, err := h.products.Create(r.Context(), product.CreateRequest{
		Name:          req.Name,
		Price:         req.Price,
		Description:   req.Description,
		ImagePath:     req.ImagePath,
		StockQuantity: req.StockQuantity,
		StockStatus:   product.Status(req.StockStatus),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponse(*p))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	p, err := h.products.Update(r.Context(), chi.URLParam(r, "productID"), product.UpdateRequest{
		Name:        req.Name,
		Price:       req.Price,
		Description: req.Description,
		ImagePath:   req.ImagePath,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(*p))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.products.Delete(r.Context(), chi.URLParam(r, "productID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
