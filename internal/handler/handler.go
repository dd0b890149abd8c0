// Package handler exposes the fulfillment core over HTTP. Routing is thin:
// decode, delegate to a domain service, encode, map domain errors to stable
// error codes.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/kart-fulfillment/internal/domain/cart"
	"github.com/xenking/kart-fulfillment/internal/domain/delivery"
	"github.com/xenking/kart-fulfillment/internal/domain/order"
	"github.com/xenking/kart-fulfillment/internal/domain/product"
)

// Handler bundles the domain services behind the HTTP surface.
type Handler struct {
	products   *product.Service
	carts      *cart.Service
	orders     *order.Service
	deliveries *delivery.Service
}

// New constructs a Handler with the required domain services.
func New(
	products *product.Service,
	carts *cart.Service,
	orders *order.Service,
	deliveries *delivery.Service,
) *Handler {
	return &Handler{
		products:   products,
		carts:      carts,
		orders:     orders,
		deliveries: deliveries,
	}
}

// Router builds the chi router for all exposed operations under /api.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.listProducts)
			r.Post("/", h.createProduct)
			r.Get("/{productID}", h.getProduct)
			r.Put("/{productID}", h.updateProduct)
			r.Delete("/{productID}", h.deleteProduct)
		})

		r.Route("/carts", func(r chi.Router) {
			r.Post("/items", h.addCartItem)
			r.Patch("/items/{itemID}", h.updateCartItem)
			r.Delete("/items/{itemID}", h.removeCartItem)
			r.Get("/{memberID}", h.showCart)
			r.Delete("/{memberID}", h.deleteCart)
			r.Post("/{memberID}/checkout", h.checkout)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.createOrder)
			r.Get("/{orderID}", h.getOrder)
			r.Delete("/{orderID}", h.cancelOrder)
		})

		r.Route("/members/{memberID}", func(r chi.Router) {
			r.Get("/orders", h.listMemberOrders)
			r.Put("/address", h.changeBaseAddress)
		})

		r.Route("/deliveries", func(r chi.Router) {
			r.Get("/{deliveryID}", h.getDeliveryStatus)
			r.Post("/sweep", h.runSweep)
		})
	})

	return r
}

// decode parses a JSON request body into dst.
func decode(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
