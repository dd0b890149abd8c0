package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-fulfillment/internal/domain/cart"
	"github.com/xenking/kart-fulfillment/internal/domain/delivery"
	"github.com/xenking/kart-fulfillment/internal/domain/member"
	"github.com/xenking/kart-fulfillment/internal/domain/order"
	"github.com/xenking/kart-fulfillment/internal/domain/product"
)

// errorResponse is the JSON failure body: a stable machine-readable code and
// a human-readable message.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps a domain error to its HTTP status and stable code.
// Anything unmapped is an infrastructure fault: logged and answered as a
// generic internal error, distinct from the domain taxonomy.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeJSON(w, status, errorResponse{Code: code, Message: "internal error"})
		return
	}
	writeJSON(w, status, errorResponse{Code: code, Message: err.Error()})
}

func classify(err error) (int, string) {
	var insErr *product.InsufficientStockError

	switch {
	case errors.Is(err, member.ErrNotFound):
		return http.StatusNotFound, "MEMBER_NOT_FOUND"
	case errors.Is(err, product.ErrNotFound):
		return http.StatusNotFound, "PRODUCT_NOT_FOUND"
	case errors.Is(err, cart.ErrNotFound):
		return http.StatusNotFound, "CART_NOT_FOUND"
	case errors.Is(err, cart.ErrItemNotFound):
		return http.StatusNotFound, "CART_ITEM_NOT_FOUND"
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, "ORDER_NOT_FOUND"
	case errors.Is(err, delivery.ErrNotFound):
		return http.StatusNotFound, "DELIVERY_NOT_FOUND"
	case errors.Is(err, cart.ErrAlreadyExists):
		return http.StatusConflict, "CART_ALREADY_EXISTS"
	case errors.Is(err, cart.ErrOwnerMismatch):
		return http.StatusConflict, "CART_ITEM_OWNER_MISMATCH"
	case errors.As(err, &insErr):
		return http.StatusConflict, "INSUFFICIENT_STOCK"
	case errors.Is(err, order.ErrAlreadyShipped):
		return http.StatusConflict, "ORDER_ALREADY_SHIPPED"
	case errors.Is(err, product.ErrInvalidQuantity):
		return http.StatusBadRequest, "INVALID_QUANTITY"
	case errors.Is(err, order.ErrEmptyItems):
		return http.StatusBadRequest, "EMPTY_ITEMS"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// writeBadRequest reports a malformed request body.
func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Code:    "BAD_REQUEST",
		Message: err.Error(),
	})
}
