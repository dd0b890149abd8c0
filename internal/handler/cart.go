package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-fulfillment/internal/domain/cart"
)

type addCartItemRequest struct {
	MemberID  string `json:"memberId"`
	ProductID string `json:"productId"`
	Count     int    `json:"count"`
}

type updateCartItemRequest struct {
	MemberID string `json:"memberId"`
	Delta    int    `json:"delta"`
}

type cartItemResponse struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Count       int             `json:"count"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

type cartResponse struct {
	ID         string             `json:"id"`
	MemberID   string             `json:"memberId"`
	Items      []cartItemResponse `json:"items"`
	TotalCount int                `json:"totalCount"`
	TotalPrice decimal.Decimal    `json:"totalPrice"`
}

func toCartResponse(c *cart.Cart) cartResponse {
	items := make([]cartItemResponse, len(c.Items))
	for i, item := range c.Items {
		items[i] = cartItemResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Count:       item.Count,
			UnitPrice:   item.UnitPrice,
			LineTotal:   item.LineTotal,
		}
	}
	return cartResponse{
		ID:         c.ID,
		MemberID:   c.MemberID,
		Items:      items,
		TotalCount: c.TotalCount,
		TotalPrice: c.TotalPrice,
	}
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	c, err := h.carts.AddItem(r.Context(), req.MemberID, req.ProductID, req.Count)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) showCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Show(r.Context(), chi.URLParam(r, "memberID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req updateCartItemRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	c, err := h.carts.UpdateItemCount(r.Context(), req.MemberID, chi.URLParam(r, "itemID"), req.Delta)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if c == nil {
		// The delta emptied the cart; nothing left to show.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.RemoveItem(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if c == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) deleteCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.DeleteCart(r.Context(), chi.URLParam(r, "memberID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.CreateFromCart(r.Context(), chi.URLParam(r, "memberID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}
