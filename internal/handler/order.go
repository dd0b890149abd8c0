package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-fulfillment/internal/domain/order"
)

type createOrderRequest struct {
	MemberID string             `json:"memberId"`
	Address  string             `json:"address"`
	Items    []orderItemRequest `json:"items"`
}

type orderItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type changeAddressRequest struct {
	Address string `json:"address"`
}

type orderItemResponse struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Count       int             `json:"count"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

type orderResponse struct {
	ID         string              `json:"id"`
	MemberID   string              `json:"memberId"`
	Address    string              `json:"address"`
	Items      []orderItemResponse `json:"items"`
	TotalCount int                 `json:"totalCount"`
	TotalPrice decimal.Decimal     `json:"totalPrice"`
	DeliveryID string              `json:"deliveryId,omitempty"`
	CreatedAt  time.Time           `json:"createdAt"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, item := range o.Items {
		items[i] = orderItemResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Count:       item.Count,
			LineTotal:   item.LineTotal,
		}
	}
	return orderResponse{
		ID:         o.ID,
		MemberID:   o.MemberID,
		Address:    o.Address,
		Items:      items,
		TotalCount: o.TotalCount,
		TotalPrice: o.TotalPrice,
		DeliveryID: o.DeliveryID,
		CreatedAt:  o.CreatedAt,
	}
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	items := make([]order.ItemRequest, len(req.Items))
	for i, item := range req.Items {
		items[i] = order.ItemRequest{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		}
	}

	o, err := h.orders.CreateFromItems(r.Context(), order.CreateRequest{
		MemberID: req.MemberID,
		Address:  req.Address,
		Items:    items,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Show(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Cancel(r.Context(), chi.URLParam(r, "orderID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listMemberOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.ListByMember(r.Context(), chi.URLParam(r, "memberID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]orderResponse, len(list))
	for i := range list {
		resp[i] = toOrderResponse(&list[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) changeBaseAddress(w http.ResponseWriter, r *http.Request) {
	var req changeAddressRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := h.orders.ChangeBaseAddress(r.Context(), chi.URLParam(r, "memberID"), req.Address); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
