package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/kart-fulfillment/internal/domain/delivery"
)

type deliveryResponse struct {
	ID             string     `json:"id"`
	Address        string     `json:"address"`
	Status         string     `json:"status"`
	TrackingNumber string     `json:"trackingNumber"`
	ShippingDate   *time.Time `json:"shippingDate"`
	OrderIDs       []string   `json:"orderIds"`
	CreatedAt      time.Time  `json:"createdAt"`
}

type sweepResponse struct {
	Started int `json:"started"`
}

func toDeliveryResponse(d *delivery.Delivery) deliveryResponse {
	orderIDs := make([]string, len(d.Orders))
	for i, ref := range d.Orders {
		orderIDs[i] = ref.OrderID
	}
	return deliveryResponse{
		ID:             d.ID,
		Address:        d.Address,
		Status:         string(d.Status),
		TrackingNumber: d.TrackingNumber,
		ShippingDate:   d.ShippingDate,
		OrderIDs:       orderIDs,
		CreatedAt:      d.CreatedAt,
	}
}

func (h *Handler) getDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	d, err := h.deliveries.Status(r.Context(), chi.URLParam(r, "deliveryID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDeliveryResponse(d))
}

func (h *Handler) runSweep(w http.ResponseWriter, r *http.Request) {
	started, err := h.deliveries.RunScheduledSweep(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sweepResponse{Started: started})
}
