// Package notify publishes fire-and-forget fulfillment notifications.
// Publishing failures are logged and swallowed: a lost notification never
// fails the business operation that triggered it.
package notify

import (
	"context"
	"time"

	"github.com/xenking/kart-fulfillment/internal/domain/delivery"
	"github.com/xenking/kart-fulfillment/internal/domain/member"
	"github.com/xenking/kart-fulfillment/internal/domain/order"
)

// OrderPlacedEvent is the payload published when an order is created.
type OrderPlacedEvent struct {
	Type              string    `json:"type"`
	OrderID           string    `json:"orderId"`
	MemberID          string    `json:"memberId"`
	RecipientNickname string    `json:"recipientNickname"`
	RecipientEmail    string    `json:"recipientEmail"`
	Address           string    `json:"address"`
	TotalCount        int       `json:"totalCount"`
	TotalPrice        string    `json:"totalPrice"`
	OccurredAt        time.Time `json:"occurredAt"`
}

// DeliveryStartedEvent is the payload published when a delivery transitions
// to IN_PROGRESS.
type DeliveryStartedEvent struct {
	Type              string     `json:"type"`
	DeliveryID        string     `json:"deliveryId"`
	TrackingNumber    string     `json:"trackingNumber"`
	Address           string     `json:"address"`
	Status            string     `json:"status"`
	ShippingDate      *time.Time `json:"shippingDate"`
	OrderCount        int        `json:"orderCount"`
	RecipientNickname string     `json:"recipientNickname"`
	RecipientEmail    string     `json:"recipientEmail"`
	OccurredAt        time.Time  `json:"occurredAt"`
}

// Nop is a Notifier that drops every event. Used when no brokers are
// configured.
type Nop struct{}

func (Nop) OrderPlaced(context.Context, member.Member, order.Order) {}

func (Nop) DeliveryStarted(context.Context, member.Member, delivery.Delivery) {}

var (
	_ order.Notifier    = Nop{}
	_ delivery.Notifier = Nop{}
)
