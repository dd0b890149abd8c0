package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/xenking/kart-fulfillment/internal/domain/delivery"
	"github.com/xenking/kart-fulfillment/internal/domain/member"
	"github.com/xenking/kart-fulfillment/internal/domain/order"
)

const publishTimeout = 5 * time.Second

// Kafka publishes notification events to a Kafka topic. Writes are
// asynchronous; delivery failures surface only in the log.
type Kafka struct {
	writer *kafka.Writer
	lg     *zap.Logger
}

var (
	_ order.Notifier    = (*Kafka)(nil)
	_ delivery.Notifier = (*Kafka)(nil)
)

// NewKafka creates a notifier writing to the given brokers and topic.
func NewKafka(brokers []string, topic string, lg *zap.Logger) *Kafka {
	n := &Kafka{lg: lg}
	n.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				lg.Warn("notification publish failed",
					zap.Int("messages", len(messages)),
					zap.Error(err),
				)
			}
		},
	}
	return n
}

// Close flushes pending messages and releases the writer.
func (n *Kafka) Close() error {
	return n.writer.Close()
}

// OrderPlaced publishes an order confirmation event keyed by member ID.
func (n *Kafka) OrderPlaced(ctx context.Context, recipient member.Member, o order.Order) {
	n.publish(ctx, recipient.ID, OrderPlacedEvent{
		Type:              "order.placed",
		OrderID:           o.ID,
		MemberID:          o.MemberID,
		RecipientNickname: recipient.Nickname,
		RecipientEmail:    recipient.Email,
		Address:           o.Address,
		TotalCount:        o.TotalCount,
		TotalPrice:        o.TotalPrice.String(),
		OccurredAt:        time.Now().UTC(),
	})
}

// DeliveryStarted publishes a shipment-started event keyed by member ID.
func (n *Kafka) DeliveryStarted(ctx context.Context, recipient member.Member, d delivery.Delivery) {
	n.publish(ctx, recipient.ID, DeliveryStartedEvent{
		Type:              "delivery.started",
		DeliveryID:        d.ID,
		TrackingNumber:    d.TrackingNumber,
		Address:           d.Address,
		Status:            string(d.Status),
		ShippingDate:      d.ShippingDate,
		OrderCount:        len(d.Orders),
		RecipientNickname: recipient.Nickname,
		RecipientEmail:    recipient.Email,
		OccurredAt:        time.Now().UTC(),
	})
}

// publish serializes and enqueues one event. The write outlives the request
// context so an already-answered request cannot cancel its notification.
func (n *Kafka) publish(ctx context.Context, key string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		n.lg.Warn("notification marshal failed", zap.Error(err))
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := n.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
	}); err != nil {
		n.lg.Warn("notification enqueue failed", zap.Error(err))
	}
}
