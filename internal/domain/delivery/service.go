package delivery

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/kart-fulfillment/internal/domain/member"
)

// Notifier receives a best-effort notification when a delivery starts. A
// failed notification must never roll back the status transition, so
// implementations log and swallow their own errors.
type Notifier interface {
	DeliveryStarted(ctx context.Context, recipient member.Member, d Delivery)
}

// Service manages delivery state transitions and the scheduled sweep.
type Service struct {
	deliveries Repository
	members    member.Repository
	notifier   Notifier
	lg         *zap.Logger
	now        func() time.Time
}

// NewService creates a delivery Service with the required dependencies.
func NewService(deliveries Repository, members member.Repository, notifier Notifier, lg *zap.Logger) *Service {
	return &Service{
		deliveries: deliveries,
		members:    members,
		notifier:   notifier,
		lg:         lg,
		now:        time.Now,
	}
}

// Status returns the delivery with its current state and attached orders.
func (s *Service) Status(ctx context.Context, deliveryID string) (*Delivery, error) {
	return s.deliveries.GetByID(ctx, deliveryID)
}

// Start transitions a READY delivery to IN_PROGRESS and stamps the shipping
// date. Idempotent: starting a delivery that is not READY is silently
// ignored, not an error.
func (s *Service) Start(ctx context.Context, deliveryID string) error {
	started, err := s.deliveries.Start(ctx, deliveryID, s.now())
	if err != nil {
		return err
	}
	if !started {
		s.lg.Debug("delivery not READY, start ignored", zap.String("delivery_id", deliveryID))
	}
	return nil
}

// RunScheduledSweep enumerates every READY delivery, starts each one, and
// fires a best-effort notification to the members whose orders it carries.
// One delivery failing does not stop the sweep. It returns the number of
// deliveries transitioned.
func (s *Service) RunScheduledSweep(ctx context.Context) (int, error) {
	pending, err := s.deliveries.ListByStatus(ctx, StatusReady)
	if err != nil {
		return 0, errors.Wrap(err, "list ready deliveries")
	}

	var started int
	for _, d := range pending {
		ok, err := s.deliveries.Start(ctx, d.ID, s.now())
		if err != nil {
			s.lg.Error("start delivery failed",
				zap.String("delivery_id", d.ID),
				zap.Error(err),
			)
			continue
		}
		if !ok {
			// Raced with a concurrent start or cancellation.
			continue
		}
		started++
		s.lg.Info("delivery started",
			zap.String("delivery_id", d.ID),
			zap.Int("orders", len(d.Orders)),
		)
		s.notifyStarted(ctx, d)
	}
	return started, nil
}

// notifyStarted notifies each distinct member with an order on the delivery.
// Lookup failures are logged and swallowed: notification is fire-and-forget.
func (s *Service) notifyStarted(ctx context.Context, d Delivery) {
	seen := make(map[string]struct{}, len(d.Orders))
	for _, ref := range d.Orders {
		if _, ok := seen[ref.MemberID]; ok {
			continue
		}
		seen[ref.MemberID] = struct{}{}

		m, err := s.members.GetByID(ctx, ref.MemberID)
		if err != nil {
			s.lg.Warn("skip delivery notification, member lookup failed",
				zap.String("delivery_id", d.ID),
				zap.String("member_id", ref.MemberID),
				zap.Error(err),
			)
			continue
		}
		s.notifier.DeliveryStarted(ctx, *m, d)
	}
}
