package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopstack/orderdesk/internal/domain"
	"github.com/shopstack/orderdesk/internal/telemetry"
)

// LifecycleService drives the order status state machine. The transition
// table check and its inventory side effects run under a row lock inside the
// store; this layer owns the actor requirements and post-commit notifications.
type LifecycleService struct {
	store     OrderStore
	directory CustomerDirectory
	producer  Publisher
	logger    *slog.Logger
}

func NewLifecycleService(store OrderStore, directory CustomerDirectory, producer Publisher, logger *slog.Logger) *LifecycleService {
	return &LifecycleService{
		store:     store,
		directory: directory,
		producer:  producer,
		logger:    logger,
	}
}

// Transition moves the order to newStatus. Approval always requires an
// accountable staff actor.
func (s *LifecycleService) Transition(ctx context.Context, orderID int64, newStatus domain.OrderStatus, staffID *int64) (*domain.Order, error) {
	if !domain.ValidStatus(newStatus) {
		return nil, fmt.Errorf("unknown status %q: %w", newStatus, domain.ErrIllegalTransition)
	}

	if newStatus == domain.OrderStatusApproved && staffID == nil {
		return nil, domain.ErrMissingApprover
	}

	order, err := s.store.TransitionStatus(ctx, orderID, newStatus, staffID)
	if err != nil {
		return nil, err
	}
	telemetry.CountStatusTransition(ctx, string(order.Status))

	if s.producer != nil {
		email := ""
		if order.Guest != nil {
			email = order.Guest.Email
		} else if order.CustomerID != nil {
			if customer, err := s.directory.GetByID(ctx, *order.CustomerID); err != nil {
				s.logger.Error("failed to resolve customer for notification", "error", err, "order_id", order.ID)
			} else if customer != nil {
				email = customer.Email
			}
		}

		event := domain.OrderStatusChangedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			To:          order.Status,
			Email:       email,
			StaffID:     staffID,
			Timestamp:   time.Now().UTC(),
		}
		if err := s.producer.Publish(ctx, order.OrderNumber, event); err != nil {
			s.logger.Error("failed to publish status changed event", "error", err, "order_id", order.ID)
		}
	}

	s.logger.Info("order status changed", "order_id", order.ID, "status", order.Status)
	return order, nil
}

// RunDeliverySweep transitions orders stuck in shipping for longer than
// daysInTransit straight to delivered, reusing the same persistence path as
// interactive transitions.
func (s *LifecycleService) RunDeliverySweep(ctx context.Context, daysInTransit int) (int64, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(daysInTransit) * 24 * time.Hour)

	moved, err := s.store.RunDeliverySweep(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if moved > 0 {
		s.logger.Info("delivery sweep completed", "orders_delivered", moved, "days_in_transit", daysInTransit)
	}

	return moved, nil
}
