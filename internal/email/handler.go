package email

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/shopstack/orderdesk/internal/domain"
)

// Sender delivers a single message. Delivery failures are the caller's to
// log; nothing in the order pipeline ever rolls back because an email failed.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogSender stands in for the real mail collaborator: it records the send
// and succeeds. Swap in an SMTP- or API-backed Sender in deployment.
type LogSender struct {
	Logger *slog.Logger
}

func (s *LogSender) Send(_ context.Context, to, subject, _ string) error {
	s.Logger.Info("email sent", "to", to, "subject", subject)
	return nil
}

// NotificationHandler consumes order events and dispatches the customer-facing
// notifications for them.
type NotificationHandler struct {
	sender Sender
	logger *slog.Logger
}

func NewNotificationHandler(sender Sender, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		sender: sender,
		logger: logger,
	}
}

// HandleStatusChanged sends the approval notification when an order reaches
// approved. Other status changes are acknowledged without mail.
func (h *NotificationHandler) HandleStatusChanged(ctx context.Context, payload []byte) error {
	var event domain.OrderStatusChangedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal status changed event: %w", err)
	}

	if event.To != domain.OrderStatusApproved {
		return nil
	}

	if event.Email == "" {
		h.logger.Warn("no contact email for approval notification", "order_number", event.OrderNumber)
		return nil
	}

	subject := "Order approved: " + event.OrderNumber
	body := fmt.Sprintf("Your order %s has been approved and will be processed shortly.", event.OrderNumber)

	if err := h.sender.Send(ctx, event.Email, subject, body); err != nil {
		h.logger.Error("failed to send approval email", "error", err, "order_number", event.OrderNumber)
		return nil
	}

	return nil
}

// HandleTrackingCode sends the one-time tracking code to the verified address.
func (h *NotificationHandler) HandleTrackingCode(ctx context.Context, payload []byte) error {
	var event domain.TrackingCodeIssuedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal tracking code event: %w", err)
	}

	subject := "Your order tracking code"
	body := fmt.Sprintf("Your tracking code for order %s is %s. It expires at %s.",
		event.OrderNumber, event.Code, event.ExpiresAt.Format("15:04 MST"))

	if err := h.sender.Send(ctx, event.Email, subject, body); err != nil {
		h.logger.Error("failed to send tracking code email", "error", err, "order_number", event.OrderNumber)
		return nil
	}

	return nil
}
