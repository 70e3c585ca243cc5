package payment

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopstack/orderdesk/internal/domain"
	"github.com/shopstack/orderdesk/internal/orders"
)

const (
	EventPaymentConfirmed = "payment.confirmed"
	EventPaymentFailed    = "payment.failed"
)

// WebhookHandler turns gateway payment notifications into status transitions.
// The gateway authenticates with a shared token; provider-specific signature
// schemes live in the gateway integration, not here.
type WebhookHandler struct {
	lifecycle *orders.LifecycleService
	token     string
	logger    *slog.Logger
}

func NewWebhookHandler(lifecycle *orders.LifecycleService, token string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		lifecycle: lifecycle,
		token:     token,
		logger:    logger,
	}
}

type webhookEvent struct {
	Event   string `json:"event"`
	OrderID int64  `json:"order_id"`
}

func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Webhook-Token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) != 1 {
		h.writeError(w, http.StatusUnauthorized, "invalid webhook token")
		return
	}

	var event webhookEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var target domain.OrderStatus
	switch event.Event {
	case EventPaymentConfirmed:
		target = domain.OrderStatusPaymentSuccess
	case EventPaymentFailed:
		target = domain.OrderStatusPaymentFailure
	default:
		h.writeError(w, http.StatusBadRequest, "unknown event")
		return
	}

	order, err := h.lifecycle.Transition(r.Context(), event.OrderID, target, nil)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrOrderNotFound):
			h.writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, domain.ErrIllegalTransition):
			h.writeError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error("failed to apply payment event", "error", err, "order_id", event.OrderID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.logger.Info("payment event applied", "order_id", order.ID, "status", order.Status)
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *WebhookHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *WebhookHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
