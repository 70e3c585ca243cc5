package payment

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopstack/orderdesk/internal/orders"
)

// Handler exposes the payment-link surface to staff.
type Handler struct {
	client    *Client
	store     orders.OrderStore
	directory orders.CustomerDirectory
	logger    *slog.Logger
}

func NewHandler(client *Client, store orders.OrderStore, directory orders.CustomerDirectory, logger *slog.Logger) *Handler {
	return &Handler{
		client:    client,
		store:     store,
		directory: directory,
		logger:    logger,
	}
}

func (h *Handler) HandleCreateLink(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	if !h.isStaff(r) {
		h.writeError(w, http.StatusForbidden, "permission denied")
		return
	}

	order, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	link, err := h.client.CreatePaymentLink(r.Context(), order)
	if err != nil {
		if errors.Is(err, ErrOrderNotApproved) {
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("failed to create payment link", "error", err, "order_id", id)
		h.writeError(w, http.StatusBadGateway, "payment gateway unavailable")
		return
	}

	h.writeJSON(w, http.StatusCreated, link)
}

func (h *Handler) isStaff(r *http.Request) bool {
	raw := r.Header.Get("X-Customer-ID")
	if raw == "" {
		return false
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}

	customer, err := h.directory.GetByID(r.Context(), id)
	if err != nil || customer == nil {
		return false
	}

	return customer.IsStaff()
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
