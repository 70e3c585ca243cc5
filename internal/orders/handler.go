package orders

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopstack/orderdesk/internal/domain"
)

type Handler struct {
	checkout  *CheckoutService
	lifecycle *LifecycleService
	store     OrderStore
	directory CustomerDirectory
	logger    *slog.Logger
}

func NewHandler(checkout *CheckoutService, lifecycle *LifecycleService, store OrderStore, directory CustomerDirectory, logger *slog.Logger) *Handler {
	return &Handler{
		checkout:  checkout,
		lifecycle: lifecycle,
		store:     store,
		directory: directory,
		logger:    logger,
	}
}

// caller resolves the authenticated customer from the X-Customer-ID header set
// by the authenticating proxy. Anonymous requests resolve to nil.
func (h *Handler) caller(r *http.Request) *domain.Customer {
	raw := r.Header.Get("X-Customer-ID")
	if raw == "" {
		return nil
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}

	customer, err := h.directory.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to resolve caller", "error", err, "customer_id", id)
		return nil
	}

	return customer
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Lines) == 0 {
		h.writeError(w, http.StatusBadRequest, "at least one line is required")
		return
	}
	for _, line := range req.Lines {
		if line.Quantity <= 0 {
			h.writeError(w, http.StatusBadRequest, "line quantity must be positive")
			return
		}
	}

	hasCustomer := req.CustomerID != nil
	hasGuest := req.Guest != nil && req.Guest.Email != ""
	if hasCustomer == hasGuest {
		h.writeError(w, http.StatusBadRequest, "exactly one of customer_id or guest contact is required")
		return
	}

	order, err := h.checkout.Checkout(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, err, "checkout failed")
		return
	}

	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
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

	caller := h.caller(r)
	if !canViewOrder(order, caller) {
		h.writeError(w, http.StatusForbidden, "permission denied")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleGetByNumber(w http.ResponseWriter, r *http.Request) {
	number := r.PathValue("number")
	if number == "" {
		h.writeError(w, http.StatusBadRequest, "missing order number")
		return
	}

	order, err := h.store.GetByNumber(r.Context(), number)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "order_number", number)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	caller := h.caller(r)
	if !canViewOrder(order, caller) {
		h.writeError(w, http.StatusForbidden, "permission denied")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	caller := h.caller(r)
	if caller == nil || !caller.IsStaff() {
		h.writeError(w, http.StatusForbidden, "permission denied")
		return
	}

	orders, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list orders", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

type transitionRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	caller := h.caller(r)
	if caller == nil || !caller.IsStaff() {
		h.writeError(w, http.StatusForbidden, "permission denied")
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.lifecycle.Transition(r.Context(), id, req.Status, &caller.ID)
	if err != nil {
		h.writeDomainError(w, err, "transition failed")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func canViewOrder(order *domain.Order, caller *domain.Customer) bool {
	if caller == nil {
		return false
	}
	if caller.IsStaff() {
		return true
	}
	return order.CustomerID != nil && *order.CustomerID == caller.ID
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrCustomerNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrIllegalTransition):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrMissingApprover),
		errors.Is(err, domain.ErrPermissionDenied):
		h.writeError(w, http.StatusForbidden, err.Error())
	default:
		h.logger.Error(logMsg, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
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
