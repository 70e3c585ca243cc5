package tracking

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shopstack/orderdesk/internal/domain"
)

const clientCookieName = "odesk_client"

type Handler struct {
	service     *Service
	directory   CustomerDirectory
	transitDays int
	logger      *slog.Logger
}

func NewHandler(service *Service, directory CustomerDirectory, transitDays int, logger *slog.Logger) *Handler {
	return &Handler{
		service:     service,
		directory:   directory,
		transitDays: transitDays,
		logger:      logger,
	}
}

// clientID identifies the requesting client for rate limiting. A cookie is
// assigned on first contact; clients that drop it fall back to their address.
func (h *Handler) clientID(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(clientCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     clientCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
	})
	return id
}

// HandleTrack returns the order projection the caller is entitled to: full
// detail for owners, staff, and code-verified callers; the bare summary for
// everyone else.
func (h *Handler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	identifier := r.PathValue("identifier")
	if identifier == "" {
		h.writeError(w, http.StatusBadRequest, "missing order identifier")
		return
	}

	order, err := h.service.Resolve(r.Context(), identifier)
	if err != nil {
		h.logger.Error("failed to resolve order", "error", err, "identifier", identifier)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	if h.service.CheckAccess(order, h.caller(r)) {
		h.writeJSON(w, http.StatusOK, Detail(order, h.transitDays))
		return
	}

	email := r.URL.Query().Get("email")
	code := r.URL.Query().Get("code")
	if email != "" && code != "" && h.service.VerifyCode(r.Context(), identifier, email, code) {
		h.writeJSON(w, http.StatusOK, Detail(order, h.transitDays))
		return
	}

	h.writeJSON(w, http.StatusOK, Summarize(order))
}

type requestCodeBody struct {
	Email string `json:"email"`
}

// HandleRequestCode always answers with the same body so the response leaks
// neither order existence nor email ownership.
func (h *Handler) HandleRequestCode(w http.ResponseWriter, r *http.Request) {
	identifier := r.PathValue("identifier")
	if identifier == "" {
		h.writeError(w, http.StatusBadRequest, "missing order identifier")
		return
	}

	var body requestCodeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	client := h.clientID(w, r)
	if err := h.service.RequestCode(r.Context(), client, identifier, body.Email); err != nil {
		h.logger.Info("tracking code request rejected", "identifier", identifier, "reason", err)
	}

	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "if the order and email match, a code has been sent",
	})
}

type verifyCodeBody struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (h *Handler) HandleVerifyCode(w http.ResponseWriter, r *http.Request) {
	identifier := r.PathValue("identifier")
	if identifier == "" {
		h.writeError(w, http.StatusBadRequest, "missing order identifier")
		return
	}

	var body verifyCodeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !h.service.VerifyCode(r.Context(), identifier, body.Email, body.Code) {
		h.writeJSON(w, http.StatusUnauthorized, map[string]any{"verified": false})
		return
	}

	order, err := h.service.Resolve(r.Context(), identifier)
	if err != nil || order == nil {
		h.logger.Error("failed to load order after verification", "error", err, "identifier", identifier)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"verified": true,
		"order":    Detail(order, h.transitDays),
	})
}

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
