package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/krishisangam/backend/internal/middleware"
	"github.com/krishisangam/backend/internal/models"
	"github.com/krishisangam/backend/internal/provider"
)

// webhook bodies are small; cap reads to keep a hostile sender cheap.
const maxWebhookBody = 1 << 20

type Handler struct {
	service       Service
	webhookSecret string
	logger        *slog.Logger
}

func NewHandler(service Service, webhookSecret string, logger *slog.Logger) *Handler {
	return &Handler{service: service, webhookSecret: webhookSecret, logger: logger}
}

type createOrderRequest struct {
	JobID  uuid.UUID `json:"job_id"`
	Amount *int64    `json:"amount"` // rupees; overrides wage x duration when set
}

// CreateOrder handles POST /api/v1/payments/create-order
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	order, err := h.service.CreateOrder(r.Context(), user.ID, req.JobID, req.Amount)
	if err != nil {
		h.writeServiceError(w, "create order", err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// Verify handles POST /api/v1/payments/verify
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var input VerifyInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if input.OrderID == "" || input.ProviderPaymentID == "" || input.Signature == "" {
		http.Error(w, "provider_order_id, provider_payment_id and provider_signature are required", http.StatusBadRequest)
		return
	}
	payment, err := h.service.VerifyPayment(r.Context(), user.ID, input)
	if err != nil {
		h.writeServiceError(w, "verify payment", err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

// Transfer handles POST /api/v1/payments/{id}/transfer. It retries a payout
// that the deferred worker could not complete, for example when bank details
// were added after the payment.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	paymentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid payment id", http.StatusBadRequest)
		return
	}
	// Only a party to the payment may poke a retry.
	if _, err := h.service.GetPayoutStatus(r.Context(), user.ID, paymentID); err != nil {
		h.writeServiceError(w, "transfer", err)
		return
	}
	if err := h.service.TransferToLaborer(r.Context(), paymentID); err != nil {
		h.writeServiceError(w, "transfer", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "initiated"})
}

// PayoutStatus handles GET /api/v1/payments/{id}/payout-status
func (h *Handler) PayoutStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	paymentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid payment id", http.StatusBadRequest)
		return
	}
	payment, err := h.service.GetPayoutStatus(r.Context(), user.ID, paymentID)
	if err != nil {
		h.writeServiceError(w, "payout status", err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

// JobPayment handles GET /api/v1/payments/job/{jobId}
func (h *Handler) JobPayment(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	jobID, err := uuid.Parse(r.PathValue("jobId"))
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}
	payment, err := h.service.GetJobPayment(r.Context(), user.ID, jobID)
	if err != nil {
		h.writeServiceError(w, "job payment", err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

// MyPayments handles GET /api/v1/payments/my-payments
func (h *Handler) MyPayments(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.ListByFarmer)
}

// Received handles GET /api/v1/payments/received
func (h *Handler) Received(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.ListByLabour)
}

// Webhook handles POST /api/v1/payments/webhook. No auth middleware; the HMAC
// over the raw body is the authentication.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}
	signature := r.Header.Get("X-Razorpay-Signature")
	if signature == "" || !validWebhookSignature(h.webhookSecret, body, signature) {
		webhookEvents.WithLabelValues("unknown", "bad_signature").Inc()
		http.Error(w, "invalid webhook signature", http.StatusUnauthorized)
		return
	}
	if err := h.service.ProcessWebhook(r.Context(), body); err != nil {
		h.logger.Error("webhook processing failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id uuid.UUID) ([]*models.Payment, error)) {
	user, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	list, err := fn(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("list payments failed", "user_id", user.ID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Payment{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	var provErr *provider.Error
	switch {
	case errors.Is(err, ErrJobNotFound), errors.Is(err, ErrPaymentNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrAlreadyPaid), errors.Is(err, ErrAlreadyTransferred):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrJobNotAssigned), errors.Is(err, ErrBadAmount),
		errors.Is(err, ErrPaymentNotCaptured), errors.Is(err, ErrNoBankDetails):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrBadSignature):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.As(err, &provErr):
		h.logger.Error(op+" gateway error", "code", provErr.Code, "status", provErr.StatusCode)
		http.Error(w, "payment gateway error", http.StatusBadGateway)
	default:
		h.logger.Error(op+" failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
