package workrequests

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/krishisangam/backend/internal/middleware"
	"github.com/krishisangam/backend/internal/models"
	"github.com/krishisangam/backend/internal/services"
)

type Handler struct {
	service   Service
	validator *services.Validator
	logger    *slog.Logger
}

func NewHandler(service Service, validator *services.Validator, logger *slog.Logger) *Handler {
	return &Handler{service: service, validator: validator, logger: logger}
}

type sendRequest struct {
	LabourID     uuid.UUID       `json:"labour_id"`
	JobType      string          `json:"job_type"`
	CropType     string          `json:"crop_type"`
	FarmSize     *float64        `json:"farm_size"`
	Duration     json.RawMessage `json:"duration"`
	Wage         int64           `json:"wage"`
	StartDate    time.Time       `json:"start_date"`
	Location     json.RawMessage `json:"location"`
	Requirements string          `json:"requirements"`
	Message      string          `json:"message"`
}

// Send handles POST /api/v1/work-requests
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validator.Validate(services.PayloadWorkRequest, body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req sendRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	duration, err := services.NormalizeDuration(req.Duration)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var location models.Location
	if len(req.Location) > 0 {
		location, err = services.NormalizeLocation(req.Location)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if req.StartDate.IsZero() {
		req.StartDate = time.Now()
	}

	wr, err := h.service.Send(r.Context(), user, req.LabourID, models.WorkRequestTerms{
		JobType:       req.JobType,
		CropType:      req.CropType,
		FarmSize:      req.FarmSize,
		DurationUnits: duration,
		Wage:          req.Wage,
		StartDate:     req.StartDate,
		Location:      location,
		Requirements:  req.Requirements,
		Message:       req.Message,
	})
	if err != nil {
		h.writeServiceError(w, "send work request", err)
		return
	}
	writeJSON(w, http.StatusCreated, wr)
}

type respondRequest struct {
	Response string `json:"response"`
}

// Respond handles PATCH /api/v1/work-requests/{id}/respond
func (h *Handler) Respond(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid request id", http.StatusBadRequest)
		return
	}
	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	wr, err := h.service.Respond(r.Context(), user.ID, id, req.Response)
	if err != nil {
		h.writeServiceError(w, "respond to work request", err)
		return
	}
	writeJSON(w, http.StatusOK, wr)
}

// Cancel handles DELETE /api/v1/work-requests/{id}
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid request id", http.StatusBadRequest)
		return
	}
	if err := h.service.Cancel(r.Context(), user.ID, id); err != nil {
		h.writeServiceError(w, "cancel work request", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.WorkRequestCancelled})
}

// ListSent handles GET /api/v1/work-requests/sent
func (h *Handler) ListSent(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.ListSent)
}

// ListReceived handles GET /api/v1/work-requests/received
func (h *Handler) ListReceived(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.ListReceived)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id uuid.UUID) ([]*models.WorkRequest, error)) {
	user, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	list, err := fn(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("list work requests failed", "user_id", user.ID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.WorkRequest{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrLabourNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrDuplicateRequest), errors.Is(err, ErrAlreadyAnswered):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrBadResponse):
		http.Error(w, err.Error(), http.StatusBadRequest)
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
