package jobs

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/krishisangam/backend/internal/middleware"
	"github.com/krishisangam/backend/internal/models"
	"github.com/krishisangam/backend/internal/services"
)

const (
	defaultOpenLimit = 50
	maxOpenLimit     = 200
)

type Handler struct {
	service   Service
	validator *services.Validator
	logger    *slog.Logger
}

func NewHandler(service Service, validator *services.Validator, logger *slog.Logger) *Handler {
	return &Handler{service: service, validator: validator, logger: logger}
}

type postJobRequest struct {
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	JobType        string          `json:"job_type"`
	CropType       string          `json:"crop_type"`
	Duration       json.RawMessage `json:"duration"`
	WorkersNeeded  int             `json:"workers_needed"`
	Wage           int64           `json:"wage"`
	RequiredSkills []string        `json:"required_skills"`
	Requirements   string          `json:"requirements"`
	Location       json.RawMessage `json:"location"`
	StartDate      *time.Time      `json:"start_date"`
}

// Post handles POST /api/v1/jobs
func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := readBody(r)
	if err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validator.Validate(services.PayloadJob, body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req postJobRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	duration, err := services.NormalizeDuration(req.Duration)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	location := user.Location
	if len(req.Location) > 0 {
		loc, err := services.NormalizeLocation(req.Location)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		location = loc
	}

	job, err := h.service.PostJob(r.Context(), user.ID, PostJobInput{
		Title:          req.Title,
		Description:    req.Description,
		JobType:        req.JobType,
		CropType:       req.CropType,
		DurationUnits:  duration,
		WorkersNeeded:  req.WorkersNeeded,
		Wage:           req.Wage,
		RequiredSkills: req.RequiredSkills,
		Requirements:   req.Requirements,
		Location:       location,
		StartDate:      req.StartDate,
	})
	if err != nil {
		h.logger.Error("post job failed", "farmer_id", user.ID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// ListOpen handles GET /api/v1/jobs
func (h *Handler) ListOpen(w http.ResponseWriter, r *http.Request) {
	limit := defaultOpenLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		if n > maxOpenLimit {
			n = maxOpenLimit
		}
		limit = n
	}
	list, err := h.service.ListOpen(r.Context(), limit)
	if err != nil {
		h.logger.Error("list open jobs failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Job{}
	}
	writeJSON(w, http.StatusOK, list)
}

// MyJobs handles GET /api/v1/jobs/my-jobs
func (h *Handler) MyJobs(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	list, err := h.service.ListByFarmer(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("list my jobs failed", "farmer_id", user.ID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Job{}
	}
	writeJSON(w, http.StatusOK, list)
}

// MyApplications handles GET /api/v1/jobs/my-applications
func (h *Handler) MyApplications(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	list, err := h.service.ListMyApplications(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("list applications failed", "labour_id", user.ID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*AppliedJob{}
	}
	writeJSON(w, http.StatusOK, list)
}

// Get handles GET /api/v1/jobs/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	job, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeServiceError(w, "get job", err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Applicants handles GET /api/v1/jobs/{id}/applicants
func (h *Handler) Applicants(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	jobID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	list, err := h.service.ListApplicants(r.Context(), user.ID, jobID)
	if err != nil {
		h.writeServiceError(w, "list applicants", err)
		return
	}
	if list == nil {
		list = []*Applicant{}
	}
	writeJSON(w, http.StatusOK, list)
}

// Apply handles POST /api/v1/jobs/{id}/apply
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	jobID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	app, err := h.service.Apply(r.Context(), user, jobID)
	if err != nil {
		h.writeServiceError(w, "apply", err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

// Accept handles POST /api/v1/jobs/{id}/accept/{labourId}
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func(farmerID, jobID, labourID uuid.UUID) error {
		return h.service.Accept(r.Context(), farmerID, jobID, labourID)
	}, "accepted")
}

// Reject handles POST /api/v1/jobs/{id}/reject/{labourId}
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func(farmerID, jobID, labourID uuid.UUID) error {
		return h.service.Reject(r.Context(), farmerID, jobID, labourID)
	}, "rejected")
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, fn func(farmerID, jobID, labourID uuid.UUID) error, status string) {
	user, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	jobID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	labourID, ok := pathUUID(w, r, "labourId")
	if !ok {
		return
	}
	if err := fn(user.ID, jobID, labourID); err != nil {
		h.writeServiceError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// Complete handles PATCH /api/v1/jobs/{id}/complete
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	jobID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Complete(r.Context(), user.ID, jobID); err != nil {
		h.writeServiceError(w, "complete job", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.JobStatusCompleted})
}

// Delete handles DELETE /api/v1/jobs/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	jobID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), user.ID, jobID); err != nil {
		h.writeServiceError(w, "delete job", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotAssigned):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrAlreadyApplied), errors.Is(err, ErrAlreadyAssigned),
		errors.Is(err, ErrJobNotOpen):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrSkillMismatch), errors.Is(err, ErrNotApplied):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error(op+" failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	var buf json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
