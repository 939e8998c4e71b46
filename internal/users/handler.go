package users

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/krishisangam/backend/internal/middleware"
	"github.com/krishisangam/backend/internal/models"
	"github.com/krishisangam/backend/internal/services"
)

// Default and ceiling for how many labour profiles to surface when no
// demand signal is supplied.
const (
	defaultLabourLimit = 20
	maxLabourLimit     = 100
)

type Handler struct {
	repo *Repository
	log  *slog.Logger
}

func NewHandler(repo *Repository, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{repo: repo, log: log}
}

// GetMe handles GET /api/v1/users/me.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type updateProfileRequest struct {
	FullName json.RawMessage `json:"full_name"`
	Phone    string          `json:"phone"`
	Location json.RawMessage `json:"location"`
	Address  string          `json:"address"`
	FarmSize *float64        `json:"farm_size"`
	Crops    string          `json:"crops"`
	Skills   []string        `json:"skills"`
}

// UpdateProfile handles PATCH /api/v1/users/me.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if len(req.FullName) > 0 {
		first, last, err := services.NormalizeFullName(req.FullName)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
			return
		}
		if first != "" {
			user.FirstName, user.LastName = first, last
		}
	}
	if len(req.Location) > 0 {
		loc, err := services.NormalizeLocation(req.Location)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
			return
		}
		user.Location = loc
	}
	if req.Phone != "" {
		user.Phone = req.Phone
	}
	if req.Address != "" {
		user.Address = req.Address
	}
	if req.FarmSize != nil {
		user.FarmSize = req.FarmSize
	}
	if req.Crops != "" {
		user.Crops = req.Crops
	}
	if req.Skills != nil {
		user.Skills = req.Skills
	}
	if err := h.repo.UpdateProfile(r.Context(), user); err != nil {
		h.log.Error("update profile", "user_id", user.ID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type bankDetailsRequest struct {
	AccountHolderName string `json:"account_holder_name"`
	AccountNumber     string `json:"account_number"`
	IFSCCode          string `json:"ifsc_code"`
	BankName          string `json:"bank_name"`
	UPIID             string `json:"upi_id"`
}

// UpdateBankDetails handles PUT /api/v1/users/bank-details (labour only).
// The destination is owned exclusively by the labour who posts it.
func (h *Handler) UpdateBankDetails(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req bankDetailsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.AccountNumber == "" || req.IFSCCode == "" || req.AccountHolderName == "" {
		http.Error(w, `{"error":"account_holder_name, account_number and ifsc_code are required"}`, http.StatusBadRequest)
		return
	}
	details := models.BankDetails{
		AccountHolderName: req.AccountHolderName,
		AccountNumber:     req.AccountNumber,
		IFSCCode:          req.IFSCCode,
		BankName:          req.BankName,
		UPIID:             req.UPIID,
	}
	if err := h.repo.UpdateBankDetails(r.Context(), user.ID, details); err != nil {
		h.log.Error("update bank details", "user_id", user.ID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "bank details saved",
		"bank_details": details,
	})
}

// ListLabour handles GET /api/v1/labour?demand=N. The demand query value is
// the opaque labour-demand number from the recommendation pipeline; it only
// sizes the result set.
func (h *Handler) ListLabour(w http.ResponseWriter, r *http.Request) {
	limit := defaultLabourLimit
	if v := r.URL.Query().Get("demand"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, `{"error":"demand must be a positive integer"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}
	if limit > maxLabourLimit {
		limit = maxLabourLimit
	}
	list, err := h.repo.ListLabour(r.Context(), limit)
	if err != nil {
		h.log.Error("list labour", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.User{}
	}
	writeJSON(w, http.StatusOK, list)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
