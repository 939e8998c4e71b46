package models

import (
	"time"

	"github.com/google/uuid"
)

// Work request status: pending -> accepted | rejected (labour, terminal),
// pending -> cancelled (farmer, terminal).
const (
	WorkRequestPending   = "pending"
	WorkRequestAccepted  = "accepted"
	WorkRequestRejected  = "rejected"
	WorkRequestCancelled = "cancelled"
)

// WorkRequestTerms are the offer terms a farmer proposes to a labour.
type WorkRequestTerms struct {
	JobType       string    `json:"job_type"`
	CropType      string    `json:"crop_type,omitempty"`
	FarmSize      *float64  `json:"farm_size,omitempty"`
	DurationUnits int       `json:"duration_units"`
	Wage          int64     `json:"wage"`
	StartDate     time.Time `json:"start_date"`
	Location      Location  `json:"location"`
	Requirements  string    `json:"requirements,omitempty"`
	Message       string    `json:"message,omitempty"`
}

// WorkRequest is a farmer-initiated offer outside the open job flow. Only
// one pending request may exist per (farmer, labour) pair.
type WorkRequest struct {
	ID          uuid.UUID        `json:"id"`
	FarmerID    uuid.UUID        `json:"farmer_id"`
	LabourID    uuid.UUID        `json:"labour_id"`
	Terms       WorkRequestTerms `json:"terms"`
	Status      string           `json:"status"`
	RespondedAt *time.Time       `json:"responded_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}
