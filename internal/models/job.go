package models

import (
	"time"

	"github.com/google/uuid"
)

// Job lifecycle status.
const (
	JobStatusOpen       = "open"
	JobStatusInProgress = "in-progress"
	JobStatusCompleted  = "completed"
)

// Job payment status. Moves forward only, except the explicit 'failed'
// branch; it never regresses once 'completed'.
const (
	JobPaymentPending    = "pending"
	JobPaymentProcessing = "processing"
	JobPaymentCompleted  = "completed"
	JobPaymentFailed     = "failed"
	JobPaymentRefunded   = "refunded"
)

// PaymentDetails is the order reference stored on the job once an order is
// created with the provider.
type PaymentDetails struct {
	ProviderOrderID   string     `json:"provider_order_id,omitempty"`
	ProviderPaymentID string     `json:"provider_payment_id,omitempty"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
	Receipt           string     `json:"receipt,omitempty"`
}

type Job struct {
	ID             uuid.UUID `json:"id"`
	FarmerID       uuid.UUID `json:"farmer_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	JobType        string    `json:"job_type"`
	CropType       string    `json:"crop_type,omitempty"`
	DurationUnits  int       `json:"duration_units"`  // days
	WorkersNeeded  int       `json:"workers_needed"`
	Wage           int64     `json:"wage"` // rupees per duration unit
	RequiredSkills []string  `json:"required_skills,omitempty"`
	Requirements   string    `json:"requirements,omitempty"`
	Location       Location  `json:"location"`
	StartDate      time.Time `json:"start_date"`

	Status            string     `json:"status"`
	AssignedLabourID  *uuid.UUID `json:"assigned_labour_id,omitempty"`

	PaymentStatus  string          `json:"payment_status"`
	TotalAmount    *int64          `json:"total_amount,omitempty"` // rupees, set once at order creation
	PaymentDetails *PaymentDetails `json:"payment_details,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Application is one labour's expressed interest in a job. Rows are removed
// on accept/reject; re-applying after removal is permitted.
type Application struct {
	ID        uuid.UUID `json:"id"`
	JobID     uuid.UUID `json:"job_id"`
	LabourID  uuid.UUID `json:"labour_id"`
	AppliedAt time.Time `json:"applied_at"`
}
