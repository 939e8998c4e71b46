package models

import (
	"time"

	"github.com/google/uuid"
)

// Payment status: created -> success | failed, decided exactly once by
// signature verification.
const (
	PaymentStatusCreated  = "created"
	PaymentStatusPending  = "pending"
	PaymentStatusSuccess  = "success"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

// Payout status values mirror the provider's payout lifecycle.
const (
	PayoutStatusPending    = "pending"
	PayoutStatusQueued     = "queued"
	PayoutStatusProcessing = "processing"
	PayoutStatusProcessed  = "processed"
	PayoutStatusReversed   = "reversed"
	PayoutStatusCancelled  = "cancelled"
)

// PayoutTerminal reports whether a payout status needs no further
// reconciliation with the provider.
func PayoutTerminal(status string) bool {
	switch status {
	case PayoutStatusProcessed, PayoutStatusReversed, PayoutStatusCancelled:
		return true
	}
	return false
}

// PayoutRetryable reports whether a recorded payout failed at the provider
// and a fresh transfer attempt is allowed.
func PayoutRetryable(status string) bool {
	return status == PayoutStatusReversed || status == PayoutStatusCancelled
}

type Payment struct {
	ID       uuid.UUID `json:"id"`
	JobID    uuid.UUID `json:"job_id"`
	FarmerID uuid.UUID `json:"farmer_id"`
	LabourID uuid.UUID `json:"labour_id"`

	Amount   int64  `json:"amount"` // rupees
	Currency string `json:"currency"`

	ProviderOrderID   string `json:"provider_order_id"`
	ProviderPaymentID string `json:"provider_payment_id,omitempty"`
	ProviderSignature string `json:"-"`

	Status  string `json:"status"`
	Receipt string `json:"receipt,omitempty"`

	PayoutID      *string    `json:"payout_id,omitempty"`
	PayoutStatus  string     `json:"payout_status"`
	PayoutUTR     *string    `json:"payout_utr,omitempty"`
	TransferredAt *time.Time `json:"transferred_at,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
}
