package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification types sent on state transitions.
const (
	NotifyApplicationAccepted = "application_accepted"
	NotifyApplicationRejected = "application_rejected"
	NotifyWorkRequest         = "work_request"
	NotifyPaymentReceived     = "payment_received"
	NotifyMoneyTransferred    = "money_transferred"
	NotifyGeneral             = "general"
)

type Notification struct {
	ID          uuid.UUID  `json:"id"`
	RecipientID uuid.UUID  `json:"recipient_id"`
	SenderID    *uuid.UUID `json:"sender_id,omitempty"`
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	JobID       *uuid.UUID `json:"job_id,omitempty"`
	PaymentID   *uuid.UUID `json:"payment_id,omitempty"`
	IsRead      bool       `json:"is_read"`
	CreatedAt   time.Time  `json:"created_at"`
}
