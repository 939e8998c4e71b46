package payout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/krishisangam/backend/internal/payments"
)

// TransferDelay is how long after verification the payout runs, giving the
// provider time to settle the capture.
const TransferDelay = 3 * time.Second

type TransferArgs struct {
	PaymentID uuid.UUID `json:"payment_id"`
}

func (TransferArgs) Kind() string { return "payout_transfer" }

// Settlement is the contract the worker needs to move money.
type Settlement interface {
	TransferToLaborer(ctx context.Context, paymentID uuid.UUID) error
}

type TransferWorker struct {
	river.WorkerDefaults[TransferArgs]
	settlement Settlement
	logger     *slog.Logger
}

func NewTransferWorker(settlement Settlement, logger *slog.Logger) *TransferWorker {
	return &TransferWorker{settlement: settlement, logger: logger}
}

func (w *TransferWorker) Work(ctx context.Context, job *river.Job[TransferArgs]) error {
	paymentID := job.Args.PaymentID
	err := w.settlement.TransferToLaborer(ctx, paymentID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, payments.ErrAlreadyTransferred),
		errors.Is(err, payments.ErrPaymentNotFound):
		// Nothing left to do; a duplicate insert or a concurrent transfer
		// got here first.
		return nil
	case errors.Is(err, payments.ErrPaymentNotCaptured):
		// Verification was rolled back after enqueueing. Retrying will not
		// change the outcome.
		w.logger.Warn("payout skipped, payment not captured", "payment_id", paymentID)
		return nil
	case errors.Is(err, payments.ErrNoBankDetails):
		// The labourer can add bank details and retry through the transfer
		// endpoint; retrying here would just burn attempts.
		w.logger.Warn("payout skipped, no bank details", "payment_id", paymentID)
		return nil
	default:
		// Gateway or database trouble: let the queue retry with backoff.
		return fmt.Errorf("transfer payment %s: %w", paymentID, err)
	}
}
