package payments

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krishisangam/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const paymentColumns = `
	id, job_id, farmer_id, labour_id, amount, currency,
	provider_order_id, provider_payment_id, status, receipt,
	payout_id, payout_status, payout_utr, transferred_at,
	created_at, paid_at`

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	var providerPaymentID, receipt *string
	err := row.Scan(
		&p.ID, &p.JobID, &p.FarmerID, &p.LabourID, &p.Amount, &p.Currency,
		&p.ProviderOrderID, &providerPaymentID, &p.Status, &receipt,
		&p.PayoutID, &p.PayoutStatus, &p.PayoutUTR, &p.TransferredAt,
		&p.CreatedAt, &p.PaidAt,
	)
	if err != nil {
		return nil, err
	}
	if providerPaymentID != nil {
		p.ProviderPaymentID = *providerPaymentID
	}
	if receipt != nil {
		p.Receipt = *receipt
	}
	return &p, nil
}

func (r *Repository) Create(ctx context.Context, p *models.Payment) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO payments (job_id, farmer_id, labour_id, amount, currency,
			provider_order_id, status, receipt, payout_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, p.JobID, p.FarmerID, p.LabourID, p.Amount, p.Currency,
		p.ProviderOrderID, models.PaymentStatusCreated, p.Receipt, models.PayoutStatusPending)
	return row.Scan(&p.ID, &p.CreatedAt)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return r.one(ctx, `id`, id)
}

func (r *Repository) GetByProviderOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	return r.one(ctx, `provider_order_id`, orderID)
}

func (r *Repository) GetByPayoutID(ctx context.Context, payoutID string) (*models.Payment, error) {
	return r.one(ctx, `payout_id`, payoutID)
}

func (r *Repository) GetByJob(ctx context.Context, jobID uuid.UUID) (*models.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE job_id = $1 ORDER BY created_at DESC LIMIT 1
	`, jobID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *Repository) one(ctx context.Context, column string, value any) (*models.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE `+column+` = $1`, value))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *Repository) ListByFarmer(ctx context.Context, farmerID uuid.UUID) ([]*models.Payment, error) {
	return r.list(ctx, `farmer_id`, farmerID)
}

func (r *Repository) ListByLabour(ctx context.Context, labourID uuid.UUID) ([]*models.Payment, error) {
	return r.list(ctx, `labour_id`, labourID)
}

func (r *Repository) list(ctx context.Context, column string, id uuid.UUID) ([]*models.Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE `+column+` = $1 ORDER BY created_at DESC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkPaid settles a payment exactly once: only a created or pending row can
// move to success.
func (r *Repository) MarkPaid(ctx context.Context, orderID, providerPaymentID, signature string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payments
		SET status = $3, provider_payment_id = $2, provider_signature = $4, paid_at = NOW()
		WHERE provider_order_id = $1 AND status IN ($5, $6)
	`, orderID, providerPaymentID, models.PaymentStatusSuccess, signature,
		models.PaymentStatusCreated, models.PaymentStatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) MarkFailed(ctx context.Context, orderID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payments SET status = $2
		WHERE provider_order_id = $1 AND status IN ($3, $4)
	`, orderID, models.PaymentStatusFailed,
		models.PaymentStatusCreated, models.PaymentStatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// BeginTransfer claims the payout slot for a successful payment. At most one
// caller wins; the loser sees false and must not touch the provider. A slot
// is claimable when no payout was ever recorded, when the recorded payout
// failed at the provider (reversed/cancelled), or when a previous claim went
// stale without recording a payout, which happens if the process died between
// the claim and the provider call.
func (r *Repository) BeginTransfer(ctx context.Context, paymentID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payments
		SET payout_status = $2, payout_id = NULL, payout_utr = NULL,
			transferred_at = NULL, payout_claimed_at = NOW()
		WHERE id = $1 AND status = $3 AND (
			(payout_id IS NULL AND payout_status = $4)
			OR (payout_id IS NULL AND payout_status = $2
				AND payout_claimed_at < NOW() - INTERVAL '10 minutes')
			OR payout_status IN ($5, $6)
		)
	`, paymentID, models.PayoutStatusQueued,
		models.PaymentStatusSuccess, models.PayoutStatusPending,
		models.PayoutStatusReversed, models.PayoutStatusCancelled)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseTransfer returns a claimed slot after a failed provider call so a
// retry can claim it again.
func (r *Repository) ReleaseTransfer(ctx context.Context, paymentID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE payments SET payout_status = $2
		WHERE id = $1 AND payout_id IS NULL AND payout_status = $3
	`, paymentID, models.PayoutStatusPending, models.PayoutStatusQueued)
	return err
}

// RecordPayout stores the provider's payout against the claimed slot. The
// transfer timestamp is stamped only when the provider already reports the
// payout processed; a queued payout gets its timestamp from the later
// status update that moves it to processed.
func (r *Repository) RecordPayout(ctx context.Context, paymentID uuid.UUID, payoutID, status string, utr *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE payments
		SET payout_id = $2, payout_status = $3, payout_utr = $4,
			transferred_at = CASE WHEN $3 = $5 THEN NOW() END
		WHERE id = $1 AND payout_id IS NULL
	`, paymentID, payoutID, status, utr, models.PayoutStatusProcessed)
	return err
}

// UpdatePayoutStatus reconciles the local payout status with the provider.
// Terminal rows never change again. The move to processed stamps the
// transfer time.
func (r *Repository) UpdatePayoutStatus(ctx context.Context, payoutID, status string, utr *string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payments
		SET payout_status = $2, payout_utr = COALESCE($3, payout_utr),
			transferred_at = CASE WHEN $2 = $4 THEN NOW() ELSE transferred_at END
		WHERE payout_id = $1 AND payout_status NOT IN ($4, $5, $6)
	`, payoutID, status, utr,
		models.PayoutStatusProcessed, models.PayoutStatusReversed, models.PayoutStatusCancelled)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ---------------------------------------------------------------------------
// Job payment columns
// ---------------------------------------------------------------------------

// SetJobOrder records the provider order on the job and moves its payment
// status to processing. Refuses a job that is already paid.
func (r *Repository) SetJobOrder(ctx context.Context, jobID uuid.UUID, orderID, receipt string, totalAmount int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET provider_order_id = $2, receipt = $3, total_amount = $4,
		    payment_status = $5, updated_at = NOW()
		WHERE id = $1 AND payment_status IN ($6, $7, $8)
	`, jobID, orderID, receipt, totalAmount, models.JobPaymentProcessing,
		models.JobPaymentPending, models.JobPaymentProcessing, models.JobPaymentFailed)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) SetJobPaid(ctx context.Context, jobID uuid.UUID, providerPaymentID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET provider_payment_id = $2, paid_at = NOW(), payment_status = $3, updated_at = NOW()
		WHERE id = $1 AND payment_status <> $3
	`, jobID, providerPaymentID, models.JobPaymentCompleted)
	return err
}

func (r *Repository) SetJobPaymentFailed(ctx context.Context, jobID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE jobs SET payment_status = $2, updated_at = NOW()
		WHERE id = $1 AND payment_status = $3
	`, jobID, models.JobPaymentFailed, models.JobPaymentProcessing)
	return err
}
