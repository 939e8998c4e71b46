package workrequests

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

const requestColumns = `
	id, farmer_id, labour_id, job_type, crop_type, farm_size, duration_units,
	wage, start_date, location_village, location_district, location_state,
	requirements, message, status, responded_at, created_at`

func scanRequest(row pgx.Row) (*models.WorkRequest, error) {
	var wr models.WorkRequest
	err := row.Scan(
		&wr.ID, &wr.FarmerID, &wr.LabourID, &wr.Terms.JobType, &wr.Terms.CropType,
		&wr.Terms.FarmSize, &wr.Terms.DurationUnits, &wr.Terms.Wage, &wr.Terms.StartDate,
		&wr.Terms.Location.Village, &wr.Terms.Location.District, &wr.Terms.Location.State,
		&wr.Terms.Requirements, &wr.Terms.Message, &wr.Status, &wr.RespondedAt, &wr.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &wr, nil
}

// Create inserts a pending request. The partial unique index on
// (farmer_id, labour_id) WHERE status = 'pending' rejects a second live
// request for the same pair with a 23505.
func (r *Repository) Create(ctx context.Context, wr *models.WorkRequest) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO work_requests (
			farmer_id, labour_id, job_type, crop_type, farm_size, duration_units,
			wage, start_date, location_village, location_district, location_state,
			requirements, message, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at
	`, wr.FarmerID, wr.LabourID, wr.Terms.JobType, wr.Terms.CropType, wr.Terms.FarmSize,
		wr.Terms.DurationUnits, wr.Terms.Wage, wr.Terms.StartDate,
		wr.Terms.Location.Village, wr.Terms.Location.District, wr.Terms.Location.State,
		wr.Terms.Requirements, wr.Terms.Message, models.WorkRequestPending)
	return row.Scan(&wr.ID, &wr.CreatedAt)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.WorkRequest, error) {
	wr, err := scanRequest(r.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM work_requests WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return wr, err
}

func (r *Repository) ListByFarmer(ctx context.Context, farmerID uuid.UUID) ([]*models.WorkRequest, error) {
	return r.list(ctx, `farmer_id`, farmerID)
}

func (r *Repository) ListByLabour(ctx context.Context, labourID uuid.UUID) ([]*models.WorkRequest, error) {
	return r.list(ctx, `labour_id`, labourID)
}

func (r *Repository) list(ctx context.Context, column string, id uuid.UUID) ([]*models.WorkRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+requestColumns+` FROM work_requests
		WHERE `+column+` = $1 ORDER BY created_at DESC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.WorkRequest
	for rows.Next() {
		wr, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, wr)
	}
	return list, rows.Err()
}

// SetStatus records the labourer's answer on a pending request. Returns
// false when the request had already been answered or cancelled. The
// responded_at stamp belongs to the labourer's answer only; Cancel leaves
// it empty.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE work_requests SET status = $2, responded_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, status, models.WorkRequestPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Cancel withdraws a pending request on the farmer's side.
func (r *Repository) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE work_requests SET status = $2
		WHERE id = $1 AND status = $3
	`, id, models.WorkRequestCancelled, models.WorkRequestPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
