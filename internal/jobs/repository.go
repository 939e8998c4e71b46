package jobs

import (
	"context"
	"strings"
	"time"

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

const jobColumns = `
	id, farmer_id, title, description, job_type, crop_type, duration_units,
	workers_needed, wage, required_skills, requirements,
	location_village, location_district, location_state, start_date,
	status, assigned_labour_id, payment_status, total_amount,
	provider_order_id, provider_payment_id, paid_at, receipt,
	created_at, updated_at`

// prefixed qualifies each column in a comma-separated list with a table alias,
// for queries that join jobs against another table.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	var village, district, state string
	var orderID, paymentID, receipt *string
	var paidAt *time.Time
	err := row.Scan(
		&j.ID, &j.FarmerID, &j.Title, &j.Description, &j.JobType, &j.CropType,
		&j.DurationUnits, &j.WorkersNeeded, &j.Wage, &j.RequiredSkills,
		&j.Requirements, &village, &district, &state, &j.StartDate,
		&j.Status, &j.AssignedLabourID, &j.PaymentStatus, &j.TotalAmount,
		&orderID, &paymentID, &paidAt, &receipt,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Location = models.Location{Village: village, District: district, State: state}
	if orderID != nil || paymentID != nil || paidAt != nil || receipt != nil {
		j.PaymentDetails = &models.PaymentDetails{}
		if orderID != nil {
			j.PaymentDetails.ProviderOrderID = *orderID
		}
		if paymentID != nil {
			j.PaymentDetails.ProviderPaymentID = *paymentID
		}
		if receipt != nil {
			j.PaymentDetails.Receipt = *receipt
		}
		j.PaymentDetails.PaidAt = paidAt
	}
	return &j, nil
}

func (r *Repository) Create(ctx context.Context, j *models.Job) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO jobs (
			farmer_id, title, description, job_type, crop_type, duration_units,
			workers_needed, wage, required_skills, requirements,
			location_village, location_district, location_state, start_date, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at
	`, j.FarmerID, j.Title, j.Description, j.JobType, j.CropType, j.DurationUnits,
		j.WorkersNeeded, j.Wage, j.RequiredSkills, j.Requirements,
		j.Location.Village, j.Location.District, j.Location.State, j.StartDate,
		models.JobStatusOpen)
	return row.Scan(&j.ID, &j.CreatedAt, &j.UpdatedAt)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := scanJob(r.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return job, err
}

func (r *Repository) ListOpen(ctx context.Context, limit int) ([]*models.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status = $1 AND assigned_labour_id IS NULL
		ORDER BY created_at DESC LIMIT $2
	`, models.JobStatusOpen, limit)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

func (r *Repository) ListByFarmer(ctx context.Context, farmerID uuid.UUID) ([]*models.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE farmer_id = $1 ORDER BY created_at DESC
	`, farmerID)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

func collectJobs(rows pgx.Rows) ([]*models.Job, error) {
	defer rows.Close()
	var list []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, j)
	}
	return list, rows.Err()
}

// ---------------------------------------------------------------------------
// Applications
// ---------------------------------------------------------------------------

func (r *Repository) CreateApplication(ctx context.Context, jobID, labourID uuid.UUID) (*models.Application, error) {
	var app models.Application
	app.JobID = jobID
	app.LabourID = labourID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO job_applications (job_id, labour_id)
		VALUES ($1, $2)
		RETURNING id, applied_at
	`, jobID, labourID).Scan(&app.ID, &app.AppliedAt)
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *Repository) HasApplied(ctx context.Context, jobID, labourID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM job_applications WHERE job_id = $1 AND labour_id = $2)
	`, jobID, labourID).Scan(&exists)
	return exists, err
}

type Applicant struct {
	Application models.Application `json:"application"`
	Labour      *models.User       `json:"labour"`
}

// ListApplicants returns each applicant for a job with a summary of the labourer.
func (r *Repository) ListApplicants(ctx context.Context, jobID uuid.UUID) ([]*Applicant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.job_id, a.labour_id, a.applied_at,
		       u.first_name, u.last_name, u.phone, u.skills,
		       u.village, u.district, u.state
		FROM job_applications a
		JOIN users u ON u.id = a.labour_id
		WHERE a.job_id = $1
		ORDER BY a.applied_at ASC
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*Applicant
	for rows.Next() {
		var ap Applicant
		var u models.User
		if err := rows.Scan(&ap.Application.ID, &ap.Application.JobID, &ap.Application.LabourID,
			&ap.Application.AppliedAt, &u.FirstName, &u.LastName, &u.Phone, &u.Skills,
			&u.Location.Village, &u.Location.District, &u.Location.State); err != nil {
			return nil, err
		}
		u.ID = ap.Application.LabourID
		ap.Labour = &u
		list = append(list, &ap)
	}
	return list, rows.Err()
}

// AppliedJob pairs a job with whether the caller was assigned to it.
type AppliedJob struct {
	Job      *models.Job `json:"job"`
	Assigned bool        `json:"assigned"`
}

func (r *Repository) ListApplicationsByLabour(ctx context.Context, labourID uuid.UUID) ([]*AppliedJob, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+prefixed("j", jobColumns)+`
		FROM job_applications a
		JOIN jobs j ON j.id = a.job_id
		WHERE a.labour_id = $1
		ORDER BY a.applied_at DESC
	`, labourID)
	if err != nil {
		return nil, err
	}
	jobsList, err := collectJobs(rows)
	if err != nil {
		return nil, err
	}
	out := make([]*AppliedJob, 0, len(jobsList))
	for _, j := range jobsList {
		assigned := j.AssignedLabourID != nil && *j.AssignedLabourID == labourID
		out = append(out, &AppliedJob{Job: j, Assigned: assigned})
	}
	return out, nil
}

// Assign atomically claims the job for one labourer. The WHERE clause loses
// the race when the job was assigned or closed in between; callers check ok.
func (r *Repository) Assign(ctx context.Context, jobID, labourID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET assigned_labour_id = $2, status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4 AND assigned_labour_id IS NULL
	`, jobID, labourID, models.JobStatusInProgress, models.JobStatusOpen)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ClearApplications removes every applicant row for the job. Run after an
// acceptance so the remaining candidates drop out of the pool.
func (r *Repository) ClearApplications(ctx context.Context, jobID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		DELETE FROM job_applications WHERE job_id = $1 RETURNING labour_id
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repository) DeleteApplication(ctx context.Context, jobID, labourID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM job_applications WHERE job_id = $1 AND labour_id = $2
	`, jobID, labourID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) MarkCompleted(ctx context.Context, jobID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, jobID, models.JobStatusCompleted, models.JobStatusInProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes an open job and its applications. Refuses jobs that have
// progressed past open.
func (r *Repository) Delete(ctx context.Context, jobID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM jobs WHERE id = $1 AND status = $2
	`, jobID, models.JobStatusOpen)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
