package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/krishisangam/backend/internal/models"
)

var (
	ErrNotFound        = errors.New("job not found")
	ErrForbidden       = errors.New("job does not belong to caller")
	ErrJobNotOpen      = errors.New("job is not open")
	ErrAlreadyApplied  = errors.New("already applied to this job")
	ErrSkillMismatch   = errors.New("labourer lacks a required skill")
	ErrAlreadyAssigned = errors.New("job already assigned")
	ErrNotApplied      = errors.New("labourer has not applied to this job")
	ErrNotAssigned     = errors.New("caller is not assigned to this job")
)

// Store is the repository surface the service depends on.
type Store interface {
	Create(ctx context.Context, j *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListOpen(ctx context.Context, limit int) ([]*models.Job, error)
	ListByFarmer(ctx context.Context, farmerID uuid.UUID) ([]*models.Job, error)
	CreateApplication(ctx context.Context, jobID, labourID uuid.UUID) (*models.Application, error)
	HasApplied(ctx context.Context, jobID, labourID uuid.UUID) (bool, error)
	ListApplicants(ctx context.Context, jobID uuid.UUID) ([]*Applicant, error)
	ListApplicationsByLabour(ctx context.Context, labourID uuid.UUID) ([]*AppliedJob, error)
	Assign(ctx context.Context, jobID, labourID uuid.UUID) (bool, error)
	ClearApplications(ctx context.Context, jobID uuid.UUID) ([]uuid.UUID, error)
	DeleteApplication(ctx context.Context, jobID, labourID uuid.UUID) (bool, error)
	MarkCompleted(ctx context.Context, jobID uuid.UUID) (bool, error)
	Delete(ctx context.Context, jobID uuid.UUID) (bool, error)
}

// Notifier delivers user-facing notifications. Failures are absorbed by the
// implementation, so callers never branch on delivery.
type Notifier interface {
	Notify(ctx context.Context, n *models.Notification)
}

type PostJobInput struct {
	Title          string
	Description    string
	JobType        string
	CropType       string
	DurationUnits  int
	WorkersNeeded  int
	Wage           int64
	RequiredSkills []string
	Requirements   string
	Location       models.Location
	StartDate      *time.Time
}

type Service interface {
	PostJob(ctx context.Context, farmerID uuid.UUID, input PostJobInput) (*models.Job, error)
	GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
	ListOpen(ctx context.Context, limit int) ([]*models.Job, error)
	ListByFarmer(ctx context.Context, farmerID uuid.UUID) ([]*models.Job, error)
	ListApplicants(ctx context.Context, farmerID, jobID uuid.UUID) ([]*Applicant, error)
	Apply(ctx context.Context, labour *models.User, jobID uuid.UUID) (*models.Application, error)
	ListMyApplications(ctx context.Context, labourID uuid.UUID) ([]*AppliedJob, error)
	Accept(ctx context.Context, farmerID, jobID, labourID uuid.UUID) error
	Reject(ctx context.Context, farmerID, jobID, labourID uuid.UUID) error
	Complete(ctx context.Context, callerID, jobID uuid.UUID) error
	Delete(ctx context.Context, farmerID, jobID uuid.UUID) error
}

type service struct {
	store    Store
	notifier Notifier
}

var _ Service = (*service)(nil)

func NewService(store Store, notifier Notifier) Service {
	return &service{store: store, notifier: notifier}
}

func (s *service) PostJob(ctx context.Context, farmerID uuid.UUID, input PostJobInput) (*models.Job, error) {
	job := &models.Job{
		FarmerID:       farmerID,
		Title:          strings.TrimSpace(input.Title),
		Description:    strings.TrimSpace(input.Description),
		JobType:        input.JobType,
		CropType:       input.CropType,
		DurationUnits:  input.DurationUnits,
		WorkersNeeded:  input.WorkersNeeded,
		Wage:           input.Wage,
		RequiredSkills: normalizeSkills(input.RequiredSkills),
		Requirements:   input.Requirements,
		Location:       input.Location,
		StartDate:      time.Now(),
		Status:         models.JobStatusOpen,
		PaymentStatus:  models.JobPaymentPending,
	}
	if input.StartDate != nil {
		job.StartDate = *input.StartDate
	}
	if job.DurationUnits < 1 {
		job.DurationUnits = 1
	}
	if job.WorkersNeeded < 1 {
		job.WorkersNeeded = 1
	}
	if err := s.store.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// normalizeSkills lowercases and trims skills so matching is case-insensitive.
func normalizeSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	for _, sk := range skills {
		sk = strings.ToLower(strings.TrimSpace(sk))
		if sk != "" {
			out = append(out, sk)
		}
	}
	return out
}

func (s *service) GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	job, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrNotFound
	}
	return job, nil
}

func (s *service) ListOpen(ctx context.Context, limit int) ([]*models.Job, error) {
	return s.store.ListOpen(ctx, limit)
}

func (s *service) ListByFarmer(ctx context.Context, farmerID uuid.UUID) ([]*models.Job, error) {
	return s.store.ListByFarmer(ctx, farmerID)
}

func (s *service) ListApplicants(ctx context.Context, farmerID, jobID uuid.UUID) ([]*Applicant, error) {
	if _, err := s.ownedJob(ctx, farmerID, jobID); err != nil {
		return nil, err
	}
	return s.store.ListApplicants(ctx, jobID)
}

func (s *service) Apply(ctx context.Context, labour *models.User, jobID uuid.UUID) (*models.Application, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusOpen || job.AssignedLabourID != nil {
		return nil, ErrJobNotOpen
	}
	if !hasAllSkills(labour.Skills, job.RequiredSkills) {
		return nil, ErrSkillMismatch
	}
	app, err := s.store.CreateApplication(ctx, jobID, labour.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrAlreadyApplied
		}
		return nil, err
	}

	s.notifier.Notify(ctx, &models.Notification{
		RecipientID: job.FarmerID,
		SenderID:    &labour.ID,
		Type:        models.NotifyGeneral,
		Title:       "New application",
		Message:     fmt.Sprintf("%s applied for %q", labour.FullName(), job.Title),
		JobID:       &job.ID,
	})
	return app, nil
}

// hasAllSkills reports whether every required skill appears in the labourer's
// skill list, compared case-insensitively.
func hasAllSkills(have, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, sk := range have {
		set[strings.ToLower(strings.TrimSpace(sk))] = struct{}{}
	}
	for _, sk := range required {
		if _, ok := set[strings.ToLower(strings.TrimSpace(sk))]; !ok {
			return false
		}
	}
	return true
}

func (s *service) ListMyApplications(ctx context.Context, labourID uuid.UUID) ([]*AppliedJob, error) {
	return s.store.ListApplicationsByLabour(ctx, labourID)
}

func (s *service) Accept(ctx context.Context, farmerID, jobID, labourID uuid.UUID) error {
	job, err := s.ownedJob(ctx, farmerID, jobID)
	if err != nil {
		return err
	}
	applied, err := s.store.HasApplied(ctx, jobID, labourID)
	if err != nil {
		return err
	}
	if !applied {
		return ErrNotApplied
	}

	ok, err := s.store.Assign(ctx, jobID, labourID)
	if err != nil {
		return err
	}
	if !ok {
		// Lost the conditional update: someone was assigned first or the
		// job left the open state.
		if job.AssignedLabourID != nil {
			return ErrAlreadyAssigned
		}
		return ErrJobNotOpen
	}

	// Every pending applicant leaves the pool once one is chosen.
	cleared, err := s.store.ClearApplications(ctx, jobID)
	if err != nil {
		return err
	}
	for _, id := range cleared {
		if id == labourID {
			s.notifier.Notify(ctx, &models.Notification{
				RecipientID: id,
				SenderID:    &farmerID,
				Type:        models.NotifyApplicationAccepted,
				Title:       "Application accepted",
				Message:     fmt.Sprintf("You were selected for %q", job.Title),
				JobID:       &job.ID,
			})
			continue
		}
		s.notifier.Notify(ctx, &models.Notification{
			RecipientID: id,
			SenderID:    &farmerID,
			Type:        models.NotifyApplicationRejected,
			Title:       "Position filled",
			Message:     fmt.Sprintf("The position for %q has been filled", job.Title),
			JobID:       &job.ID,
		})
	}
	return nil
}

func (s *service) Reject(ctx context.Context, farmerID, jobID, labourID uuid.UUID) error {
	job, err := s.ownedJob(ctx, farmerID, jobID)
	if err != nil {
		return err
	}
	found, err := s.store.DeleteApplication(ctx, jobID, labourID)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotApplied
	}
	s.notifier.Notify(ctx, &models.Notification{
		RecipientID: labourID,
		SenderID:    &farmerID,
		Type:        models.NotifyApplicationRejected,
		Title:       "Application rejected",
		Message:     fmt.Sprintf("Your application for %q was not selected", job.Title),
		JobID:       &job.ID,
	})
	return nil
}

func (s *service) Complete(ctx context.Context, callerID, jobID uuid.UUID) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.AssignedLabourID == nil || *job.AssignedLabourID != callerID {
		return ErrNotAssigned
	}
	ok, err := s.store.MarkCompleted(ctx, jobID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrJobNotOpen
	}
	s.notifier.Notify(ctx, &models.Notification{
		RecipientID: job.FarmerID,
		SenderID:    &callerID,
		Type:        models.NotifyGeneral,
		Title:       "Work completed",
		Message:     fmt.Sprintf("Work on %q has been marked completed", job.Title),
		JobID:       &job.ID,
	})
	return nil
}

func (s *service) Delete(ctx context.Context, farmerID, jobID uuid.UUID) error {
	if _, err := s.ownedJob(ctx, farmerID, jobID); err != nil {
		return err
	}
	ok, err := s.store.Delete(ctx, jobID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrJobNotOpen
	}
	return nil
}

func (s *service) ownedJob(ctx context.Context, farmerID, jobID uuid.UUID) (*models.Job, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.FarmerID != farmerID {
		return nil, ErrForbidden
	}
	return job, nil
}
