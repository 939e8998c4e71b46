package workrequests

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/krishisangam/backend/internal/models"
)

var (
	ErrNotFound         = errors.New("work request not found")
	ErrForbidden        = errors.New("work request does not belong to caller")
	ErrDuplicateRequest = errors.New("a pending request for this labourer already exists")
	ErrAlreadyAnswered  = errors.New("work request already answered")
	ErrBadResponse      = errors.New("response must be accepted or rejected")
	ErrLabourNotFound   = errors.New("labourer not found")
)

// Store is the repository surface the service depends on.
type Store interface {
	Create(ctx context.Context, wr *models.WorkRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.WorkRequest, error)
	ListByFarmer(ctx context.Context, farmerID uuid.UUID) ([]*models.WorkRequest, error)
	ListByLabour(ctx context.Context, labourID uuid.UUID) ([]*models.WorkRequest, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) (bool, error)
	Cancel(ctx context.Context, id uuid.UUID) (bool, error)
}

// UserLookup resolves the target labourer when a request is sent.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type Notifier interface {
	Notify(ctx context.Context, n *models.Notification)
}

type Service interface {
	Send(ctx context.Context, farmer *models.User, labourID uuid.UUID, terms models.WorkRequestTerms) (*models.WorkRequest, error)
	Respond(ctx context.Context, labourID, requestID uuid.UUID, response string) (*models.WorkRequest, error)
	Cancel(ctx context.Context, farmerID, requestID uuid.UUID) error
	ListSent(ctx context.Context, farmerID uuid.UUID) ([]*models.WorkRequest, error)
	ListReceived(ctx context.Context, labourID uuid.UUID) ([]*models.WorkRequest, error)
}

type service struct {
	store    Store
	users    UserLookup
	notifier Notifier
}

var _ Service = (*service)(nil)

func NewService(store Store, users UserLookup, notifier Notifier) Service {
	return &service{store: store, users: users, notifier: notifier}
}

func (s *service) Send(ctx context.Context, farmer *models.User, labourID uuid.UUID, terms models.WorkRequestTerms) (*models.WorkRequest, error) {
	labour, err := s.users.GetByID(ctx, labourID)
	if err != nil {
		return nil, err
	}
	if labour == nil || labour.Role != models.RoleLabour {
		return nil, ErrLabourNotFound
	}
	if terms.DurationUnits < 1 {
		terms.DurationUnits = 1
	}
	if terms.Location == (models.Location{}) {
		terms.Location = farmer.Location
	}

	wr := &models.WorkRequest{
		FarmerID: farmer.ID,
		LabourID: labourID,
		Terms:    terms,
		Status:   models.WorkRequestPending,
	}
	if err := s.store.Create(ctx, wr); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateRequest
		}
		return nil, err
	}

	s.notifier.Notify(ctx, &models.Notification{
		RecipientID: labourID,
		SenderID:    &farmer.ID,
		Type:        models.NotifyWorkRequest,
		Title:       "New work request",
		Message:     fmt.Sprintf("%s sent you a work request for %s", farmer.FullName(), wr.Terms.JobType),
	})
	return wr, nil
}

func (s *service) Respond(ctx context.Context, labourID, requestID uuid.UUID, response string) (*models.WorkRequest, error) {
	if response != models.WorkRequestAccepted && response != models.WorkRequestRejected {
		return nil, ErrBadResponse
	}
	wr, err := s.owned(ctx, requestID, func(wr *models.WorkRequest) bool { return wr.LabourID == labourID })
	if err != nil {
		return nil, err
	}
	ok, err := s.store.SetStatus(ctx, requestID, response)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyAnswered
	}
	wr.Status = response

	title := "Work request rejected"
	message := fmt.Sprintf("Your work request for %s was declined", wr.Terms.JobType)
	if response == models.WorkRequestAccepted {
		title = "Work request accepted"
		message = fmt.Sprintf("Your work request for %s was accepted", wr.Terms.JobType)
	}
	s.notifier.Notify(ctx, &models.Notification{
		RecipientID: wr.FarmerID,
		SenderID:    &labourID,
		Type:        models.NotifyWorkRequest,
		Title:       title,
		Message:     message,
	})
	return wr, nil
}

func (s *service) Cancel(ctx context.Context, farmerID, requestID uuid.UUID) error {
	if _, err := s.owned(ctx, requestID, func(wr *models.WorkRequest) bool { return wr.FarmerID == farmerID }); err != nil {
		return err
	}
	ok, err := s.store.Cancel(ctx, requestID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyAnswered
	}
	return nil
}

func (s *service) ListSent(ctx context.Context, farmerID uuid.UUID) ([]*models.WorkRequest, error) {
	return s.store.ListByFarmer(ctx, farmerID)
}

func (s *service) ListReceived(ctx context.Context, labourID uuid.UUID) ([]*models.WorkRequest, error) {
	return s.store.ListByLabour(ctx, labourID)
}

func (s *service) owned(ctx context.Context, requestID uuid.UUID, owns func(*models.WorkRequest) bool) (*models.WorkRequest, error) {
	wr, err := s.store.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if wr == nil {
		return nil, ErrNotFound
	}
	if !owns(wr) {
		return nil, ErrForbidden
	}
	return wr, nil
}
