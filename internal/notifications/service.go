package notifications

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/krishisangam/backend/internal/models"
)

// Store is the subset of the repository the service needs.
type Store interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByRecipient(ctx context.Context, recipientID uuid.UUID, limit int) ([]*models.Notification, error)
	CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, id, recipientID uuid.UUID) (bool, error)
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) error
	Delete(ctx context.Context, id, recipientID uuid.UUID) (bool, error)
}

type Service interface {
	// Notify is fire-and-forget: a failed insert is logged, never surfaced,
	// so notification trouble cannot fail the operation that triggered it.
	Notify(ctx context.Context, n *models.Notification)

	List(ctx context.Context, recipientID uuid.UUID, limit int) ([]*models.Notification, int, error)
	CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, id, recipientID uuid.UUID) (bool, error)
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) error
	Delete(ctx context.Context, id, recipientID uuid.UUID) (bool, error)
}

type service struct {
	store  Store
	logger *slog.Logger
}

var _ Service = (*service)(nil)

func NewService(store Store, logger *slog.Logger) Service {
	return &service{store: store, logger: logger}
}

func (s *service) Notify(ctx context.Context, n *models.Notification) {
	if err := s.store.Create(ctx, n); err != nil {
		s.logger.Error("notification insert failed",
			"recipient_id", n.RecipientID, "type", n.Type, "error", err)
	}
}

func (s *service) List(ctx context.Context, recipientID uuid.UUID, limit int) ([]*models.Notification, int, error) {
	list, err := s.store.ListByRecipient(ctx, recipientID, limit)
	if err != nil {
		return nil, 0, err
	}
	unread, err := s.store.CountUnread(ctx, recipientID)
	if err != nil {
		return nil, 0, err
	}
	return list, unread, nil
}

func (s *service) CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error) {
	return s.store.CountUnread(ctx, recipientID)
}

func (s *service) MarkRead(ctx context.Context, id, recipientID uuid.UUID) (bool, error) {
	return s.store.MarkRead(ctx, id, recipientID)
}

func (s *service) MarkAllRead(ctx context.Context, recipientID uuid.UUID) error {
	return s.store.MarkAllRead(ctx, recipientID)
}

func (s *service) Delete(ctx context.Context, id, recipientID uuid.UUID) (bool, error) {
	return s.store.Delete(ctx, id, recipientID)
}
