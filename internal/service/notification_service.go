package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/lendbook/lendbook-backend/internal/domain"
	"github.com/lendbook/lendbook-backend/internal/websocket"
	"github.com/rs/zerolog"
)

const (
	DefaultNotificationLimit = 50
	MaxNotificationLimit     = 200
)

// NotificationService stores inbox notifications and pushes them to connected clients.
// Alerts are also emailed when a mailer is configured.
type NotificationService struct {
	repo           domain.NotificationRepository
	userRepo       domain.UserRepository
	mailer         Mailer
	eventPublisher websocket.EventPublisher
	logger         zerolog.Logger
}

// NewNotificationService creates a new NotificationService. mailer may be nil.
func NewNotificationService(
	repo domain.NotificationRepository,
	userRepo domain.UserRepository,
	mailer Mailer,
	logger zerolog.Logger,
) *NotificationService {
	return &NotificationService{
		repo:     repo,
		userRepo: userRepo,
		mailer:   mailer,
		logger:   logger.With().Str("component", "notification_service").Logger(),
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *NotificationService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

// SendNotification implements domain.NotificationSink
func (s *NotificationService) SendNotification(ctx context.Context, n domain.Notification) {
	if n.Type == "" {
		n.Type = domain.NotificationInfo
	}
	created, err := s.repo.Create(ctx, &n)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("user_id", n.UserID.String()).
			Str("title", n.Title).
			Msg("Failed to store notification")
		return
	}

	if s.eventPublisher != nil {
		s.eventPublisher.Publish(created.UserID, websocket.NotificationCreated(created))
	}

	if created.Type == domain.NotificationAlert {
		s.mail(ctx, created)
	}
}

func (s *NotificationService) mail(ctx context.Context, n *domain.Notification) {
	if s.mailer == nil {
		return
	}
	user, err := s.userRepo.GetByID(ctx, n.UserID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", n.UserID.String()).Msg("Cannot resolve notification recipient")
		return
	}
	if user.Email == "" {
		return
	}
	if err := s.mailer.Send(user.Email, n.Title, n.Message); err != nil {
		s.logger.Error().
			Err(err).
			Str("user_id", n.UserID.String()).
			Int64("notification_id", n.ID).
			Msg("Failed to email notification")
	}
}

// ListNotifications returns the user's newest notifications first
func (s *NotificationService) ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int32) ([]*domain.Notification, error) {
	if limit <= 0 {
		limit = DefaultNotificationLimit
	}
	if limit > MaxNotificationLimit {
		limit = MaxNotificationLimit
	}
	notifications, err := s.repo.ListByUser(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, domain.StorageError(err)
	}
	return notifications, nil
}

// MarkRead marks one of the user's notifications as read
func (s *NotificationService) MarkRead(ctx context.Context, userID uuid.UUID, id int64) error {
	if err := s.repo.MarkRead(ctx, userID, id); err != nil {
		return domain.StorageError(err)
	}
	return nil
}
