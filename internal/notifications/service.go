package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dealmates/backend/internal/models"
	"github.com/dealmates/backend/pkg/cache"
	"github.com/dealmates/backend/pkg/queue"
)

// ErrNotFound means the notification does not exist or is not the caller's.
var ErrNotFound = errors.New("notification not found")

// Store is the persistence surface. Implemented by *Repository.
type Store interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Notification, error)
	List(ctx context.Context) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) (bool, error)
}

// Enqueuer hands fan-out jobs to the worker. Implemented by *queue.Queue.
type Enqueuer interface {
	EnqueueNotificationFanout(ctx context.Context, payload queue.NotificationFanoutPayload) error
}

// Cache is the subset of pkg/cache the service uses.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) bool
	SetJSON(ctx context.Context, key string, value interface{})
	InvalidateUserNotifications(ctx context.Context, userID string)
}

// Service creates and serves in-app notifications. Broadcasts go through the
// job queue so callers never pay for the recipient count.
type Service struct {
	repo   Store
	queue  Enqueuer
	cache  Cache
	logger *zap.Logger
}

// NewService creates the notifications service.
func NewService(repo Store, q Enqueuer, c Cache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, queue: q, cache: c, logger: logger}
}

// Create inserts one notification and invalidates the recipient's cached list.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, title, message string) error {
	n := &models.Notification{UserID: userID, Title: title, Message: message}
	if err := s.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	s.cache.InvalidateUserNotifications(ctx, userID.String())
	return nil
}

// Broadcast enqueues one message for many recipients. The worker performs
// the per-recipient inserts.
func (s *Service) Broadcast(ctx context.Context, userIDs []uuid.UUID, title, message string) error {
	if len(userIDs) == 0 {
		return nil
	}
	return s.queue.EnqueueNotificationFanout(ctx, queue.NotificationFanoutPayload{
		UserIDs: userIDs,
		Title:   title,
		Message: message,
	})
}

// ListForUser returns a user's notifications via the read cache.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Notification, error) {
	key := cache.UserNotificationsKey(userID.String())
	var list []models.Notification
	if s.cache.GetJSON(ctx, key, &list) {
		return list, nil
	}
	list, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	s.cache.SetJSON(ctx, key, list)
	return list, nil
}

// ListAll returns every notification (admin) via the read cache.
func (s *Service) ListAll(ctx context.Context) ([]models.Notification, error) {
	var list []models.Notification
	if s.cache.GetJSON(ctx, cache.NotificationsAllKey, &list) {
		return list, nil
	}
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	s.cache.SetJSON(ctx, cache.NotificationsAllKey, list)
	return list, nil
}

// MarkAsRead marks the caller's notification read. A notification owned by
// someone else is indistinguishable from a missing one.
func (s *Service) MarkAsRead(ctx context.Context, id, userID uuid.UUID) error {
	ok, err := s.repo.MarkRead(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	s.cache.InvalidateUserNotifications(ctx, userID.String())
	return nil
}
