package service

import (
	"context"
	"fmt"

	"github.com/nasmusic-ai/permit-pro/internal/application/port"
	"github.com/nasmusic-ai/permit-pro/internal/application/workflow"
	"github.com/nasmusic-ai/permit-pro/internal/domain/entity"
	domainwf "github.com/nasmusic-ai/permit-pro/internal/domain/workflow"
)

// NotificationService serves a user's in-app inbox
type NotificationService interface {
	List(ctx context.Context, actor workflow.Actor, limit, offset int) ([]*entity.Notification, error)
	UnreadCount(ctx context.Context, actor workflow.Actor) (int, error)
	MarkRead(ctx context.Context, actor workflow.Actor, id string) error
	MarkAllRead(ctx context.Context, actor workflow.Actor) (int64, error)
}

type notificationServiceImpl struct {
	notifications port.NotificationRepository
	logger        Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(notifications port.NotificationRepository, logger Logger) NotificationService {
	return &notificationServiceImpl{
		notifications: notifications,
		logger:        logger,
	}
}

func (s *notificationServiceImpl) List(ctx context.Context, actor workflow.Actor, limit, offset int) ([]*entity.Notification, error) {
	limit, offset = page(limit, offset)
	items, err := s.notifications.ListByUser(ctx, actor.ID, limit, offset)
	if err != nil {
		return nil, wrapInternal("list notifications", err)
	}
	return items, nil
}

func (s *notificationServiceImpl) UnreadCount(ctx context.Context, actor workflow.Actor) (int, error) {
	n, err := s.notifications.CountUnread(ctx, actor.ID)
	if err != nil {
		return 0, wrapInternal("count notifications", err)
	}
	return n, nil
}

// MarkRead only touches the actor's own notifications
func (s *notificationServiceImpl) MarkRead(ctx context.Context, actor workflow.Actor, id string) error {
	ok, err := s.notifications.MarkRead(ctx, id, actor.ID)
	if err != nil {
		return wrapInternal("mark notification read", err)
	}
	if !ok {
		return fmt.Errorf("%w: notification %s", domainwf.ErrNotFound, id)
	}
	return nil
}

func (s *notificationServiceImpl) MarkAllRead(ctx context.Context, actor workflow.Actor) (int64, error) {
	n, err := s.notifications.MarkAllRead(ctx, actor.ID)
	if err != nil {
		return 0, wrapInternal("mark notifications read", err)
	}
	if n > 0 {
		s.logger.Info("Notifications marked read", "user_id", actor.ID, "count", n)
	}
	return n, nil
}
