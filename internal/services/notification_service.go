package services

import (
	"context"

	"auction-engine/internal/domain"
)

const defaultListLimit = 100

// NotificationService reads the persisted notification log.
type NotificationService struct {
	repo domain.NotificationRepository
}

func NewNotificationService(repo domain.NotificationRepository) *NotificationService {
	return &NotificationService{repo: repo}
}

func (s *NotificationService) List(ctx context.Context, filter domain.NotificationFilter) ([]*domain.Notification, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	return s.repo.ListNotifications(ctx, filter)
}

func (s *NotificationService) MarkRead(ctx context.Context, id string) error {
	return s.repo.MarkRead(ctx, id)
}
