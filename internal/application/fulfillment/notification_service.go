package fulfillment

import (
	"context"
	"time"

	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"github.com/fulfillment/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// ListNotificationsQuery selects notifications for a role
type ListNotificationsQuery struct {
	Role       fulfillment.Role
	Since      *time.Time
	UnreadOnly bool
	Limit      int
}

// NotificationService serves durable notification reads. Reconnecting
// stream clients use it to catch up on what they missed.
type NotificationService struct {
	repo fulfillment.NotificationRepository
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(repo fulfillment.NotificationRepository) *NotificationService {
	return &NotificationService{repo: repo}
}

// List returns a role's notifications, newest first, or oldest first after q.Since
func (s *NotificationService) List(ctx context.Context, q ListNotificationsQuery) ([]fulfillment.Notification, error) {
	if q.Role == "" {
		q.Role = fulfillment.RoleStaff
	}
	if !q.Role.IsValid() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Unknown recipient role "+string(q.Role))
	}
	return s.repo.FindForRole(ctx, fulfillment.NotificationFilter{
		Role:       q.Role,
		Since:      q.Since,
		UnreadOnly: q.UnreadOnly,
		Limit:      q.Limit,
	})
}

// MarkRead acknowledges a notification. Acknowledging twice is a no-op.
func (s *NotificationService) MarkRead(ctx context.Context, id uuid.UUID) (*fulfillment.Notification, error) {
	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.Read {
		return n, nil
	}
	n.MarkRead()
	if err := s.repo.MarkRead(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}
