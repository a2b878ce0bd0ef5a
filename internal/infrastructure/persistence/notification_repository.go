package persistence

import (
	"context"
	"time"

	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

// GormNotificationRepository implements fulfillment.NotificationRepository
type GormNotificationRepository struct {
	db *gorm.DB
}

// NewGormNotificationRepository creates a new GormNotificationRepository
func NewGormNotificationRepository(db *gorm.DB) *GormNotificationRepository {
	return &GormNotificationRepository{db: db}
}

// FindByID finds a notification by ID
func (r *GormNotificationRepository) FindByID(ctx context.Context, id uuid.UUID) (*fulfillment.Notification, error) {
	var n fulfillment.Notification
	if err := r.db.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		return nil, translateError("load notification", err)
	}
	return &n, nil
}

// FindByDedupKey returns every notification written for one dedup key
func (r *GormNotificationRepository) FindByDedupKey(ctx context.Context, dedupKey string) ([]fulfillment.Notification, error) {
	var list []fulfillment.Notification
	if err := r.db.WithContext(ctx).
		Where("dedup_key = ?", dedupKey).
		Order("recipient_role ASC").
		Find(&list).Error; err != nil {
		return nil, translateError("load notifications", err)
	}
	return list, nil
}

// Create inserts a notification. A repeated (dedup key, role) pair is a CONFLICT.
func (r *GormNotificationRepository) Create(ctx context.Context, n *fulfillment.Notification) error {
	return translateError("create notification", r.db.WithContext(ctx).Create(n).Error)
}

// FindForRole lists a role's notifications, newest first. With Since set it
// returns the oldest ones after Since first, so a client catching up can page
// forward from the last created_at it saw.
func (r *GormNotificationRepository) FindForRole(ctx context.Context, filter fulfillment.NotificationFilter) ([]fulfillment.Notification, error) {
	query := r.db.WithContext(ctx).Where("recipient_role = ?", filter.Role)
	if filter.Since != nil {
		query = query.Where("created_at > ?", filter.Since.UTC())
	}
	if filter.UnreadOnly {
		query = query.Where("read = ?", false)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}

	if filter.Since != nil {
		query = query.Order("created_at ASC").Order("id ASC")
	} else {
		query = query.Order("created_at DESC").Order("id ASC")
	}

	var list []fulfillment.Notification
	if err := query.Limit(limit).Find(&list).Error; err != nil {
		return nil, translateError("list notifications", err)
	}
	return list, nil
}

// MarkRead persists the read flag and timestamp
func (r *GormNotificationRepository) MarkRead(ctx context.Context, n *fulfillment.Notification) error {
	result := r.db.WithContext(ctx).
		Model(&fulfillment.Notification{}).
		Where("id = ?", n.ID).
		Updates(map[string]any{
			"read":       n.Read,
			"read_at":    n.ReadAt,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return translateError("mark notification read", result.Error)
	}
	if result.RowsAffected == 0 {
		return translateError("mark notification read", gorm.ErrRecordNotFound)
	}
	return nil
}

var _ fulfillment.NotificationRepository = (*GormNotificationRepository)(nil)
