package persistence

import (
	"context"

	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"gorm.io/gorm"
)

// GormActivityRepository implements fulfillment.ActivityRepository
type GormActivityRepository struct {
	db *gorm.DB
}

// NewGormActivityRepository creates a new GormActivityRepository
func NewGormActivityRepository(db *gorm.DB) *GormActivityRepository {
	return &GormActivityRepository{db: db}
}

// Append inserts an audit entry. Entries are never updated.
func (r *GormActivityRepository) Append(ctx context.Context, entry *fulfillment.ActivityEntry) error {
	return translateError("append activity", r.db.WithContext(ctx).Create(entry).Error)
}

var _ fulfillment.ActivityRepository = (*GormActivityRepository)(nil)
