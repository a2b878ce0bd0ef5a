package persistence

import (
	"context"

	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormLabelArtifactRepository implements fulfillment.LabelArtifactRepository
type GormLabelArtifactRepository struct {
	db *gorm.DB
}

// NewGormLabelArtifactRepository creates a new GormLabelArtifactRepository
func NewGormLabelArtifactRepository(db *gorm.DB) *GormLabelArtifactRepository {
	return &GormLabelArtifactRepository{db: db}
}

// FindByOrder returns the label issued for an order
func (r *GormLabelArtifactRepository) FindByOrder(ctx context.Context, orderID uuid.UUID) (*fulfillment.LabelArtifact, error) {
	var artifact fulfillment.LabelArtifact
	if err := r.db.WithContext(ctx).First(&artifact, "order_id = ?", orderID).Error; err != nil {
		return nil, translateError("load label", err)
	}
	return &artifact, nil
}

// Save inserts the artifact. An order can only ever hold one label, so a
// second insert for the same order fails with CONFLICT.
func (r *GormLabelArtifactRepository) Save(ctx context.Context, artifact *fulfillment.LabelArtifact) error {
	return translateError("save label", r.db.WithContext(ctx).Create(artifact).Error)
}

var _ fulfillment.LabelArtifactRepository = (*GormLabelArtifactRepository)(nil)
