package persistence

import (
	"context"

	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"gorm.io/gorm"
)

// GormStore implements fulfillment.Store over one *gorm.DB handle, which is
// either the pool or an open transaction.
type GormStore struct {
	db            *gorm.DB
	items         *GormItemRepository
	orders        *GormOrderRepository
	labels        *GormLabelArtifactRepository
	notifications *GormNotificationRepository
	activities    *GormActivityRepository
}

// NewGormStore creates a store bound to db
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:            db,
		items:         NewGormItemRepository(db),
		orders:        NewGormOrderRepository(db),
		labels:        NewGormLabelArtifactRepository(db),
		notifications: NewGormNotificationRepository(db),
		activities:    NewGormActivityRepository(db),
	}
}

func (s *GormStore) Items() fulfillment.ItemRepository                 { return s.items }
func (s *GormStore) Orders() fulfillment.OrderRepository               { return s.orders }
func (s *GormStore) Labels() fulfillment.LabelArtifactRepository       { return s.labels }
func (s *GormStore) Notifications() fulfillment.NotificationRepository { return s.notifications }
func (s *GormStore) Activities() fulfillment.ActivityRepository        { return s.activities }

// Transaction runs fn in a database transaction. Nested calls reuse the
// outer transaction through a savepoint.
func (s *GormStore) Transaction(ctx context.Context, fn func(tx fulfillment.Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormStore(tx))
	})
	return translateError("commit transaction", err)
}

var _ fulfillment.Store = (*GormStore)(nil)
