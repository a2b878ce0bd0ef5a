package persistence

import (
	"context"

	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"github.com/fulfillment/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormItemRepository implements fulfillment.ItemRepository using GORM
type GormItemRepository struct {
	db *gorm.DB
}

// NewGormItemRepository creates a new GormItemRepository
func NewGormItemRepository(db *gorm.DB) *GormItemRepository {
	return &GormItemRepository{db: db}
}

// FindByID finds an item by ID
func (r *GormItemRepository) FindByID(ctx context.Context, id uuid.UUID) (*fulfillment.Item, error) {
	var item fulfillment.Item
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, translateError("load item", err)
	}
	return &item, nil
}

// FindByIDs loads items in ID order. Missing IDs are reported as NOT_FOUND.
func (r *GormItemRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]fulfillment.Item, error) {
	if len(ids) == 0 {
		return []fulfillment.Item{}, nil
	}
	var items []fulfillment.Item
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&items).Error; err != nil {
		return nil, translateError("load items", err)
	}
	if len(items) != len(uniqueIDs(ids)) {
		return nil, shared.ErrNotFound
	}
	return items, nil
}

// FindByOrder lists the items attached to an order
func (r *GormItemRepository) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]fulfillment.Item, error) {
	var items []fulfillment.Item
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&items).Error; err != nil {
		return nil, translateError("load order items", err)
	}
	return items, nil
}

// Create inserts a new item
func (r *GormItemRepository) Create(ctx context.Context, item *fulfillment.Item) error {
	return translateError("create item", r.db.WithContext(ctx).Create(item).Error)
}

// SaveWithLock writes the mutable item columns if the stored version still
// equals item.Version, then bumps the version on both sides.
func (r *GormItemRepository) SaveWithLock(ctx context.Context, item *fulfillment.Item) error {
	result := r.db.WithContext(ctx).
		Model(&fulfillment.Item{}).
		Where("id = ? AND version = ?", item.ID, item.Version).
		Updates(map[string]any{
			"status":      item.Status,
			"buyer_ref":   item.BuyerRef,
			"location_id": item.LocationID,
			"order_id":    item.OrderID,
			"price":       item.Price,
			"category":    item.Category,
			"version":     item.Version + 1,
			"updated_at":  item.UpdatedAt,
		})
	if result.Error != nil {
		return translateError("save item", result.Error)
	}
	if result.RowsAffected == 0 {
		return versionConflict(ctx, r.db, &fulfillment.Item{}, item.ID)
	}
	item.Version++
	return nil
}

// versionConflict tells a missing row apart from a stale version
func versionConflict(ctx context.Context, db *gorm.DB, model any, id uuid.UUID) error {
	var count int64
	if err := db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return translateError("check version", err)
	}
	if count == 0 {
		return shared.ErrNotFound
	}
	return shared.ErrConcurrencyConflict
}

func uniqueIDs(ids []uuid.UUID) map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

var _ fulfillment.ItemRepository = (*GormItemRepository)(nil)
