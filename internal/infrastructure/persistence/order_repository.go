package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// orderNumberPrefix is followed by the UTC date and a daily sequence:
// ORD-20250114-00042
const orderNumberPrefix = "ORD-"

// GormOrderRepository implements fulfillment.OrderRepository using GORM
type GormOrderRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db, now: time.Now}
}

// FindByID finds an order by ID
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*fulfillment.Order, error) {
	var order fulfillment.Order
	if err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		return nil, translateError("load order", err)
	}
	return &order, nil
}

// FindByBundleKey finds the order that owns a bundle key
func (r *GormOrderRepository) FindByBundleKey(ctx context.Context, bundleKey string) (*fulfillment.Order, error) {
	var order fulfillment.Order
	if err := r.db.WithContext(ctx).First(&order, "bundle_key = ?", bundleKey).Error; err != nil {
		return nil, translateError("load bundle order", err)
	}
	return &order, nil
}

// Create inserts a new order
func (r *GormOrderRepository) Create(ctx context.Context, order *fulfillment.Order) error {
	return translateError("create order", r.db.WithContext(ctx).Create(order).Error)
}

// SaveWithLock writes every order column guarded by the version check.
// On a stale version the in-memory version is left untouched.
func (r *GormOrderRepository) SaveWithLock(ctx context.Context, order *fulfillment.Order) error {
	expected := order.Version
	order.Version = expected + 1

	result := r.db.WithContext(ctx).
		Model(order).
		Where("version = ?", expected).
		Select("*").
		Omit("id", "created_at").
		Updates(order)
	if result.Error != nil {
		order.Version = expected
		return translateError("save order", result.Error)
	}
	if result.RowsAffected == 0 {
		order.Version = expected
		return versionConflict(ctx, r.db, &fulfillment.Order{}, order.ID)
	}
	return nil
}

// GenerateOrderNumber returns the next number for today (UTC). Two callers
// racing for the same number are separated by the unique index on insert.
func (r *GormOrderRepository) GenerateOrderNumber(ctx context.Context) (string, error) {
	prefix := orderNumberPrefix + r.now().UTC().Format("20060102") + "-"

	var last fulfillment.Order
	err := r.db.WithContext(ctx).
		Model(&fulfillment.Order{}).
		Select("order_number").
		Where("order_number LIKE ?", prefix+"%").
		Order("order_number DESC").
		First(&last).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", translateError("generate order number", err)
	}

	next := int64(1)
	if err == nil {
		var seq int64
		if _, scanErr := fmt.Sscanf(strings.TrimPrefix(last.OrderNumber, prefix), "%d", &seq); scanErr == nil {
			next = seq + 1
		}
	}
	return fmt.Sprintf("%s%05d", prefix, next), nil
}

var _ fulfillment.OrderRepository = (*GormOrderRepository)(nil)
