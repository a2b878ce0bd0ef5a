package fulfillment

import (
	"context"
	"fmt"
	"time"

	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"github.com/fulfillment/backend/internal/domain/shared"
	"github.com/fulfillment/backend/internal/infrastructure/logger"
	"github.com/fulfillment/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const defaultBundleLockTTL = 30 * time.Second

// ConsolidationDecision tells the pipeline which order to label and what it
// contains. Ready is false when the event does not call for a label.
type ConsolidationDecision struct {
	Ready         bool
	MemberItemIDs []uuid.UUID
	OrderID       uuid.UUID
	Metadata      fulfillment.ShipmentMetadata
}

// Consolidator groups a buyer's sold items into one shipment
type Consolidator struct {
	store    fulfillment.Store
	locker   shared.Locker
	lockTTL  time.Duration
	activity *ActivityRecorder
	metrics  Metrics
	logger   *zap.Logger
}

// ConsolidatorOption configures a Consolidator
type ConsolidatorOption func(*Consolidator)

// WithBundleLockTTL bounds how long a per-buyer lock may be held
func WithBundleLockTTL(ttl time.Duration) ConsolidatorOption {
	return func(c *Consolidator) {
		if ttl > 0 {
			c.lockTTL = ttl
		}
	}
}

// WithConsolidatorActivity records bundle outcomes
func WithConsolidatorActivity(r *ActivityRecorder) ConsolidatorOption {
	return func(c *Consolidator) {
		c.activity = r
	}
}

// WithConsolidatorMetrics sets the metrics sink
func WithConsolidatorMetrics(m Metrics) ConsolidatorOption {
	return func(c *Consolidator) {
		c.metrics = metricsOrNop(m)
	}
}

// WithConsolidatorLogger sets the logger
func WithConsolidatorLogger(l *zap.Logger) ConsolidatorOption {
	return func(c *Consolidator) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewConsolidator creates a consolidator. locker serializes bundling per buyer.
func NewConsolidator(store fulfillment.Store, locker shared.Locker, opts ...ConsolidatorOption) *Consolidator {
	c := &Consolidator{
		store:   store,
		locker:  locker,
		lockTTL: defaultBundleLockTTL,
		metrics: nopMetrics{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Consolidate decides the shipment for a label_requested event. Without
// bundleNow the triggering item ships alone. With bundleNow the listed items
// and the trigger are moved into one bundle order immediately.
func (c *Consolidator) Consolidate(ctx context.Context, event shared.DomainEvent, bundleNow []uuid.UUID) (*ConsolidationDecision, error) {
	requested, ok := event.(*fulfillment.LabelRequestedEvent)
	if !ok {
		return &ConsolidationDecision{}, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "fulfillment.consolidate",
		attribute.String(telemetry.SpanAttrItemID, requested.ItemID.String()),
	)
	defer span.End()

	members := fulfillment.UniqueItemIDs(append([]uuid.UUID{requested.ItemID}, bundleNow...))
	if len(members) == 1 {
		decision, err := c.single(ctx, requested.ItemID)
		telemetry.RecordError(span, err)
		return decision, err
	}

	decision, err := c.bundle(ctx, requested, members)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return decision, nil
}

func (c *Consolidator) single(ctx context.Context, itemID uuid.UUID) (*ConsolidationDecision, error) {
	item, err := c.store.Items().FindByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Status != fulfillment.ItemStatusSold || item.OrderID == nil {
		return nil, shared.NewPreconditionError(fmt.Sprintf("Item %s is %s and has no order to label", item.ID, item.Status))
	}
	return &ConsolidationDecision{
		Ready:         true,
		MemberItemIDs: []uuid.UUID{item.ID},
		OrderID:       *item.OrderID,
		Metadata:      fulfillment.NewSingleShipment(item.ID),
	}, nil
}

// Validate checks that memberIDs can join a bundle for buyerRef without
// changing anything. The item being sold may still be in listing.
func (c *Consolidator) Validate(ctx context.Context, buyerRef string, trigger uuid.UUID, memberIDs []uuid.UUID) error {
	others := make([]uuid.UUID, 0, len(memberIDs))
	for _, id := range fulfillment.UniqueItemIDs(memberIDs) {
		if id != trigger {
			others = append(others, id)
		}
	}
	if len(others) == 0 {
		return nil
	}
	items, err := c.store.Items().FindByIDs(ctx, others)
	if err != nil {
		return err
	}
	if err := requireAll(others, items); err != nil {
		return err
	}
	orders := make(map[uuid.UUID]*fulfillment.Order)
	for i := range items {
		if err := checkMember(ctx, c.store, &items[i], buyerRef, orders); err != nil {
			return err
		}
	}
	return nil
}

func (c *Consolidator) bundle(ctx context.Context, requested *fulfillment.LabelRequestedEvent, members []uuid.UUID) (*ConsolidationDecision, error) {
	buyer := requested.BuyerRef
	release, err := c.locker.Acquire(ctx, "fulfillment:bundle:"+buyer, c.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire bundle lock for buyer %s: %w", buyer, err)
	}
	defer release()

	key := fulfillment.BundleKey(buyer, members)
	var target *fulfillment.Order
	var merged []uuid.UUID

	err = c.store.Transaction(ctx, func(tx fulfillment.Store) error {
		items, err := tx.Items().FindByIDs(ctx, members)
		if err != nil {
			return err
		}
		if err := requireAll(members, items); err != nil {
			return err
		}
		byID := make(map[uuid.UUID]*fulfillment.Item, len(items))
		orders := make(map[uuid.UUID]*fulfillment.Order)
		for i := range items {
			if err := checkMember(ctx, tx, &items[i], buyer, orders); err != nil {
				return err
			}
			byID[items[i].ID] = &items[i]
		}

		target, err = c.bundleOrder(ctx, tx, key, byID[requested.ItemID], orders)
		if err != nil {
			return err
		}

		former := make(map[uuid.UUID]struct{})
		for _, id := range members {
			item := byID[id]
			if item.OrderID != nil && *item.OrderID == target.ID {
				continue
			}
			if item.OrderID != nil {
				former[*item.OrderID] = struct{}{}
			}
			if err := item.AttachToOrder(target.ID); err != nil {
				return err
			}
			if err := tx.Items().SaveWithLock(ctx, item); err != nil {
				return err
			}
		}

		for orderID := range former {
			done, err := mergeIfEmpty(ctx, tx, orders[orderID], target.ID)
			if err != nil {
				return err
			}
			if done {
				merged = append(merged, orderID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.metrics.RecordBundle(ctx, len(members))
	logger.WithLogger(ctx, c.logger).Info("Bundle consolidated",
		zap.String("order_id", target.ID.String()),
		zap.String("order_number", target.OrderNumber),
		zap.Int("items", len(members)),
		zap.Int("merged_orders", len(merged)))

	if len(merged) > 0 {
		mergedIDs := make([]string, len(merged))
		for i, id := range merged {
			mergedIDs[i] = id.String()
		}
		c.activity.RecordBestEffort(ctx, fulfillment.NewActivityEntry(
			fulfillment.ActivityBundleConsolidated,
			requested.Actor,
			members,
			target.ID,
			fmt.Sprintf("Bundled %d items into order %s", len(members), target.OrderNumber),
		).With("bundle_key", key).With("merged_orders", mergedIDs))
	}

	return &ConsolidationDecision{
		Ready:         true,
		MemberItemIDs: members,
		OrderID:       target.ID,
		Metadata:      fulfillment.NewBundleShipment(key, members),
	}, nil
}

// bundleOrder returns the pending order keyed by key, converting the
// trigger's own order when no bundle exists yet.
func (c *Consolidator) bundleOrder(ctx context.Context, tx fulfillment.Store, key string, trigger *fulfillment.Item, orders map[uuid.UUID]*fulfillment.Order) (*fulfillment.Order, error) {
	existing, err := tx.Orders().FindByBundleKey(ctx, key)
	switch {
	case err == nil:
		if !existing.IsPending() {
			return nil, shared.NewConflictError(fmt.Sprintf("Bundle order %s is %s", existing.OrderNumber, existing.Status))
		}
		return existing, nil
	case !shared.HasCode(err, shared.CodeNotFound):
		return nil, err
	}

	if trigger == nil || trigger.OrderID == nil {
		return nil, shared.NewPreconditionError("The sold item has no order to convert into a bundle")
	}
	order := orders[*trigger.OrderID]
	if err := order.MarkBundle(key); err != nil {
		return nil, err
	}
	if err := tx.Orders().SaveWithLock(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// checkMember verifies an item can join the buyer's bundle and caches the
// order it currently belongs to.
func checkMember(ctx context.Context, store fulfillment.Store, item *fulfillment.Item, buyer string, orders map[uuid.UUID]*fulfillment.Order) error {
	if item.Status != fulfillment.ItemStatusSold {
		return shared.NewPreconditionError(fmt.Sprintf("Item %s is %s, only sold items can be bundled", item.ID, item.Status))
	}
	if item.Buyer() != buyer {
		return shared.NewPreconditionError(fmt.Sprintf("Item %s belongs to another buyer", item.ID))
	}
	if item.OrderID == nil {
		return nil
	}
	order, ok := orders[*item.OrderID]
	if !ok {
		var err error
		order, err = store.Orders().FindByID(ctx, *item.OrderID)
		if err != nil {
			return err
		}
		orders[order.ID] = order
	}
	labelled, err := orderHasLabel(ctx, store, order)
	if err != nil {
		return err
	}
	if labelled {
		return shared.NewConflictError(fmt.Sprintf("Item %s already ships under tracking number %s", item.ID, order.Tracking()))
	}
	return nil
}

// mergeIfEmpty marks a former single-item order merged once it has no items
func mergeIfEmpty(ctx context.Context, tx fulfillment.Store, order *fulfillment.Order, target uuid.UUID) (bool, error) {
	if order == nil || !order.IsPending() {
		return false, nil
	}
	remaining, err := tx.Items().FindByOrder(ctx, order.ID)
	if err != nil {
		return false, err
	}
	if len(remaining) > 0 {
		return false, nil
	}
	if err := order.MergeInto(target); err != nil {
		return false, err
	}
	if err := tx.Orders().SaveWithLock(ctx, order); err != nil {
		return false, err
	}
	return true, nil
}

// requireAll reports the first id with no matching item
func requireAll(ids []uuid.UUID, items []fulfillment.Item) error {
	found := make(map[uuid.UUID]struct{}, len(items))
	for i := range items {
		found[items[i].ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return shared.NewDomainError(shared.CodeNotFound, "Item "+id.String()+" not found")
		}
	}
	return nil
}
