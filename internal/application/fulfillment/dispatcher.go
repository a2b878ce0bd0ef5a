package fulfillment

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"github.com/fulfillment/backend/internal/domain/shared"
	"github.com/fulfillment/backend/internal/infrastructure/logger"
	"github.com/fulfillment/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const unassignedLocation = "unassigned"

// Dispatcher turns fulfillment events into staff notifications. Each
// (notification type, order) pair yields one notification at most.
type Dispatcher struct {
	store     fulfillment.Store
	publisher fulfillment.NotificationPublisher
	activity  *ActivityRecorder
	metrics   Metrics
	logger    *zap.Logger
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithDispatcherActivity records each dispatch
func WithDispatcherActivity(r *ActivityRecorder) DispatcherOption {
	return func(d *Dispatcher) {
		d.activity = r
	}
}

// WithDispatcherMetrics sets the metrics sink
func WithDispatcherMetrics(m Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = metricsOrNop(m)
	}
}

// WithDispatcherLogger sets the logger
func WithDispatcherLogger(l *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDispatcher creates a Dispatcher. publisher may be nil, in which case
// notifications are only persisted.
func NewDispatcher(store fulfillment.Store, publisher fulfillment.NotificationPublisher, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:     store,
		publisher: publisher,
		metrics:   nopMetrics{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name identifies the handler in logs
func (d *Dispatcher) Name() string {
	return "notification_dispatcher"
}

// EventTypes returns the event types this handler is interested in
func (d *Dispatcher) EventTypes() []string {
	return []string{fulfillment.EventTypeStatusChanged, fulfillment.EventTypeLabelReady}
}

// Handle implements shared.EventHandler
func (d *Dispatcher) Handle(ctx context.Context, event shared.DomainEvent) error {
	_, err := d.Dispatch(ctx, event)
	return err
}

// Dispatch persists and pushes the notification an event calls for. Events
// that need none return nil. A repeated event returns the notifications
// already written for it.
func (d *Dispatcher) Dispatch(ctx context.Context, event shared.DomainEvent) ([]fulfillment.Notification, error) {
	ctx, span := telemetry.StartSpan(ctx, "fulfillment.dispatch",
		attribute.String(telemetry.SpanAttrEventType, event.EventType()),
	)
	defer span.End()

	var (
		n     *fulfillment.Notification
		actor string
		err   error
	)
	switch e := event.(type) {
	case *fulfillment.StatusChangedEvent:
		if !e.IsSale() {
			return nil, nil
		}
		actor = e.Actor
		n, err = d.orderReadyForLabel(ctx, e)
	case *fulfillment.LabelReadyEvent:
		actor = e.Actor
		n, err = d.pickingRequest(ctx, e)
	default:
		return nil, nil
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	list, err := d.deliver(ctx, n, actor)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return list, nil
}

func (d *Dispatcher) orderReadyForLabel(ctx context.Context, e *fulfillment.StatusChangedEvent) (*fulfillment.Notification, error) {
	order, err := d.store.Orders().FindByID(ctx, e.OrderID)
	if err != nil {
		return nil, err
	}
	return fulfillment.NewNotification(
		fulfillment.RoleStaff,
		fulfillment.NotificationOrderReadyForLabel,
		fulfillment.PriorityHigh,
		"Order ready for label",
		fmt.Sprintf("Item %s was sold to %s. Order %s is ready for a shipping label.", e.SKU, e.BuyerRef, order.OrderNumber),
		fulfillment.DedupKey(string(fulfillment.NotificationOrderReadyForLabel), order.ID),
		fulfillment.NotificationMetadata{
			ItemIDs:     []uuid.UUID{e.ItemID},
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
		},
	), nil
}

func (d *Dispatcher) pickingRequest(ctx context.Context, e *fulfillment.LabelReadyEvent) (*fulfillment.Notification, error) {
	items, err := d.store.Items().FindByIDs(ctx, e.ItemIDs)
	if err != nil {
		return nil, err
	}
	locations := pickLocations(items)

	where := unassignedLocation
	if len(locations) > 0 {
		where = strings.Join(locations, ", ")
	}
	count := ""
	if e.Metadata.IsBundle() {
		count = " " + pluralizeItems(len(e.ItemIDs))
	}

	meta := e.Metadata
	return fulfillment.NewNotification(
		fulfillment.RoleStaff,
		fulfillment.NotificationPickingRequest,
		fulfillment.PriorityHigh,
		"Picking request",
		fmt.Sprintf("Pick order %s%s from %s. Tracking %s.", e.OrderNumber, count, where, e.TrackingNumber),
		fulfillment.DedupKey(string(fulfillment.NotificationPickingRequest), e.OrderID),
		fulfillment.NotificationMetadata{
			ItemIDs:        e.ItemIDs,
			OrderID:        e.OrderID,
			OrderNumber:    e.OrderNumber,
			TrackingNumber: e.TrackingNumber,
			Locations:      locations,
			Shipment:       &meta,
		},
	), nil
}

// deliver persists n unless its dedup key exists, then pushes it to live
// subscribers. The push is skipped for duplicates.
func (d *Dispatcher) deliver(ctx context.Context, n *fulfillment.Notification, actor string) ([]fulfillment.Notification, error) {
	existing, err := d.store.Notifications().FindByDedupKey(ctx, n.DedupKey)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		d.metrics.RecordNotification(ctx, string(n.Type), false)
		return existing, nil
	}

	if err := d.store.Notifications().Create(ctx, n); err != nil {
		if !shared.HasCode(err, shared.CodeConflict) {
			return nil, err
		}
		// lost the race on the unique index; the winner's rows are the result
		winners, findErr := d.store.Notifications().FindByDedupKey(ctx, n.DedupKey)
		if findErr != nil {
			return nil, findErr
		}
		d.metrics.RecordNotification(ctx, string(n.Type), false)
		return winners, nil
	}
	d.metrics.RecordNotification(ctx, string(n.Type), true)

	log := logger.WithLogger(ctx, d.logger)
	log.Info("Notification dispatched",
		zap.String("notification_id", n.ID.String()),
		zap.String("type", string(n.Type)),
		zap.String("dedup_key", n.DedupKey))

	if d.publisher != nil {
		if err := d.publisher.Publish(ctx, n); err != nil {
			// persisted; reconnecting clients read it back through the listing
			log.Warn("Failed to push notification",
				zap.String("notification_id", n.ID.String()),
				zap.Error(err))
		}
	}

	d.activity.RecordBestEffort(ctx, fulfillment.NewActivityEntry(
		fulfillment.ActivityNotificationSent,
		actor,
		n.Metadata.ItemIDs,
		n.Metadata.OrderID,
		fmt.Sprintf("Notification %s sent to %s", n.Type, n.RecipientRole),
	).With("notification_id", n.ID.String()).With("dedup_key", n.DedupKey))

	return []fulfillment.Notification{*n}, nil
}

// pickLocations returns the distinct assigned locations in sorted order
func pickLocations(items []fulfillment.Item) []string {
	seen := make(map[string]struct{}, len(items))
	locations := make([]string, 0, len(items))
	for i := range items {
		loc := items[i].Location()
		if loc == "" {
			continue
		}
		if _, ok := seen[loc]; ok {
			continue
		}
		seen[loc] = struct{}{}
		locations = append(locations, loc)
	}
	sort.Strings(locations)
	return locations
}

func pluralizeItems(n int) string {
	if n == 1 {
		return "(1 item)"
	}
	return fmt.Sprintf("(%d items)", n)
}

var _ shared.EventHandler = (*Dispatcher)(nil)
