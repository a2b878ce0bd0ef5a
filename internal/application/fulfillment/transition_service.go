package fulfillment

import (
	"context"
	"errors"
	"strings"

	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"github.com/fulfillment/backend/internal/domain/shared"
	"github.com/fulfillment/backend/internal/infrastructure/logger"
	"github.com/fulfillment/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// TransitionRequest asks for one item status change
type TransitionRequest struct {
	ItemID          uuid.UUID
	Target          fulfillment.ItemStatus
	Actor           string
	BuyerRef        string
	ShippingAddress fulfillment.Address
}

// TransitionResult is the committed item, the order it belongs to after the
// change (if any) and the events that were published.
type TransitionResult struct {
	Item   *fulfillment.Item
	Order  *fulfillment.Order
	From   fulfillment.ItemStatus
	Events []fulfillment.Event
}

// CreateItemRequest registers an item at intake
type CreateItemRequest struct {
	SKU        string
	SellerID   string
	Category   string
	Price      decimal.Decimal
	LocationID string
}

// TransitionService runs item status changes as units of work
type TransitionService struct {
	store     fulfillment.Store
	publisher shared.EventPublisher
	metrics   Metrics
	logger    *zap.Logger
}

// TransitionOption configures a TransitionService
type TransitionOption func(*TransitionService)

// WithTransitionMetrics sets the metrics sink
func WithTransitionMetrics(m Metrics) TransitionOption {
	return func(s *TransitionService) {
		s.metrics = metricsOrNop(m)
	}
}

// WithTransitionLogger sets the logger
func WithTransitionLogger(l *zap.Logger) TransitionOption {
	return func(s *TransitionService) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewTransitionService creates a new TransitionService
func NewTransitionService(store fulfillment.Store, publisher shared.EventPublisher, opts ...TransitionOption) *TransitionService {
	s := &TransitionService{
		store:     store,
		publisher: publisher,
		metrics:   nopMetrics{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateItem registers a new item in inbound
func (s *TransitionService) CreateItem(ctx context.Context, req CreateItemRequest) (*fulfillment.Item, error) {
	item, err := fulfillment.NewItem(req.SKU, req.SellerID, req.Category, req.Price)
	if err != nil {
		return nil, err
	}
	if req.LocationID != "" {
		item.AssignLocation(req.LocationID)
	}
	if err := s.store.Items().Create(ctx, item); err != nil {
		return nil, err
	}
	logger.WithLogger(ctx, s.logger).Info("Item registered",
		zap.String("item_id", item.ID.String()),
		zap.String("sku", item.SKU))
	return item, nil
}

// Transition moves an item to req.Target. The item, its order changes and
// the raised events are committed together; events are published only after
// the commit.
func (s *TransitionService) Transition(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "fulfillment.transition",
		attribute.String(telemetry.SpanAttrItemID, req.ItemID.String()),
		attribute.String("to_status", req.Target.String()),
	)
	defer span.End()

	result := &TransitionResult{}
	err := s.store.Transaction(ctx, func(tx fulfillment.Store) error {
		return s.apply(ctx, tx, req, result)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.metrics.RecordTransition(ctx, result.From.String(), req.Target.String(), outcomeOf(err))
		logger.WithLogger(ctx, s.logger).Info("Transition rejected",
			zap.String("item_id", req.ItemID.String()),
			zap.String("target", req.Target.String()),
			zap.Error(err))
		return nil, err
	}
	s.metrics.RecordTransition(ctx, result.From.String(), req.Target.String(), "ok")

	logger.WithLogger(ctx, s.logger).Info("Item transitioned",
		zap.String("item_id", result.Item.ID.String()),
		zap.String("from", result.From.String()),
		zap.String("to", result.Item.Status.String()),
		zap.String("actor", req.Actor))

	if s.publisher != nil && len(result.Events) > 0 {
		events := make([]shared.DomainEvent, len(result.Events))
		for i, e := range result.Events {
			events[i] = e
		}
		// the transition is committed; a handler failure does not undo it
		if err := s.publisher.Publish(ctx, events...); err != nil {
			logger.WithLogger(ctx, s.logger).Error("Failed to publish transition events", zap.Error(err))
		}
	}
	return result, nil
}

func (s *TransitionService) apply(ctx context.Context, tx fulfillment.Store, req TransitionRequest, result *TransitionResult) error {
	item, err := tx.Items().FindByID(ctx, req.ItemID)
	if err != nil {
		return err
	}
	result.From = item.Status

	in := fulfillment.TransitionInput{
		Target:   req.Target,
		Actor:    req.Actor,
		BuyerRef: strings.TrimSpace(req.BuyerRef),
	}

	var order *fulfillment.Order
	switch {
	case item.Status == fulfillment.ItemStatusListing && req.Target == fulfillment.ItemStatusSold:
		if err := item.CheckTransition(in); err != nil {
			return err
		}
		order, err = s.openOrder(ctx, tx, in.BuyerRef, req.ShippingAddress)
		if err != nil {
			return err
		}
		in.Order = order
	case item.Status.WithdrawsSale(req.Target) && item.OrderID != nil:
		order, err = tx.Orders().FindByID(ctx, *item.OrderID)
		if err != nil {
			return err
		}
		if item.Status.IsRevert(req.Target) {
			in.OrderHasLabel, err = orderHasLabel(ctx, tx, order)
			if err != nil {
				return err
			}
		}
	}

	if err := item.ApplyTransition(in); err != nil {
		return err
	}
	if err := tx.Items().SaveWithLock(ctx, item); err != nil {
		return err
	}

	if result.From.WithdrawsSale(req.Target) && order != nil {
		if err := cancelIfEmpty(ctx, tx, order); err != nil {
			return err
		}
	} else if order == nil && item.OrderID != nil {
		order, err = tx.Orders().FindByID(ctx, *item.OrderID)
		if err != nil {
			return err
		}
	}

	result.Item = item
	result.Order = order
	for _, e := range item.PullDomainEvents() {
		if fe, ok := e.(fulfillment.Event); ok {
			result.Events = append(result.Events, fe)
		}
	}
	return nil
}

// openOrder creates the single-item pending order a sale is attached to
func (s *TransitionService) openOrder(ctx context.Context, tx fulfillment.Store, buyerRef string, addr fulfillment.Address) (*fulfillment.Order, error) {
	if !addr.IsEmpty() {
		if err := addr.Validate(); err != nil {
			return nil, err
		}
	}
	number, err := tx.Orders().GenerateOrderNumber(ctx)
	if err != nil {
		return nil, err
	}
	order, err := fulfillment.NewOrder(number, buyerRef, addr)
	if err != nil {
		return nil, err
	}
	if err := tx.Orders().Create(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// cancelIfEmpty cancels a pending order whose last item left its sale
func cancelIfEmpty(ctx context.Context, tx fulfillment.Store, order *fulfillment.Order) error {
	if !order.IsPending() {
		return nil
	}
	remaining, err := tx.Items().FindByOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	if len(remaining) > 0 {
		return nil
	}
	if err := order.Cancel(); err != nil {
		return err
	}
	return tx.Orders().SaveWithLock(ctx, order)
}

// orderHasLabel checks both the order's tracking number and the artifact table
func orderHasLabel(ctx context.Context, store fulfillment.Store, order *fulfillment.Order) (bool, error) {
	if order.HasLabel() {
		return true, nil
	}
	_, err := store.Labels().FindByOrder(ctx, order.ID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, shared.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// outcomeOf names an error for metrics
func outcomeOf(err error) string {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return strings.ToLower(domainErr.Code)
	}
	return "error"
}
