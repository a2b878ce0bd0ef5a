package fulfillment

import (
	"fmt"

	"github.com/fulfillment/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Event type constants
const (
	EventTypeStatusChanged  = "status_changed"
	EventTypeLabelRequested = "label_requested"
	EventTypeLabelReady     = "label_ready"
)

// Event is a fulfillment domain event. Every event names the items and the
// order it concerns so the activity trail can record it uniformly.
type Event interface {
	shared.DomainEvent
	AffectedItems() []uuid.UUID
	AffectedOrder() uuid.UUID
	Initiator() string
	Summary() string
}

// StatusChangedEvent is raised by every successful item transition
type StatusChangedEvent struct {
	shared.BaseDomainEvent
	ItemID     uuid.UUID  `json:"item_id"`
	SKU        string     `json:"sku"`
	OrderID    uuid.UUID  `json:"order_id"`
	FromStatus ItemStatus `json:"from_status"`
	ToStatus   ItemStatus `json:"to_status"`
	BuyerRef   string     `json:"buyer_ref,omitempty"`
	Actor      string     `json:"actor"`
}

// NewStatusChangedEvent creates a status_changed event for item
func NewStatusChangedEvent(item *Item, from, to ItemStatus, orderID uuid.UUID, actor string) *StatusChangedEvent {
	return &StatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStatusChanged, AggregateTypeItem, item.ID),
		ItemID:          item.ID,
		SKU:             item.SKU,
		OrderID:         orderID,
		FromStatus:      from,
		ToStatus:        to,
		BuyerRef:        item.Buyer(),
		Actor:           actor,
	}
}

// IsSale reports whether the event is the listing -> sold transition
func (e *StatusChangedEvent) IsSale() bool {
	return e.FromStatus == ItemStatusListing && e.ToStatus == ItemStatusSold
}

// IsRevert reports whether the event is the sold -> listing regression
func (e *StatusChangedEvent) IsRevert() bool {
	return e.FromStatus.IsRevert(e.ToStatus)
}

func (e *StatusChangedEvent) AffectedItems() []uuid.UUID { return []uuid.UUID{e.ItemID} }
func (e *StatusChangedEvent) AffectedOrder() uuid.UUID   { return e.OrderID }
func (e *StatusChangedEvent) Initiator() string          { return e.Actor }

func (e *StatusChangedEvent) Summary() string {
	return fmt.Sprintf("Item %s moved from %s to %s", e.SKU, e.FromStatus, e.ToStatus)
}

// LabelRequestedEvent is raised by listing -> sold. It is the only trigger of
// consolidation and label generation.
type LabelRequestedEvent struct {
	shared.BaseDomainEvent
	ItemID   uuid.UUID `json:"item_id"`
	OrderID  uuid.UUID `json:"order_id"`
	BuyerRef string    `json:"buyer_ref"`
	Actor    string    `json:"actor"`
}

// NewLabelRequestedEvent creates a label_requested event for item
func NewLabelRequestedEvent(item *Item, orderID uuid.UUID, actor string) *LabelRequestedEvent {
	return &LabelRequestedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeLabelRequested, AggregateTypeItem, item.ID),
		ItemID:          item.ID,
		OrderID:         orderID,
		BuyerRef:        item.Buyer(),
		Actor:           actor,
	}
}

func (e *LabelRequestedEvent) AffectedItems() []uuid.UUID { return []uuid.UUID{e.ItemID} }
func (e *LabelRequestedEvent) AffectedOrder() uuid.UUID   { return e.OrderID }
func (e *LabelRequestedEvent) Initiator() string          { return e.Actor }

func (e *LabelRequestedEvent) Summary() string {
	return fmt.Sprintf("Label requested for buyer %s", e.BuyerRef)
}

// LabelReadyEvent is raised after a label artifact has been persisted
type LabelReadyEvent struct {
	shared.BaseDomainEvent
	OrderID        uuid.UUID        `json:"order_id"`
	OrderNumber    string           `json:"order_number"`
	ItemIDs        []uuid.UUID      `json:"item_ids"`
	TrackingNumber string           `json:"tracking_number"`
	Carrier        CarrierCode      `json:"carrier"`
	IsMock         bool             `json:"is_mock"`
	Metadata       ShipmentMetadata `json:"metadata"`
	Actor          string           `json:"actor"`
}

// NewLabelReadyEvent creates a label_ready event for order
func NewLabelReadyEvent(order *Order, artifact *LabelArtifact, meta ShipmentMetadata, actor string) *LabelReadyEvent {
	return &LabelReadyEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeLabelReady, AggregateTypeOrder, order.ID),
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		ItemIDs:         meta.ItemIDs(),
		TrackingNumber:  artifact.TrackingNumber,
		Carrier:         artifact.Carrier,
		IsMock:          artifact.IsMock,
		Metadata:        meta,
		Actor:           actor,
	}
}

func (e *LabelReadyEvent) AffectedItems() []uuid.UUID { return e.ItemIDs }
func (e *LabelReadyEvent) AffectedOrder() uuid.UUID   { return e.OrderID }
func (e *LabelReadyEvent) Initiator() string          { return e.Actor }

func (e *LabelReadyEvent) Summary() string {
	source := string(e.Carrier)
	if e.IsMock {
		source = "mock"
	}
	return fmt.Sprintf("Label %s issued for order %s via %s", e.TrackingNumber, e.OrderNumber, source)
}
