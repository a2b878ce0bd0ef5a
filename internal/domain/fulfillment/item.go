package fulfillment

import (
	"fmt"
	"strings"

	"github.com/fulfillment/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AggregateTypeItem is the aggregate type name used in events
const AggregateTypeItem = "Item"

// ItemStatus represents where an item is in the warehouse lifecycle
type ItemStatus string

const (
	ItemStatusInbound     ItemStatus = "inbound"
	ItemStatusInspection  ItemStatus = "inspection"
	ItemStatusStorage     ItemStatus = "storage"
	ItemStatusListing     ItemStatus = "listing"
	ItemStatusSold        ItemStatus = "sold"
	ItemStatusOrdered     ItemStatus = "ordered"
	ItemStatusShipped     ItemStatus = "shipped"
	ItemStatusDelivered   ItemStatus = "delivered"
	ItemStatusReturned    ItemStatus = "returned"
	ItemStatusMaintenance ItemStatus = "maintenance"
)

// AllItemStatuses lists every status in lifecycle order
var AllItemStatuses = []ItemStatus{
	ItemStatusInbound,
	ItemStatusInspection,
	ItemStatusStorage,
	ItemStatusListing,
	ItemStatusSold,
	ItemStatusOrdered,
	ItemStatusShipped,
	ItemStatusDelivered,
	ItemStatusReturned,
	ItemStatusMaintenance,
}

// itemTransitions is the forward adjacency of the lifecycle.
// maintenance is handled separately: it is reachable from every other state.
var itemTransitions = map[ItemStatus][]ItemStatus{
	ItemStatusInbound:     {ItemStatusInspection},
	ItemStatusInspection:  {ItemStatusStorage},
	ItemStatusStorage:     {ItemStatusListing},
	ItemStatusListing:     {ItemStatusSold},
	ItemStatusSold:        {ItemStatusOrdered, ItemStatusReturned, ItemStatusListing},
	ItemStatusOrdered:     {ItemStatusShipped},
	ItemStatusShipped:     {ItemStatusDelivered},
	ItemStatusDelivered:   {ItemStatusReturned},
	ItemStatusReturned:    {},
	ItemStatusMaintenance: {ItemStatusStorage},
}

// IsValid checks if the status is a known ItemStatus
func (s ItemStatus) IsValid() bool {
	_, ok := itemTransitions[s]
	return ok
}

// String returns the string representation of ItemStatus
func (s ItemStatus) String() string {
	return string(s)
}

// CanTransitionTo reports whether target is adjacent to s
func (s ItemStatus) CanTransitionTo(target ItemStatus) bool {
	if !s.IsValid() || !target.IsValid() || s == target {
		return false
	}
	if target == ItemStatusMaintenance {
		return true
	}
	for _, next := range itemTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// IsRevert reports whether s -> target is the sold -> listing regression
func (s ItemStatus) IsRevert(target ItemStatus) bool {
	return s == ItemStatusSold && target == ItemStatusListing
}

// WithdrawsSale reports whether s -> target takes a sold item out of its sale.
// Every exit from sold except the hand-off to ordered does.
func (s ItemStatus) WithdrawsSale(target ItemStatus) bool {
	return s == ItemStatusSold && target != ItemStatusSold && target != ItemStatusOrdered
}

// ShipsWithOrder reports whether an item in status s still belongs on its
// order's shipment.
func (s ItemStatus) ShipsWithOrder() bool {
	return s == ItemStatusSold || s == ItemStatusOrdered
}

// ParseItemStatus parses a status string, case-insensitively
func ParseItemStatus(raw string) (ItemStatus, error) {
	s := ItemStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", shared.NewDomainError(shared.CodeInvalidTransition, fmt.Sprintf("Unknown item status %q", raw))
	}
	return s, nil
}

// Item is one physical unit of inventory tracked through the warehouse
type Item struct {
	shared.BaseAggregateRoot
	SKU        string          `gorm:"type:varchar(64);not null;index" json:"sku"`
	Status     ItemStatus      `gorm:"type:varchar(20);not null;index" json:"status"`
	SellerID   string          `gorm:"type:varchar(64);not null;index" json:"seller_id"`
	BuyerRef   *string         `gorm:"type:varchar(64);index" json:"buyer_ref,omitempty"`
	LocationID *string         `gorm:"type:varchar(64)" json:"location_id,omitempty"`
	OrderID    *uuid.UUID      `gorm:"type:uuid;index" json:"order_id,omitempty"`
	Price      decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"price"`
	Category   string          `gorm:"type:varchar(32);not null;default:''" json:"category"`
}

// TableName returns the table name for GORM
func (Item) TableName() string {
	return "items"
}

// NewItem creates an item at intake. New items start in inbound.
func NewItem(sku, sellerID, category string, price decimal.Decimal) (*Item, error) {
	sku = strings.TrimSpace(sku)
	sellerID = strings.TrimSpace(sellerID)
	if sku == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "SKU cannot be empty")
	}
	if sellerID == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Seller ID cannot be empty")
	}
	if price.IsNegative() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Price cannot be negative")
	}

	return &Item{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		SKU:               sku,
		Status:            ItemStatusInbound,
		SellerID:          sellerID,
		Price:             price,
		Category:          strings.ToLower(strings.TrimSpace(category)),
	}, nil
}

// Buyer returns the buyer reference or an empty string
func (i *Item) Buyer() string {
	if i.BuyerRef == nil {
		return ""
	}
	return *i.BuyerRef
}

// Location returns the pick location or an empty string
func (i *Item) Location() string {
	if i.LocationID == nil {
		return ""
	}
	return *i.LocationID
}

// AssignLocation records where the item is shelved
func (i *Item) AssignLocation(locationID string) {
	locationID = strings.TrimSpace(locationID)
	if locationID == "" {
		i.LocationID = nil
	} else {
		i.LocationID = &locationID
	}
	i.Touch()
}

// TransitionInput carries everything a status change may need
type TransitionInput struct {
	Target   ItemStatus
	Actor    string
	BuyerRef string
	// Order is the order a sold item is attached to. Required for listing -> sold.
	Order *Order
	// OrderHasLabel reports whether the owning order already has a label artifact
	OrderHasLabel bool
}

// CheckTransition validates a transition without mutating the item
func (i *Item) CheckTransition(in TransitionInput) error {
	if !in.Target.IsValid() {
		return shared.NewDomainError(shared.CodeInvalidTransition, fmt.Sprintf("Unknown item status %q", in.Target))
	}
	if !i.Status.CanTransitionTo(in.Target) {
		return shared.NewInvalidTransitionError(i.Status.String(), in.Target.String())
	}

	switch {
	case i.Status == ItemStatusListing && in.Target == ItemStatusSold:
		if strings.TrimSpace(in.BuyerRef) == "" {
			return shared.NewPreconditionError("Buyer reference is required to mark an item as sold")
		}
	case i.Status.IsRevert(in.Target):
		if in.OrderHasLabel {
			return shared.NewConflictError("Cannot revert a sold item after its shipping label was issued")
		}
	}
	return nil
}

// ApplyTransition moves the item to in.Target and raises the resulting events
func (i *Item) ApplyTransition(in TransitionInput) error {
	if err := i.CheckTransition(in); err != nil {
		return err
	}

	from := i.Status
	var orderID uuid.UUID
	if i.OrderID != nil {
		orderID = *i.OrderID
	}

	switch {
	case from == ItemStatusListing && in.Target == ItemStatusSold:
		if in.Order == nil {
			return shared.NewPreconditionError("A pending order is required to mark an item as sold")
		}
		buyer := strings.TrimSpace(in.BuyerRef)
		i.BuyerRef = &buyer
		orderID = in.Order.ID
		i.OrderID = &orderID
	case from.WithdrawsSale(in.Target):
		i.BuyerRef = nil
		i.OrderID = nil
	}

	i.Status = in.Target
	i.Touch()

	i.AddDomainEvent(NewStatusChangedEvent(i, from, in.Target, orderID, in.Actor))
	if from == ItemStatusListing && in.Target == ItemStatusSold {
		i.AddDomainEvent(NewLabelRequestedEvent(i, orderID, in.Actor))
	}
	return nil
}

// AttachToOrder reassigns a sold item to another order during consolidation
func (i *Item) AttachToOrder(orderID uuid.UUID) error {
	if i.Status != ItemStatusSold {
		return shared.NewPreconditionError(fmt.Sprintf("Item %s is %s, only sold items can be bundled", i.ID, i.Status))
	}
	i.OrderID = &orderID
	i.Touch()
	return nil
}
