package fulfillment

import (
	"fmt"
	"strings"

	"github.com/fulfillment/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// AggregateTypeOrder is the aggregate type name used in events
const AggregateTypeOrder = "Order"

// OrderStatus represents the shipping status of an order
type OrderStatus string

const (
	OrderStatusPending     OrderStatus = "pending"
	OrderStatusLabelIssued OrderStatus = "label_issued"
	OrderStatusMerged      OrderStatus = "merged"
	OrderStatusCancelled   OrderStatus = "cancelled"
)

// IsValid checks if the status is a valid OrderStatus
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusLabelIssued, OrderStatusMerged, OrderStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of OrderStatus
func (s OrderStatus) String() string {
	return string(s)
}

// Order groups one or more sold items that ship together under one label
type Order struct {
	shared.BaseAggregateRoot
	OrderNumber     string       `gorm:"type:varchar(32);not null;uniqueIndex" json:"order_number"`
	Status          OrderStatus  `gorm:"type:varchar(20);not null;index" json:"status"`
	BuyerRef        string       `gorm:"type:varchar(64);not null;index" json:"buyer_ref"`
	Carrier         CarrierCode  `gorm:"type:varchar(20)" json:"carrier,omitempty"`
	ServiceLevel    ServiceLevel `gorm:"type:varchar(20)" json:"service_level,omitempty"`
	TrackingNumber  *string      `gorm:"type:varchar(64);index" json:"tracking_number,omitempty"`
	ShippingAddress Address      `gorm:"embedded;embeddedPrefix:ship_" json:"shipping_address"`
	BundleKey       *string      `gorm:"type:varchar(64);uniqueIndex" json:"bundle_key,omitempty"`
	MergedInto      *uuid.UUID   `gorm:"type:uuid" json:"merged_into,omitempty"`
}

// TableName returns the table name for GORM
func (Order) TableName() string {
	return "orders"
}

// NewOrder creates a pending order for a buyer
func NewOrder(orderNumber, buyerRef string, address Address) (*Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	buyerRef = strings.TrimSpace(buyerRef)
	if orderNumber == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Order number cannot be empty")
	}
	if buyerRef == "" {
		return nil, shared.NewPreconditionError("Buyer reference is required to open an order")
	}

	return &Order{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		OrderNumber:       orderNumber,
		Status:            OrderStatusPending,
		BuyerRef:          buyerRef,
		ShippingAddress:   address,
	}, nil
}

// HasLabel reports whether a tracking number was issued
func (o *Order) HasLabel() bool {
	return o.TrackingNumber != nil && *o.TrackingNumber != ""
}

// IsPending reports whether the order can still receive items
func (o *Order) IsPending() bool {
	return o.Status == OrderStatusPending && !o.HasLabel()
}

// IsBundle reports whether the order is a consolidated bundle
func (o *Order) IsBundle() bool {
	return o.BundleKey != nil && *o.BundleKey != ""
}

// Tracking returns the tracking number or an empty string
func (o *Order) Tracking() string {
	if o.TrackingNumber == nil {
		return ""
	}
	return *o.TrackingNumber
}

// MarkBundle tags a pending order as the target of a consolidation
func (o *Order) MarkBundle(bundleKey string) error {
	if !o.IsPending() {
		return shared.NewConflictError(fmt.Sprintf("Order %s is %s and cannot become a bundle", o.OrderNumber, o.Status))
	}
	if o.IsBundle() && *o.BundleKey != bundleKey {
		return shared.NewConflictError(fmt.Sprintf("Order %s already belongs to another bundle", o.OrderNumber))
	}
	o.BundleKey = &bundleKey
	o.Touch()
	return nil
}

// MergeInto marks an emptied single-item order as absorbed by a bundle
func (o *Order) MergeInto(target uuid.UUID) error {
	if !o.IsPending() {
		return shared.NewConflictError(fmt.Sprintf("Order %s is %s and cannot be merged", o.OrderNumber, o.Status))
	}
	o.Status = OrderStatusMerged
	o.MergedInto = &target
	o.Touch()
	return nil
}

// Cancel closes a pending order that no longer has items
func (o *Order) Cancel() error {
	if !o.IsPending() {
		return shared.NewConflictError(fmt.Sprintf("Order %s is %s and cannot be cancelled", o.OrderNumber, o.Status))
	}
	o.Status = OrderStatusCancelled
	o.Touch()
	return nil
}

// AttachLabel records the artifact's tracking number on the order
func (o *Order) AttachLabel(artifact *LabelArtifact) error {
	if artifact == nil || artifact.TrackingNumber == "" {
		return shared.NewDomainError(shared.CodeInvalidInput, "Label artifact must carry a tracking number")
	}
	if o.HasLabel() {
		return shared.NewConflictError(fmt.Sprintf("Order %s already has tracking number %s", o.OrderNumber, o.Tracking()))
	}
	if o.Status != OrderStatusPending {
		return shared.NewConflictError(fmt.Sprintf("Order %s is %s and cannot receive a label", o.OrderNumber, o.Status))
	}

	tracking := artifact.TrackingNumber
	o.TrackingNumber = &tracking
	o.Carrier = artifact.Carrier
	o.ServiceLevel = artifact.ServiceLevel
	o.Status = OrderStatusLabelIssued
	o.Touch()
	return nil
}
