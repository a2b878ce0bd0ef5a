package handler

import (
	"time"

	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"github.com/shopspring/decimal"
)

// AddressRequest is a shipping address in a request body
type AddressRequest struct {
	Name       string `json:"name" binding:"max=100"`
	Phone      string `json:"phone" binding:"max=32"`
	Line1      string `json:"line1" binding:"required,max=200"`
	Line2      string `json:"line2" binding:"max=200"`
	City       string `json:"city" binding:"required,max=100"`
	State      string `json:"state" binding:"max=100"`
	PostalCode string `json:"postalCode" binding:"required,max=20"`
	Country    string `json:"country" binding:"required,len=2"`
}

func (r *AddressRequest) toDomain() fulfillment.Address {
	if r == nil {
		return fulfillment.Address{}
	}
	return fulfillment.Address{
		Name:       r.Name,
		Phone:      r.Phone,
		Line1:      r.Line1,
		Line2:      r.Line2,
		City:       r.City,
		State:      r.State,
		PostalCode: r.PostalCode,
		Country:    r.Country,
	}
}

// TransitionItemRequest moves an item to a new status
type TransitionItemRequest struct {
	TargetStatus    string          `json:"targetStatus" binding:"required,itemstatus"`
	Actor           string          `json:"actor" binding:"max=64"`
	BuyerRef        string          `json:"buyerRef" binding:"max=64"`
	ShippingAddress *AddressRequest `json:"shippingAddress"`
	BundleMembers   []string        `json:"bundleMembers" binding:"omitempty,dive,uuid"`
}

// CreateItemRequest registers an item at intake
type CreateItemRequest struct {
	SKU        string          `json:"sku" binding:"required,max=64"`
	SellerID   string          `json:"sellerId" binding:"required,max=64"`
	Category   string          `json:"category" binding:"max=32"`
	Price      decimal.Decimal `json:"price"`
	LocationID string          `json:"locationId" binding:"max=64"`
}

// BuildLabelRequest asks for a shipping label; empty fields select the defaults
type BuildLabelRequest struct {
	Carrier string `json:"carrier" binding:"omitempty,oneof=fedex mock"`
	Service string `json:"service" binding:"omitempty,oneof=standard express priority"`
	Actor   string `json:"actor" binding:"max=64"`
}

// ListNotificationsRequest holds the notification list query
type ListNotificationsRequest struct {
	Role       string     `form:"role" binding:"omitempty,oneof=staff"`
	Since      *time.Time `form:"since" time_format:"2006-01-02T15:04:05.999999999Z07:00"`
	UnreadOnly bool       `form:"unread"`
	Limit      *int       `form:"limit" binding:"omitempty,min=1,max=200"`
}

// ItemResponse represents an item in API responses
type ItemResponse struct {
	ID         string          `json:"id"`
	SKU        string          `json:"sku"`
	Status     string          `json:"status"`
	SellerID   string          `json:"seller_id"`
	BuyerRef   string          `json:"buyer_ref,omitempty"`
	LocationID string          `json:"location_id,omitempty"`
	OrderID    string          `json:"order_id,omitempty"`
	Category   string          `json:"category"`
	Price      decimal.Decimal `json:"price"`
	Version    int             `json:"version"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// OrderResponse represents an order in API responses
type OrderResponse struct {
	ID              string              `json:"id"`
	OrderNumber     string              `json:"order_number"`
	Status          string              `json:"status"`
	BuyerRef        string              `json:"buyer_ref"`
	Carrier         string              `json:"carrier,omitempty"`
	ServiceLevel    string              `json:"service_level,omitempty"`
	TrackingNumber  string              `json:"tracking_number,omitempty"`
	ShippingAddress fulfillment.Address `json:"shipping_address"`
	IsBundle        bool                `json:"is_bundle"`
	MergedInto      string              `json:"merged_into,omitempty"`
	Version         int                 `json:"version"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// LabelArtifactResponse represents a shipping label in API responses
type LabelArtifactResponse struct {
	ID                string          `json:"id"`
	OrderID           string          `json:"order_id"`
	TrackingNumber    string          `json:"tracking_number"`
	Carrier           string          `json:"carrier"`
	ServiceLevel      string          `json:"service_level"`
	Cost              decimal.Decimal `json:"cost"`
	Currency          string          `json:"currency"`
	EstimatedDelivery time.Time       `json:"estimated_delivery"`
	IsMock            bool            `json:"is_mock"`
	FallbackReason    string          `json:"fallback_reason,omitempty"`
	Stored            bool            `json:"stored"`
	CreatedAt         time.Time       `json:"created_at"`
}

// TransitionResponse is the result of an item transition
type TransitionResponse struct {
	Item          ItemResponse           `json:"item"`
	Order         *OrderResponse         `json:"order,omitempty"`
	LabelArtifact *LabelArtifactResponse `json:"labelArtifact,omitempty"`
	Warning       string                 `json:"warning,omitempty"`
}

// LabelResponse is the result of a label request
type LabelResponse struct {
	LabelArtifact LabelArtifactResponse `json:"labelArtifact"`
	Order         *OrderResponse        `json:"order,omitempty"`
	Warning       string                `json:"warning,omitempty"`
}

// OrderDetailResponse is an order with its items and label
type OrderDetailResponse struct {
	Order         OrderResponse          `json:"order"`
	Items         []ItemResponse         `json:"items"`
	LabelArtifact *LabelArtifactResponse `json:"labelArtifact,omitempty"`
}

// NotificationResponse represents a notification in API responses
type NotificationResponse struct {
	ID            string                           `json:"id"`
	RecipientRole string                           `json:"recipient_role"`
	Type          string                           `json:"type"`
	Title         string                           `json:"title"`
	Message       string                           `json:"message"`
	Priority      string                           `json:"priority"`
	Read          bool                             `json:"read"`
	ReadAt        *time.Time                       `json:"read_at,omitempty"`
	Metadata      fulfillment.NotificationMetadata `json:"metadata"`
	CreatedAt     time.Time                        `json:"created_at"`
}

func toItemResponse(item *fulfillment.Item) ItemResponse {
	resp := ItemResponse{
		ID:         item.ID.String(),
		SKU:        item.SKU,
		Status:     string(item.Status),
		SellerID:   item.SellerID,
		BuyerRef:   item.Buyer(),
		LocationID: item.Location(),
		Category:   item.Category,
		Price:      item.Price,
		Version:    item.Version,
		CreatedAt:  item.CreatedAt,
		UpdatedAt:  item.UpdatedAt,
	}
	if item.OrderID != nil {
		resp.OrderID = item.OrderID.String()
	}
	return resp
}

func toItemResponses(items []fulfillment.Item) []ItemResponse {
	out := make([]ItemResponse, len(items))
	for i := range items {
		out[i] = toItemResponse(&items[i])
	}
	return out
}

func toOrderResponse(order *fulfillment.Order) *OrderResponse {
	if order == nil {
		return nil
	}
	resp := &OrderResponse{
		ID:              order.ID.String(),
		OrderNumber:     order.OrderNumber,
		Status:          string(order.Status),
		BuyerRef:        order.BuyerRef,
		Carrier:         string(order.Carrier),
		ServiceLevel:    string(order.ServiceLevel),
		TrackingNumber:  order.Tracking(),
		ShippingAddress: order.ShippingAddress,
		IsBundle:        order.IsBundle(),
		Version:         order.Version,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
	if order.MergedInto != nil {
		resp.MergedInto = order.MergedInto.String()
	}
	return resp
}

func toLabelArtifactResponse(a *fulfillment.LabelArtifact, stored bool) *LabelArtifactResponse {
	if a == nil {
		return nil
	}
	return &LabelArtifactResponse{
		ID:                a.ID.String(),
		OrderID:           a.OrderID.String(),
		TrackingNumber:    a.TrackingNumber,
		Carrier:           string(a.Carrier),
		ServiceLevel:      string(a.ServiceLevel),
		Cost:              a.Cost,
		Currency:          a.Currency,
		EstimatedDelivery: a.EstimatedDelivery,
		IsMock:            a.IsMock,
		FallbackReason:    a.FallbackReason,
		Stored:            stored,
		CreatedAt:         a.CreatedAt,
	}
}

func toNotificationResponse(n *fulfillment.Notification) NotificationResponse {
	return NotificationResponse{
		ID:            n.ID.String(),
		RecipientRole: string(n.RecipientRole),
		Type:          string(n.Type),
		Title:         n.Title,
		Message:       n.Message,
		Priority:      string(n.Priority),
		Read:          n.Read,
		ReadAt:        n.ReadAt,
		Metadata:      n.Metadata,
		CreatedAt:     n.CreatedAt,
	}
}

func toNotificationResponses(list []fulfillment.Notification) []NotificationResponse {
	out := make([]NotificationResponse, len(list))
	for i := range list {
		out[i] = toNotificationResponse(&list[i])
	}
	return out
}
