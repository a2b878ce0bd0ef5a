package fulfillment

import (
	"time"

	"github.com/fulfillment/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// NotificationType identifies what a notification asks staff to do
type NotificationType string

const (
	NotificationOrderReadyForLabel NotificationType = "order_ready_for_label"
	NotificationPickingRequest     NotificationType = "picking_request"
)

// Priority of a notification
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Role is a recipient role for broadcast notifications
type Role string

const (
	RoleStaff Role = "staff"
)

// IsValid checks the role is known
func (r Role) IsValid() bool {
	return r == RoleStaff
}

// NotificationMetadata is the structured payload attached to a notification
type NotificationMetadata struct {
	ItemIDs        []uuid.UUID       `json:"item_ids"`
	OrderID        uuid.UUID         `json:"order_id"`
	OrderNumber    string            `json:"order_number"`
	TrackingNumber string            `json:"tracking_number,omitempty"`
	Locations      []string          `json:"locations,omitempty"`
	Shipment       *ShipmentMetadata `json:"shipment,omitempty"`
}

// Notification is a persisted staff notification
type Notification struct {
	shared.BaseEntity
	RecipientRole Role                 `gorm:"type:varchar(32);not null;uniqueIndex:idx_notifications_dedup,priority:2;index:idx_notifications_role_created,priority:1" json:"recipient_role"`
	Type          NotificationType     `gorm:"type:varchar(40);not null" json:"type"`
	Title         string               `gorm:"type:varchar(200);not null" json:"title"`
	Message       string               `gorm:"type:varchar(1000);not null" json:"message"`
	Priority      Priority             `gorm:"type:varchar(10);not null" json:"priority"`
	Read          bool                 `gorm:"not null;default:false" json:"read"`
	ReadAt        *time.Time           `json:"read_at,omitempty"`
	Metadata      NotificationMetadata `gorm:"type:text;serializer:json" json:"metadata"`
	DedupKey      string               `gorm:"type:varchar(100);not null;uniqueIndex:idx_notifications_dedup,priority:1" json:"dedup_key"`
}

// TableName returns the table name for GORM
func (Notification) TableName() string {
	return "notifications"
}

// DedupKey is the idempotency key of a notification for one event kind and order
func DedupKey(eventType string, orderID uuid.UUID) string {
	return eventType + ":" + orderID.String()
}

// NewNotification creates an unread notification
func NewNotification(role Role, typ NotificationType, priority Priority, title, message, dedupKey string, meta NotificationMetadata) *Notification {
	return &Notification{
		BaseEntity:    shared.NewBaseEntity(),
		RecipientRole: role,
		Type:          typ,
		Title:         title,
		Message:       message,
		Priority:      priority,
		Metadata:      meta,
		DedupKey:      dedupKey,
	}
}

// MarkRead acknowledges the notification. Repeated calls keep the first time.
func (n *Notification) MarkRead() {
	if n.Read {
		return
	}
	now := time.Now().UTC()
	n.Read = true
	n.ReadAt = &now
	n.UpdatedAt = now
}
