package fulfillment

import (
	"time"

	"github.com/google/uuid"
)

// ActivityKind classifies audit entries
type ActivityKind string

const (
	ActivityStatusChanged      ActivityKind = "status_changed"
	ActivityLabelRequested     ActivityKind = "label_requested"
	ActivityLabelReady         ActivityKind = "label_ready"
	ActivityLabelNotSaved      ActivityKind = "label_not_saved"
	ActivityNotificationSent   ActivityKind = "notification_dispatched"
	ActivityBundleConsolidated ActivityKind = "bundle_consolidated"
)

// ActivityEntry is an append-only audit record
type ActivityEntry struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Kind      ActivityKind   `gorm:"type:varchar(40);not null;index" json:"kind"`
	Actor     string         `gorm:"type:varchar(100)" json:"actor"`
	ItemIDs   []uuid.UUID    `gorm:"type:text;serializer:json" json:"item_ids"`
	OrderID   *uuid.UUID     `gorm:"type:uuid;index" json:"order_id,omitempty"`
	Summary   string         `gorm:"type:varchar(500);not null" json:"summary"`
	Details   map[string]any `gorm:"type:text;serializer:json" json:"details,omitempty"`
	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
}

// TableName returns the table name for GORM
func (ActivityEntry) TableName() string {
	return "activity_entries"
}

// NewActivityEntry creates an entry stamped now
func NewActivityEntry(kind ActivityKind, actor string, itemIDs []uuid.UUID, orderID uuid.UUID, summary string) *ActivityEntry {
	entry := &ActivityEntry{
		ID:        uuid.New(),
		Kind:      kind,
		Actor:     actor,
		ItemIDs:   itemIDs,
		Summary:   summary,
		CreatedAt: time.Now().UTC(),
	}
	if orderID != uuid.Nil {
		entry.OrderID = &orderID
	}
	return entry
}

// With adds a detail field and returns the entry
func (e *ActivityEntry) With(key string, value any) *ActivityEntry {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// ActivityFromEvent builds the audit entry for a fulfillment event
func ActivityFromEvent(event Event) *ActivityEntry {
	entry := NewActivityEntry(ActivityKind(event.EventType()), event.Initiator(), event.AffectedItems(), event.AffectedOrder(), event.Summary())
	entry.With("event_id", event.EventID().String())
	switch e := event.(type) {
	case *StatusChangedEvent:
		entry.With("from_status", string(e.FromStatus)).With("to_status", string(e.ToStatus))
	case *LabelReadyEvent:
		entry.With("tracking_number", e.TrackingNumber).With("carrier", string(e.Carrier)).With("is_mock", e.IsMock)
		entry.With("shipment_kind", string(e.Metadata.Kind))
	}
	return entry
}
