package fulfillment

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ShipmentKind discriminates ShipmentMetadata
type ShipmentKind string

const (
	ShipmentKindSingle ShipmentKind = "single"
	ShipmentKindBundle ShipmentKind = "bundle"
)

// SingleShipment is a one-item shipment
type SingleShipment struct {
	ItemID uuid.UUID `json:"item_id"`
}

// BundleShipment is a consolidated shipment of several items
type BundleShipment struct {
	ItemIDs  []uuid.UUID `json:"item_ids"`
	BundleID string      `json:"bundle_id"`
}

// ShipmentMetadata is either a Single or a Bundle shipment. Exactly one
// payload is set and Kind names it.
type ShipmentMetadata struct {
	Kind   ShipmentKind    `json:"kind"`
	Single *SingleShipment `json:"single,omitempty"`
	Bundle *BundleShipment `json:"bundle,omitempty"`
}

// NewSingleShipment builds metadata for a one-item shipment
func NewSingleShipment(itemID uuid.UUID) ShipmentMetadata {
	return ShipmentMetadata{Kind: ShipmentKindSingle, Single: &SingleShipment{ItemID: itemID}}
}

// NewBundleShipment builds metadata for a consolidated shipment
func NewBundleShipment(bundleID string, itemIDs []uuid.UUID) ShipmentMetadata {
	ids := make([]uuid.UUID, len(itemIDs))
	copy(ids, itemIDs)
	return ShipmentMetadata{Kind: ShipmentKindBundle, Bundle: &BundleShipment{ItemIDs: ids, BundleID: bundleID}}
}

// ShipmentFor builds the metadata describing an order's items
func ShipmentFor(order *Order, itemIDs []uuid.UUID) ShipmentMetadata {
	if order != nil && order.IsBundle() {
		return NewBundleShipment(*order.BundleKey, itemIDs)
	}
	if len(itemIDs) == 1 {
		return NewSingleShipment(itemIDs[0])
	}
	bundleID := ""
	if order != nil {
		bundleID = order.OrderNumber
	}
	return NewBundleShipment(bundleID, itemIDs)
}

// IsBundle reports whether the metadata describes a bundle
func (m ShipmentMetadata) IsBundle() bool {
	return m.Kind == ShipmentKindBundle
}

// ItemIDs returns the items covered by the shipment
func (m ShipmentMetadata) ItemIDs() []uuid.UUID {
	switch m.Kind {
	case ShipmentKindSingle:
		if m.Single != nil {
			return []uuid.UUID{m.Single.ItemID}
		}
	case ShipmentKindBundle:
		if m.Bundle != nil {
			return m.Bundle.ItemIDs
		}
	}
	return nil
}

// Validate checks that Kind and payload agree
func (m ShipmentMetadata) Validate() error {
	switch m.Kind {
	case ShipmentKindSingle:
		if m.Single == nil || m.Bundle != nil {
			return errors.New("single shipment requires exactly the single payload")
		}
		if m.Single.ItemID == uuid.Nil {
			return errors.New("single shipment requires an item id")
		}
	case ShipmentKindBundle:
		if m.Bundle == nil || m.Single != nil {
			return errors.New("bundle shipment requires exactly the bundle payload")
		}
		if len(m.Bundle.ItemIDs) == 0 {
			return errors.New("bundle shipment requires at least one item")
		}
	default:
		return fmt.Errorf("unknown shipment kind %q", m.Kind)
	}
	return nil
}

// UnmarshalJSON decodes and validates the union
func (m *ShipmentMetadata) UnmarshalJSON(data []byte) error {
	type alias ShipmentMetadata
	var decoded alias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	meta := ShipmentMetadata(decoded)
	if err := meta.Validate(); err != nil {
		return err
	}
	*m = meta
	return nil
}

// Value implements driver.Valuer for JSON storage
func (m ShipmentMetadata) Value() (driver.Value, error) {
	if m.Kind == "" {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for JSON storage
func (m *ShipmentMetadata) Scan(value any) error {
	if value == nil {
		*m = ShipmentMetadata{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into ShipmentMetadata", value)
	}
	return json.Unmarshal(data, m)
}
