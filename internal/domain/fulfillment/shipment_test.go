package fulfillment

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShipmentMetadata_Single(t *testing.T) {
	id := uuid.New()
	meta := NewSingleShipment(id)
	require.NoError(t, meta.Validate())
	assert.False(t, meta.IsBundle())
	assert.Equal(t, []uuid.UUID{id}, meta.ItemIDs())
}

func TestShipmentMetadata_Bundle(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	meta := NewBundleShipment("bundle-1", ids)
	require.NoError(t, meta.Validate())
	assert.True(t, meta.IsBundle())
	assert.Equal(t, ids, meta.ItemIDs())

	ids[0] = uuid.Nil
	assert.NotEqual(t, uuid.Nil, meta.ItemIDs()[0], "constructor copies ids")
}

func TestShipmentMetadata_UnmarshalRejectsMismatchedPayload(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown kind", `{"kind":"pallet"}`},
		{"single without payload", `{"kind":"single"}`},
		{"bundle with single payload", fmt.Sprintf(`{"kind":"bundle","single":{"item_id":"%s"}}`, uuid.New())},
		{"empty bundle", `{"kind":"bundle","bundle":{"item_ids":[],"bundle_id":"x"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var meta ShipmentMetadata
			assert.Error(t, json.Unmarshal([]byte(tt.raw), &meta))
		})
	}
}

func TestShipmentMetadata_ValueScan(t *testing.T) {
	meta := NewBundleShipment("b", []uuid.UUID{uuid.New()})
	v, err := meta.Value()
	require.NoError(t, err)

	var decoded ShipmentMetadata
	require.NoError(t, decoded.Scan(v))
	assert.Equal(t, meta, decoded)

	require.NoError(t, decoded.Scan(nil))
	assert.Equal(t, ShipmentMetadata{}, decoded)
	assert.Error(t, decoded.Scan(42))
}

func TestShipmentFor(t *testing.T) {
	order := newTestOrder(t, "B1")
	id := uuid.New()
	assert.Equal(t, ShipmentKindSingle, ShipmentFor(order, []uuid.UUID{id}).Kind)

	require.NoError(t, order.MarkBundle("key"))
	meta := ShipmentFor(order, []uuid.UUID{id, uuid.New()})
	assert.Equal(t, ShipmentKindBundle, meta.Kind)
	assert.Equal(t, "key", meta.Bundle.BundleID)
}

func TestBundleKey_OrderInsensitive(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	assert.Equal(t, BundleKey("B1", []uuid.UUID{a, b}), BundleKey("B1", []uuid.UUID{b, a, b}))
	assert.NotEqual(t, BundleKey("B1", []uuid.UUID{a, b}), BundleKey("B2", []uuid.UUID{a, b}))
	assert.Len(t, BundleKey("B1", []uuid.UUID{a}), 64)
	assert.Equal(t, []uuid.UUID{a, b}, UniqueItemIDs([]uuid.UUID{a, b, a}))
}

func TestCarrierErrors_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	authErr := &AuthError{Carrier: CarrierFedex, StatusCode: 401, Err: cause}
	assert.ErrorIs(t, authErr, ErrCarrierAuth)
	assert.ErrorIs(t, authErr, cause)
	assert.NotErrorIs(t, authErr, ErrCarrierRejected)
	assert.Contains(t, authErr.Error(), "status 401")

	carrierErr := &CarrierError{Carrier: CarrierFedex, StatusCode: 400, Messages: []string{"invalid postal code"}}
	assert.ErrorIs(t, carrierErr, ErrCarrierRejected)
	assert.NotErrorIs(t, carrierErr, ErrCarrierAuth)
	assert.Contains(t, carrierErr.Error(), "invalid postal code")
}

func TestActivityFromEvent(t *testing.T) {
	item := newTestItem(t, ItemStatusInbound)
	event := NewStatusChangedEvent(item, ItemStatusInbound, ItemStatusInspection, uuid.Nil, "staff-1")
	entry := ActivityFromEvent(event)

	assert.Equal(t, ActivityStatusChanged, entry.Kind)
	assert.Equal(t, "staff-1", entry.Actor)
	assert.Nil(t, entry.OrderID)
	assert.Equal(t, []uuid.UUID{item.ID}, entry.ItemIDs)
	assert.Equal(t, "inspection", entry.Details["to_status"])
	assert.Equal(t, event.EventID().String(), entry.Details["event_id"])
}

func TestNotification_MarkRead(t *testing.T) {
	n := NewNotification(RoleStaff, NotificationPickingRequest, PriorityHigh, "t", "m", DedupKey(EventTypeLabelReady, uuid.New()), NotificationMetadata{})
	assert.False(t, n.Read)
	n.MarkRead()
	first := *n.ReadAt
	n.MarkRead()
	assert.True(t, n.Read)
	assert.Equal(t, first, *n.ReadAt)
}
