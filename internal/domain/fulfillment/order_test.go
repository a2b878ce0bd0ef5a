package fulfillment

import (
	"testing"
	"time"

	"github.com/fulfillment/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArtifact(orderID uuid.UUID) *LabelArtifact {
	artifact, _ := NewLabelArtifact(orderID, CarrierMock, ServiceStandard, &RawLabelResponse{
		TrackingNumber:    "FXABCDE12345",
		Cost:              decimal.NewFromInt(800),
		Currency:          "JPY",
		EstimatedDelivery: time.Now().AddDate(0, 0, 3),
		IsMock:            true,
	})
	return artifact
}

func TestNewOrder(t *testing.T) {
	order, err := NewOrder("ORD-1", " B1 ", Address{})
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPending, order.Status)
	assert.Equal(t, "B1", order.BuyerRef)
	assert.False(t, order.HasLabel())
	assert.True(t, order.IsPending())

	_, err = NewOrder("ORD-1", "", Address{})
	assert.ErrorIs(t, err, shared.ErrPreconditionFailed)
	_, err = NewOrder("", "B1", Address{})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestOrder_AttachLabel(t *testing.T) {
	order := newTestOrder(t, "B1")
	artifact := newTestArtifact(order.ID)

	require.NoError(t, order.AttachLabel(artifact))
	assert.True(t, order.HasLabel())
	assert.Equal(t, "FXABCDE12345", order.Tracking())
	assert.Equal(t, OrderStatusLabelIssued, order.Status)
	assert.Equal(t, CarrierMock, order.Carrier)

	err := order.AttachLabel(artifact)
	assert.ErrorIs(t, err, shared.ErrConflict)

	err = newTestOrder(t, "B1").AttachLabel(&LabelArtifact{})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestOrder_BundleLifecycle(t *testing.T) {
	target := newTestOrder(t, "B1")
	require.NoError(t, target.MarkBundle("key-1"))
	assert.True(t, target.IsBundle())
	require.NoError(t, target.MarkBundle("key-1"))
	assert.ErrorIs(t, target.MarkBundle("key-2"), shared.ErrConflict)

	absorbed := newTestOrder(t, "B1")
	require.NoError(t, absorbed.MergeInto(target.ID))
	assert.Equal(t, OrderStatusMerged, absorbed.Status)
	assert.Equal(t, target.ID, *absorbed.MergedInto)
	assert.ErrorIs(t, absorbed.Cancel(), shared.ErrConflict)
}

func TestOrder_CancelOnlyPending(t *testing.T) {
	order := newTestOrder(t, "B1")
	require.NoError(t, order.AttachLabel(newTestArtifact(order.ID)))
	assert.ErrorIs(t, order.Cancel(), shared.ErrConflict)

	pending := newTestOrder(t, "B1")
	require.NoError(t, pending.Cancel())
	assert.Equal(t, OrderStatusCancelled, pending.Status)
}

func TestServiceLevel(t *testing.T) {
	assert.Equal(t, 3, ServiceStandard.LeadDays())
	assert.Equal(t, 2, ServiceExpress.LeadDays())
	assert.Equal(t, 1, ServicePriority.LeadDays())

	s, err := ParseServiceLevel("PRIORITY")
	require.NoError(t, err)
	assert.Equal(t, ServicePriority, s)
	_, err = ParseServiceLevel("overnight")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	c, err := ParseCarrierCode("FedEx")
	require.NoError(t, err)
	assert.Equal(t, CarrierFedex, c)
	_, err = ParseCarrierCode("ups")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestNewLabelArtifact_RequiresTracking(t *testing.T) {
	_, err := NewLabelArtifact(uuid.New(), CarrierMock, ServiceStandard, &RawLabelResponse{})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}
