package fulfillment

import (
	"context"
	"sync"
	"testing"

	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"github.com/fulfillment/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsolidator_IgnoresOtherEvents(t *testing.T) {
	env := newTestEnv(t)
	item := env.newItem(t, fulfillment.ItemStatusListing, "apparel", 1000, "")
	res := env.sell(t, item, testBuyer)

	decision, err := env.consolidator.Consolidate(context.Background(), res.Events[0], nil)
	require.NoError(t, err)
	assert.False(t, decision.Ready)
}

func TestConsolidator_SingleShipmentByDefault(t *testing.T) {
	env := newTestEnv(t)
	item := env.newItem(t, fulfillment.ItemStatusListing, "apparel", 1000, "")
	res := env.sell(t, item, testBuyer)

	decision, err := env.consolidator.Consolidate(context.Background(), labelRequested(t, res), nil)
	require.NoError(t, err)
	assert.True(t, decision.Ready)
	assert.Equal(t, res.Order.ID, decision.OrderID)
	assert.Equal(t, []uuid.UUID{item.ID}, decision.MemberItemIDs)
	assert.Equal(t, fulfillment.ShipmentKindSingle, decision.Metadata.Kind)
}

func TestConsolidator_BundleNowMergesOrders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.newItem(t, fulfillment.ItemStatusListing, "shoes", 1000, "A-01")
	second := env.newItem(t, fulfillment.ItemStatusListing, "bags", 2000, "B-02")
	trigger := env.newItem(t, fulfillment.ItemStatusListing, "apparel", 3000, "")
	firstSale := env.sell(t, first, testBuyer)
	secondSale := env.sell(t, second, testBuyer)
	triggerSale := env.sell(t, trigger, testBuyer)

	decision, err := env.consolidator.Consolidate(ctx, labelRequested(t, triggerSale), []uuid.UUID{first.ID, second.ID, first.ID})
	require.NoError(t, err)
	require.True(t, decision.Ready)
	assert.Equal(t, triggerSale.Order.ID, decision.OrderID, "the trigger's order becomes the bundle")
	assert.ElementsMatch(t, []uuid.UUID{trigger.ID, first.ID, second.ID}, decision.MemberItemIDs)
	require.True(t, decision.Metadata.IsBundle())
	assert.Equal(t, fulfillment.BundleKey(testBuyer, decision.MemberItemIDs), decision.Metadata.Bundle.BundleID)

	bundle, err := env.store.Orders().FindByID(ctx, decision.OrderID)
	require.NoError(t, err)
	assert.True(t, bundle.IsBundle())
	assert.True(t, bundle.IsPending())

	items, err := env.store.Items().FindByOrder(ctx, bundle.ID)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	for _, former := range []*fulfillment.Order{firstSale.Order, secondSale.Order} {
		merged, err := env.store.Orders().FindByID(ctx, former.ID)
		require.NoError(t, err)
		assert.Equal(t, fulfillment.OrderStatusMerged, merged.Status)
		require.NotNil(t, merged.MergedInto)
		assert.Equal(t, bundle.ID, *merged.MergedInto)
	}

	assert.Equal(t, int64(1), env.countRows(t, &fulfillment.ActivityEntry{}, "kind = ?", fulfillment.ActivityBundleConsolidated))
}

func TestConsolidator_IsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	other := env.newItem(t, fulfillment.ItemStatusListing, "shoes", 1000, "")
	trigger := env.newItem(t, fulfillment.ItemStatusListing, "bags", 2000, "")
	env.sell(t, other, testBuyer)
	triggerSale := env.sell(t, trigger, testBuyer)
	requested := labelRequested(t, triggerSale)

	var wg sync.WaitGroup
	decisions := make([]*ConsolidationDecision, 4)
	errs := make([]error, 4)
	for i := range decisions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decisions[i], errs[i] = env.consolidator.Consolidate(ctx, requested, []uuid.UUID{other.ID})
		}(i)
	}
	wg.Wait()

	for i := range decisions {
		require.NoError(t, errs[i])
		assert.Equal(t, decisions[0].OrderID, decisions[i].OrderID)
	}
	key := fulfillment.BundleKey(testBuyer, []uuid.UUID{trigger.ID, other.ID})
	assert.Equal(t, int64(1), env.countRows(t, &fulfillment.Order{}, "bundle_key = ?", key))
}

func TestConsolidator_MemberErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, env *testEnv) *fulfillment.Item
		code  string
	}{
		{
			name: "member not sold",
			setup: func(t *testing.T, env *testEnv) *fulfillment.Item {
				return env.newItem(t, fulfillment.ItemStatusStorage, "apparel", 1000, "")
			},
			code: shared.CodePreconditionFailed,
		},
		{
			name: "member of another buyer",
			setup: func(t *testing.T, env *testEnv) *fulfillment.Item {
				item := env.newItem(t, fulfillment.ItemStatusListing, "apparel", 1000, "")
				env.sell(t, item, "someone-else")
				return item
			},
			code: shared.CodePreconditionFailed,
		},
		{
			name: "member already labelled",
			setup: func(t *testing.T, env *testEnv) *fulfillment.Item {
				item := env.newItem(t, fulfillment.ItemStatusListing, "apparel", 1000, "")
				sale := env.sell(t, item, testBuyer)
				_, err := env.labels.BuildLabel(context.Background(), sale.Order.ID, fulfillment.CarrierMock, fulfillment.ServiceStandard)
				require.NoError(t, err)
				return item
			},
			code: shared.CodeConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			member := tt.setup(t, env)
			trigger := env.newItem(t, fulfillment.ItemStatusListing, "apparel", 1000, "")
			sale := env.sell(t, trigger, testBuyer)

			_, err := env.consolidator.Consolidate(context.Background(), labelRequested(t, sale), []uuid.UUID{member.ID})
			require.Error(t, err)
			assert.True(t, shared.HasCode(err, tt.code), "got %v", err)

			stored, err := env.store.Items().FindByID(context.Background(), trigger.ID)
			require.NoError(t, err)
			assert.Equal(t, sale.Order.ID, *stored.OrderID, "a failed bundle leaves the trigger in place")

			assert.Error(t, env.consolidator.Validate(context.Background(), testBuyer, trigger.ID, []uuid.UUID{member.ID}))
		})
	}
}

func TestConsolidator_ValidateIgnoresTrigger(t *testing.T) {
	env := newTestEnv(t)
	trigger := env.newItem(t, fulfillment.ItemStatusListing, "apparel", 1000, "")
	assert.NoError(t, env.consolidator.Validate(context.Background(), testBuyer, trigger.ID, []uuid.UUID{trigger.ID}))
}
