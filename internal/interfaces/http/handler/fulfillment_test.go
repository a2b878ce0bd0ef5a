package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/fulfillment/backend/internal/interfaces/http/dto"
	"github.com/fulfillment/backend/internal/interfaces/http/middleware"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const itemsPath = "/api/v1/fulfillment/items"

func ordersPath(id string) string { return "/api/v1/fulfillment/orders/" + id }

func TestFulfillmentHandler_CreateAndGetItem(t *testing.T) {
	api := newTestAPI(t, false)

	w := api.do(t, http.MethodPost, itemsPath, map[string]any{
		"sku":        "SKU-1001",
		"sellerId":   "seller-9",
		"category":   "bags",
		"price":      "12500",
		"locationId": "B-02-01",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created, _ := envelope[ItemResponse](t, w)
	assert.Equal(t, "inbound", created.Status)
	assert.Equal(t, "B-02-01", created.LocationID)
	assert.Equal(t, "12500", created.Price.String())

	w = api.do(t, http.MethodGet, itemsPath+"/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got, _ := envelope[ItemResponse](t, w)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "SKU-1001", got.SKU)
}

func TestFulfillmentHandler_CreateItemValidation(t *testing.T) {
	api := newTestAPI(t, false)

	w := api.do(t, http.MethodPost, itemsPath, map[string]any{"category": "bags"})
	expectError(t, w, http.StatusBadRequest, dto.ErrCodeValidation)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	fields := make([]string, 0, len(resp.Error.Details))
	for _, d := range resp.Error.Details {
		fields = append(fields, d.Field)
	}
	assert.ElementsMatch(t, []string{"sku", "sellerId"}, fields)
}

func TestFulfillmentHandler_GetItemErrors(t *testing.T) {
	api := newTestAPI(t, false)

	expectError(t, api.do(t, http.MethodGet, itemsPath+"/"+uuid.NewString(), nil), http.StatusNotFound, dto.ErrCodeNotFound)
	expectError(t, api.do(t, http.MethodGet, itemsPath+"/not-a-uuid", nil), http.StatusBadRequest, dto.ErrCodeInvalidInput)
}

func TestFulfillmentHandler_TransitionErrors(t *testing.T) {
	api := newTestAPI(t, false)
	item := api.listedItem(t)
	path := itemsPath + "/" + item.ID.String() + "/transitions"

	t.Run("unknown status", func(t *testing.T) {
		w := api.do(t, http.MethodPost, path, map[string]any{"targetStatus": "teleported"})
		expectError(t, w, http.StatusBadRequest, dto.ErrCodeValidation)
	})

	t.Run("edge outside the graph", func(t *testing.T) {
		w := api.do(t, http.MethodPost, path, map[string]any{"targetStatus": "shipped"})
		expectError(t, w, http.StatusUnprocessableEntity, dto.ErrCodeInvalidTransition)
	})

	t.Run("sale without buyer", func(t *testing.T) {
		w := api.do(t, http.MethodPost, path, map[string]any{"targetStatus": "sold"})
		expectError(t, w, http.StatusPreconditionFailed, dto.ErrCodePreconditionFailed)
	})

	t.Run("malformed bundle member", func(t *testing.T) {
		req := saleRequest("buyer-1")
		req["bundleMembers"] = []string{"nope"}
		w := api.do(t, http.MethodPost, path, req)
		expectError(t, w, http.StatusBadRequest, dto.ErrCodeValidation)
	})

	t.Run("unknown bundle member", func(t *testing.T) {
		req := saleRequest("buyer-1")
		req["bundleMembers"] = []string{uuid.NewString()}
		w := api.do(t, http.MethodPost, path, req)
		expectError(t, w, http.StatusNotFound, dto.ErrCodeNotFound)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := api.do(t, http.MethodPost, path, "just a string")
		expectError(t, w, http.StatusBadRequest, dto.ErrCodeBadRequest)
	})
}

func TestFulfillmentHandler_SaleThenManualLabel(t *testing.T) {
	api := newTestAPI(t, false)
	item := api.listedItem(t)

	w := api.do(t, http.MethodPost, itemsPath+"/"+item.ID.String()+"/transitions", saleRequest("buyer-7"), middleware.ActorHeader, "staff-3")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sale, _ := envelope[TransitionResponse](t, w)
	assert.Equal(t, "sold", sale.Item.Status)
	assert.Equal(t, "buyer-7", sale.Item.BuyerRef)
	require.NotNil(t, sale.Order)
	assert.Equal(t, "Tokyo", sale.Order.ShippingAddress.City)
	assert.Nil(t, sale.LabelArtifact)
	assert.Empty(t, sale.Warning)

	orderID := sale.Order.ID
	w = api.do(t, http.MethodPost, ordersPath(orderID)+"/label", map[string]any{"carrier": "mock", "service": "express"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	label, _ := envelope[LabelResponse](t, w)
	assert.True(t, label.LabelArtifact.IsMock)
	assert.True(t, label.LabelArtifact.Stored)
	assert.Equal(t, "express", label.LabelArtifact.ServiceLevel)
	assert.NotEmpty(t, label.LabelArtifact.TrackingNumber)
	require.NotNil(t, label.Order)
	assert.Equal(t, label.LabelArtifact.TrackingNumber, label.Order.TrackingNumber)

	// a second request returns the existing label
	w = api.do(t, http.MethodPost, ordersPath(orderID)+"/label", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	again, _ := envelope[LabelResponse](t, w)
	assert.Equal(t, label.LabelArtifact.ID, again.LabelArtifact.ID)

	w = api.do(t, http.MethodGet, ordersPath(orderID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail, _ := envelope[OrderDetailResponse](t, w)
	require.Len(t, detail.Items, 1)
	assert.Equal(t, item.ID.String(), detail.Items[0].ID)
	require.NotNil(t, detail.LabelArtifact)
	assert.Equal(t, label.LabelArtifact.TrackingNumber, detail.LabelArtifact.TrackingNumber)

	w = api.do(t, http.MethodGet, ordersPath(orderID)+"/label/document", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, label.LabelArtifact.TrackingNumber, w.Header().Get("X-Tracking-Number"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), detail.Order.OrderNumber+".pdf")
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.NotEmpty(t, body)
}

func TestFulfillmentHandler_SaleWithAutoLabel(t *testing.T) {
	api := newTestAPI(t, true)
	item := api.listedItem(t)

	w := api.do(t, http.MethodPost, itemsPath+"/"+item.ID.String()+"/transitions", saleRequest("buyer-8"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sale, _ := envelope[TransitionResponse](t, w)
	require.NotNil(t, sale.LabelArtifact)
	assert.True(t, sale.LabelArtifact.Stored)
	require.NotNil(t, sale.Order)
	assert.Equal(t, sale.LabelArtifact.TrackingNumber, sale.Order.TrackingNumber)
}

func TestFulfillmentHandler_BuildLabelErrors(t *testing.T) {
	api := newTestAPI(t, false)

	w := api.do(t, http.MethodPost, ordersPath(uuid.NewString())+"/label", map[string]any{"carrier": "pigeon"})
	expectError(t, w, http.StatusBadRequest, dto.ErrCodeValidation)

	w = api.do(t, http.MethodPost, ordersPath(uuid.NewString())+"/label", nil)
	expectError(t, w, http.StatusNotFound, dto.ErrCodeNotFound)

	w = api.do(t, http.MethodGet, ordersPath(uuid.NewString())+"/label/document", nil)
	expectError(t, w, http.StatusNotFound, dto.ErrCodeNotFound)
}
