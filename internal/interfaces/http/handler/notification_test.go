package handler

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/fulfillment/backend/internal/interfaces/http/dto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const notificationsPath = "/api/v1/notifications"

// saleAndLabel produces an order_ready_for_label and a picking_request
func saleAndLabel(t *testing.T, api *testAPI) string {
	t.Helper()
	item := api.listedItem(t)
	w := api.do(t, http.MethodPost, itemsPath+"/"+item.ID.String()+"/transitions", saleRequest("buyer-5"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sale, _ := envelope[TransitionResponse](t, w)

	w = api.do(t, http.MethodPost, ordersPath(sale.Order.ID)+"/label", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return sale.Order.ID
}

func TestNotificationHandler_List(t *testing.T) {
	api := newTestAPI(t, false)
	orderID := saleAndLabel(t, api)

	w := api.do(t, http.MethodGet, notificationsPath, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	list, _ := envelope[[]NotificationResponse](t, w)
	require.Len(t, list, 2)

	types := []string{list[0].Type, list[1].Type}
	assert.ElementsMatch(t, []string{"order_ready_for_label", "picking_request"}, types)
	for _, n := range list {
		assert.Equal(t, "staff", n.RecipientRole)
		assert.Equal(t, orderID, n.Metadata.OrderID.String())
		assert.False(t, n.Read)
	}

	w = api.do(t, http.MethodGet, notificationsPath+"?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	limited, _ := envelope[[]NotificationResponse](t, w)
	assert.Len(t, limited, 1)

	future := url.QueryEscape(time.Now().Add(time.Hour).UTC().Format(time.RFC3339Nano))
	w = api.do(t, http.MethodGet, notificationsPath+"?since="+future, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	none, _ := envelope[[]NotificationResponse](t, w)
	assert.Empty(t, none)
}

func TestNotificationHandler_ListValidation(t *testing.T) {
	api := newTestAPI(t, false)

	expectError(t, api.do(t, http.MethodGet, notificationsPath+"?role=buyer", nil), http.StatusBadRequest, dto.ErrCodeValidation)
	expectError(t, api.do(t, http.MethodGet, notificationsPath+"?limit=0", nil), http.StatusBadRequest, dto.ErrCodeValidation)
	expectError(t, api.do(t, http.MethodGet, notificationsPath+"?limit=500", nil), http.StatusBadRequest, dto.ErrCodeValidation)
}

func TestNotificationHandler_MarkRead(t *testing.T) {
	api := newTestAPI(t, false)
	saleAndLabel(t, api)

	w := api.do(t, http.MethodGet, notificationsPath, nil)
	list, _ := envelope[[]NotificationResponse](t, w)
	require.NotEmpty(t, list)
	target := list[0].ID

	for i := 0; i < 2; i++ {
		w = api.do(t, http.MethodPost, notificationsPath+"/"+target+"/read", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		read, _ := envelope[NotificationResponse](t, w)
		assert.True(t, read.Read)
		assert.NotNil(t, read.ReadAt)
	}

	w = api.do(t, http.MethodGet, notificationsPath+"?unread=true", nil)
	unread, _ := envelope[[]NotificationResponse](t, w)
	assert.Len(t, unread, len(list)-1)

	expectError(t, api.do(t, http.MethodPost, notificationsPath+"/"+uuid.NewString()+"/read", nil), http.StatusNotFound, dto.ErrCodeNotFound)
}
