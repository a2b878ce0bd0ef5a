package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"github.com/fulfillment/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sseMessage struct {
	event string
	id    string
	data  string
}

// readMessage reads one SSE message, skipping heartbeat comments
func readMessage(t *testing.T, r *bufio.Reader) sseMessage {
	t.Helper()
	var msg sseMessage
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if msg.event != "" {
				return msg
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			msg.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "id: "):
			msg.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "data: "):
			msg.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func openStream(t *testing.T, srv *httptest.Server) (*http.Response, *bufio.Reader) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+notificationsPath+"/stream", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp, bufio.NewReader(resp.Body)
}

func startServer(t *testing.T, api *testAPI) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(api.engine)
	t.Cleanup(srv.Close)
	// stop streams before the server waits for them
	t.Cleanup(api.stream.Stop)
	return srv
}

func TestNotificationStream_ConnectedThenNotification(t *testing.T) {
	api := newTestAPI(t, false)
	srv := startServer(t, api)

	resp, r := openStream(t, srv)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	first := readMessage(t, r)
	assert.Equal(t, StreamEventConnected, first.event)
	var connected StreamEnvelope
	require.NoError(t, json.Unmarshal([]byte(first.data), &connected))
	assert.Equal(t, StreamEventConnected, connected.Type)
	assert.NotEmpty(t, connected.ClientID)
	assert.Equal(t, 1, api.stream.ClientCount())

	n := fulfillment.NewNotification(fulfillment.RoleStaff, fulfillment.NotificationPickingRequest, fulfillment.PriorityHigh,
		"Picking request", "Pick order ORD-1 from A-01.", "picking_request:test", fulfillment.NotificationMetadata{OrderNumber: "ORD-1"})
	api.hub.Deliver(n)

	msg := readMessage(t, r)
	assert.Equal(t, StreamEventNewNotification, msg.event)
	assert.Equal(t, n.ID.String(), msg.id)
	var env StreamEnvelope
	require.NoError(t, json.Unmarshal([]byte(msg.data), &env))
	assert.Equal(t, StreamEventNewNotification, env.Type)
	require.NotNil(t, env.Notification)
	assert.Equal(t, "picking_request", env.Notification.Type)
	assert.Equal(t, "ORD-1", env.Notification.Metadata.OrderNumber)
}

func TestNotificationStream_PushesPipelineNotifications(t *testing.T) {
	api := newTestAPI(t, false)
	srv := startServer(t, api)

	_, r := openStream(t, srv)
	require.Equal(t, StreamEventConnected, readMessage(t, r).event)

	orderID := saleAndLabel(t, api)

	for _, want := range []string{"order_ready_for_label", "picking_request"} {
		msg := readMessage(t, r)
		var env StreamEnvelope
		require.NoError(t, json.Unmarshal([]byte(msg.data), &env))
		require.NotNil(t, env.Notification)
		assert.Equal(t, want, env.Notification.Type)
		assert.Equal(t, orderID, env.Notification.Metadata.OrderID.String())
	}
}

func TestNotificationStream_Heartbeat(t *testing.T) {
	api := newTestAPI(t, false, WithStreamHeartbeat(20*time.Millisecond))
	srv := startServer(t, api)

	_, r := openStream(t, srv)
	require.Equal(t, StreamEventConnected, readMessage(t, r).event)

	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, ": heartbeat") {
			return
		}
	}
}

func TestNotificationStream_MaxClients(t *testing.T) {
	api := newTestAPI(t, false, WithStreamMaxClients(1))
	srv := startServer(t, api)

	_, r := openStream(t, srv)
	require.Equal(t, StreamEventConnected, readMessage(t, r).event)

	resp, err := srv.Client().Get(srv.URL + notificationsPath + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body dto.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, dto.ErrCodeMaxConnections, body.Error.Code)
	assert.Equal(t, 1, api.stream.ClientCount())
}

func TestNotificationStream_StopEndsStreams(t *testing.T) {
	api := newTestAPI(t, false)
	srv := startServer(t, api)

	_, r := openStream(t, srv)
	require.Equal(t, StreamEventConnected, readMessage(t, r).event)

	api.stream.Stop()

	done := make(chan error, 1)
	go func() {
		_, err := r.ReadString('\n')
		done <- err
	}()
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after Stop")
	}
	assert.Eventually(t, func() bool { return api.stream.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestNotificationStream_RejectsUnknownRole(t *testing.T) {
	api := newTestAPI(t, false)
	w := api.do(t, http.MethodGet, notificationsPath+"/stream?role=buyer", nil)
	expectError(t, w, http.StatusBadRequest, dto.ErrCodeInvalidInput)
}
