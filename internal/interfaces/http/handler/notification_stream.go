package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"github.com/fulfillment/backend/internal/interfaces/http/dto"
	"github.com/fulfillment/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Stream envelope types
const (
	StreamEventConnected       = "connected"
	StreamEventNewNotification = "new_notification"
)

// StreamEnvelope is the data of every stream message
type StreamEnvelope struct {
	Type         string                `json:"type"`
	ClientID     string                `json:"client_id,omitempty"`
	Notification *NotificationResponse `json:"notification,omitempty"`
}

// NotificationStreamHandler pushes new notifications to connected staff
// over Server-Sent Events
type NotificationStreamHandler struct {
	BaseHandler
	subscriber fulfillment.NotificationSubscriber
	logger     *zap.Logger
	heartbeat  time.Duration
	maxClients int

	clients atomic.Int64
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
}

// NotificationStreamOption configures a NotificationStreamHandler
type NotificationStreamOption func(*NotificationStreamHandler)

// WithStreamLogger sets the logger
func WithStreamLogger(logger *zap.Logger) NotificationStreamOption {
	return func(h *NotificationStreamHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithStreamHeartbeat sets the keep-alive interval
func WithStreamHeartbeat(interval time.Duration) NotificationStreamOption {
	return func(h *NotificationStreamHandler) {
		if interval > 0 {
			h.heartbeat = interval
		}
	}
}

// WithStreamMaxClients caps concurrent streams; 0 means unlimited
func WithStreamMaxClients(n int) NotificationStreamOption {
	return func(h *NotificationStreamHandler) {
		h.maxClients = n
	}
}

// NewNotificationStreamHandler creates a stream handler over subscriber
func NewNotificationStreamHandler(subscriber fulfillment.NotificationSubscriber, opts ...NotificationStreamOption) *NotificationStreamHandler {
	ctx, cancel := context.WithCancel(context.Background())
	h := &NotificationStreamHandler{
		subscriber: subscriber,
		logger:     zap.NewNop(),
		heartbeat:  30 * time.Second,
		maxClients: 1000,
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Stop disconnects every stream. Used on shutdown before the HTTP server
// waits for in-flight requests.
func (h *NotificationStreamHandler) Stop() {
	h.once.Do(func() {
		h.cancel()
		h.logger.Info("Notification stream handler stopped")
	})
}

// ClientCount returns the number of connected streams
func (h *NotificationStreamHandler) ClientCount() int {
	return int(h.clients.Load())
}

// Stream opens an SSE stream for a role. The first message is a connected
// envelope; each pushed notification follows as new_notification. Missed
// messages are fetched through GET /notifications with since.
// GET /notifications/stream?role=staff
func (h *NotificationStreamHandler) Stream(c *gin.Context) {
	role := roleFor(c, c.Query("role"))
	if !role.IsValid() {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "Unknown recipient role "+string(role))
		return
	}
	if n := h.clients.Add(1); h.maxClients > 0 && n > int64(h.maxClients) {
		h.clients.Add(-1)
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeMaxConnections, "Maximum number of stream connections reached")
		return
	}
	defer h.clients.Add(-1)

	notifications, unsubscribe := h.subscriber.Subscribe(role)
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	// streams outlive the server write timeout
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	clientID := uuid.NewString()
	log := h.logger.With(
		zap.String("client_id", clientID),
		zap.String("role", string(role)),
		zap.String("actor", middleware.GetActor(c)),
	)
	log.Info("Notification stream connected")

	if err := h.send(c.Writer, StreamEnvelope{Type: StreamEventConnected, ClientID: clientID}); err != nil {
		return
	}
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	reqCtx := c.Request.Context()
	for {
		select {
		case <-reqCtx.Done():
			log.Info("Notification stream disconnected")
			return
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(c.Writer, ": heartbeat\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		case n, ok := <-notifications:
			if !ok {
				return
			}
			resp := toNotificationResponse(n)
			if err := h.send(c.Writer, StreamEnvelope{Type: StreamEventNewNotification, Notification: &resp}); err != nil {
				log.Warn("Notification stream write failed", zap.Error(err))
				return
			}
			c.Writer.Flush()
		}
	}
}

func (h *NotificationStreamHandler) send(w io.Writer, env StreamEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if env.Notification != nil {
		if _, err := fmt.Fprintf(w, "id: %s\n", env.Notification.ID); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.Type, data)
	return err
}
