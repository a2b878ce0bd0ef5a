package notification

import (
	"context"
	"sync"

	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"go.uber.org/zap"
)

const defaultSubscriberBuffer = 64

// Hub fans notifications out to the subscribers of a role inside this process.
// A subscriber that does not keep up loses messages rather than blocking the
// publisher; it can catch up through the durable listing.
type Hub struct {
	mu     sync.RWMutex
	subs   map[fulfillment.Role]map[*subscription]struct{}
	buffer int
	logger *zap.Logger
	closed bool
}

type subscription struct {
	ch   chan *fulfillment.Notification
	once sync.Once
}

// HubOption configures a Hub
type HubOption func(*Hub)

// WithHubLogger sets the logger
func WithHubLogger(logger *zap.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithSubscriberBuffer sets the per-subscriber channel size
func WithSubscriberBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// NewHub creates an empty hub
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subs:   make(map[fulfillment.Role]map[*subscription]struct{}),
		buffer: defaultSubscriberBuffer,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish delivers n to every current subscriber of its recipient role
func (h *Hub) Publish(_ context.Context, n *fulfillment.Notification) error {
	h.Deliver(n)
	return nil
}

// Deliver is Publish without a context, used by the Redis relay
func (h *Hub) Deliver(n *fulfillment.Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[n.RecipientRole] {
		select {
		case sub.ch <- n:
		default:
			h.logger.Warn("Subscriber channel full, dropping notification",
				zap.String("notification_id", n.ID.String()),
				zap.String("role", string(n.RecipientRole)))
		}
	}
}

// Subscribe registers a subscriber for role. The channel is closed by cancel
// or by Close.
func (h *Hub) Subscribe(role fulfillment.Role) (<-chan *fulfillment.Notification, func()) {
	sub := &subscription{ch: make(chan *fulfillment.Notification, h.buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	if h.subs[role] == nil {
		h.subs[role] = make(map[*subscription]struct{})
	}
	h.subs[role][sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[role]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.subs, role)
			}
		}
		sub.close()
	}
	return sub.ch, cancel
}

// SubscriberCount returns the number of subscribers for role
func (h *Hub) SubscriberCount(role fulfillment.Role) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[role])
}

// Close disconnects every subscriber
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for role, set := range h.subs {
		for sub := range set {
			sub.close()
		}
		delete(h.subs, role)
	}
	return nil
}

func (s *subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

var (
	_ fulfillment.NotificationPublisher  = (*Hub)(nil)
	_ fulfillment.NotificationSubscriber = (*Hub)(nil)
)
