package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// ChannelPrefix is prepended to the recipient role to form the pub/sub channel
	ChannelPrefix       = "notifications:"
	defaultCloseTimeout = 5 * time.Second
)

// ChannelFor returns the Redis channel of a role
func ChannelFor(role fulfillment.Role) string {
	return ChannelPrefix + string(role)
}

// RedisBroadcaster publishes notifications on notifications:<role> and relays
// everything received on those channels into a local Hub, so a subscriber
// connected to any instance sees notifications persisted by every instance.
type RedisBroadcaster struct {
	client redis.UniversalClient
	local  *Hub
	logger *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	done    chan struct{}
}

// RedisBroadcasterOption configures a RedisBroadcaster
type RedisBroadcasterOption func(*RedisBroadcaster)

// WithBroadcasterLogger sets the logger
func WithBroadcasterLogger(logger *zap.Logger) RedisBroadcasterOption {
	return func(b *RedisBroadcaster) {
		b.logger = logger
	}
}

// NewRedisBroadcaster creates a broadcaster relaying into local
func NewRedisBroadcaster(client redis.UniversalClient, local *Hub, opts ...RedisBroadcasterOption) *RedisBroadcaster {
	b := &RedisBroadcaster{
		client: client,
		local:  local,
		logger: zap.NewNop(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish sends n to every instance, this one included
func (b *RedisBroadcaster) Publish(ctx context.Context, n *fulfillment.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	channel := ChannelFor(n.RecipientRole)
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish notification",
			zap.String("channel", channel),
			zap.Error(err))
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	b.logger.Debug("Published notification",
		zap.String("notification_id", n.ID.String()),
		zap.String("channel", channel))
	return nil
}

// Subscribe registers a local subscriber
func (b *RedisBroadcaster) Subscribe(role fulfillment.Role) (<-chan *fulfillment.Notification, func()) {
	return b.local.Subscribe(role)
}

// Start subscribes to notifications:* and relays messages until Close.
// It returns once the subscription is confirmed.
func (b *RedisBroadcaster) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("broadcaster already running")
	}
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel
	b.running = true
	b.mu.Unlock()

	pubsub := b.client.PSubscribe(subCtx, ChannelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
		return fmt.Errorf("failed to subscribe to notification channels: %w", err)
	}

	b.logger.Info("Subscribed to notification channels", zap.String("pattern", ChannelPrefix+"*"))
	go b.relay(subCtx, pubsub)
	return nil
}

func (b *RedisBroadcaster) relay(ctx context.Context, pubsub *redis.PubSub) {
	defer close(b.done)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Notification relay stopped")
			return
		case msg, ok := <-ch:
			if !ok {
				b.logger.Warn("Notification channel closed")
				return
			}
			b.handleMessage(msg)
		}
	}
}

func (b *RedisBroadcaster) handleMessage(msg *redis.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Panic while relaying notification", zap.Any("panic", r))
		}
	}()

	var n fulfillment.Notification
	if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
		b.logger.Error("Failed to unmarshal notification",
			zap.String("channel", msg.Channel),
			zap.Error(err))
		return
	}
	if n.RecipientRole == "" {
		n.RecipientRole = fulfillment.Role(strings.TrimPrefix(msg.Channel, ChannelPrefix))
	}
	b.local.Deliver(&n)
}

// Close stops the relay. The Redis client is owned by the caller.
func (b *RedisBroadcaster) Close() error {
	b.mu.Lock()
	cancel, running := b.cancel, b.running
	b.mu.Unlock()

	if !running {
		return nil
	}
	cancel()
	select {
	case <-b.done:
	case <-time.After(defaultCloseTimeout):
		b.logger.Warn("Timeout waiting for notification relay to stop")
	}
	return nil
}

var (
	_ fulfillment.NotificationPublisher  = (*RedisBroadcaster)(nil)
	_ fulfillment.NotificationSubscriber = (*RedisBroadcaster)(nil)
)
