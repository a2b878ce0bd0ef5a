package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/fulfillment/backend/internal/domain/shared"
	"github.com/fulfillment/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient connects to Redis and pings it
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr(), err)
	}
	return client, nil
}

// Coordination bundles the cross-instance primitives the pipeline needs.
// Client is nil when running on the in-memory fallbacks.
type Coordination struct {
	Client      *redis.Client
	Idempotency shared.IdempotencyStore
	Locker      shared.Locker
}

// Close releases the stores and the Redis client
func (c *Coordination) Close() error {
	err := c.Idempotency.Close()
	if c.Client != nil {
		if cerr := c.Client.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Distributed reports whether state is shared through Redis
func (c *Coordination) Distributed() bool {
	return c.Client != nil
}

// Factory builds Coordination from configuration
type Factory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis degrades to
// in-process state (default) or fails startup.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewFactory creates a new factory
func NewFactory(cfg config.RedisConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// InMemory returns process-local coordination
func (f *Factory) InMemory() *Coordination {
	return &Coordination{
		Idempotency: NewInMemoryIdempotencyStore(),
		Locker:      NewInMemoryLocker(),
	}
}

// Create uses Redis when it is enabled and reachable, else the in-memory
// fallback when allowed.
func (f *Factory) Create(ctx context.Context) (*Coordination, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("Redis disabled, using in-memory idempotency and locks")
		return f.InMemory(), nil
	}

	client, err := NewRedisClient(ctx, f.redisConfig)
	if err != nil {
		if !f.allowInMemoryFallback {
			return nil, fmt.Errorf("redis required but unavailable: %w", err)
		}
		f.logger.Warn("Redis unavailable, falling back to in-memory idempotency and locks. "+
			"Multiple instances may process the same event or bundle concurrently.",
			zap.Error(err))
		return f.InMemory(), nil
	}

	f.logger.Info("Using Redis for idempotency and locks", zap.String("addr", f.redisConfig.Addr()))
	return &Coordination{
		Client:      client,
		Idempotency: NewRedisIdempotencyStore(client, ""),
		Locker:      NewRedisLocker(client, WithLockLogger(f.logger)),
	}, nil
}
