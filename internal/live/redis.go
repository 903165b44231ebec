package live

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"storepulse/internal/metrics"
)

const publishTimeout = 2 * time.Second

// NewRedisClient parses a redis:// URL and checks the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisBroadcaster relays signals through a Redis channel so every instance
// subscribed to it notifies its own hub.
type RedisBroadcaster struct {
	client  *redis.Client
	channel string
	local   *Hub
	logger  *slog.Logger

	// subscribed is set while Run holds a live subscription.
	subscribed atomic.Bool
}

// NewRedisBroadcaster creates a relay publishing to channel and delivering to local.
func NewRedisBroadcaster(client *redis.Client, channel string, local *Hub, logger *slog.Logger) *RedisBroadcaster {
	return &RedisBroadcaster{
		client:  client,
		channel: channel,
		local:   local,
		logger:  logger,
	}
}

// Notify publishes topic in the background. When Redis is unreachable, or
// this instance is not subscribed, the local hub is notified directly so its
// dashboards still update.
func (b *RedisBroadcaster) Notify(topic string) {
	go b.publish(topic)
}

func (b *RedisBroadcaster) publish(topic string) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := b.client.Publish(ctx, b.channel, topic).Err(); err != nil {
		b.logger.Warn("Failed to publish live signal, notifying locally",
			slog.String("channel", b.channel),
			slog.Any("error", err))
		metrics.RecordBroadcast("fallback")
		b.local.Notify(topic)
		return
	}
	metrics.RecordBroadcast("redis")

	// Our own publish only comes back through a subscription.
	if !b.subscribed.Load() {
		metrics.RecordBroadcast("fallback")
		b.local.Notify(topic)
	}
}

// Subscribed reports whether Run is currently relaying channel messages.
func (b *RedisBroadcaster) Subscribed() bool {
	return b.subscribed.Load()
}

// Run forwards channel messages to the local hub until ctx is cancelled.
func (b *RedisBroadcaster) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", b.channel, err)
	}
	b.subscribed.Store(true)
	defer b.subscribed.Store(false)
	b.logger.Info("Live relay subscribed", slog.String("channel", b.channel))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			b.local.Notify(msg.Payload)
		}
	}
}
