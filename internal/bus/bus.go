// Package bus relays frames between server processes over Redis pub/sub.
// Topics are plain strings: the base channel reaches every process, and a
// per-identity topic reaches whichever processes currently hold sockets
// for that identity.
package bus

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Subscription is a live topic subscription. Messages is closed after
// Close or when the underlying connection drops.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// Bus publishes and subscribes raw frame payloads by topic. One
// subscription may cover several topics; their payloads share a stream.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topics ...string) (Subscription, error)
}

// IdentityTopic returns the per-identity topic under a base channel.
func IdentityTopic(base, email string) string {
	return base + ":" + email
}

// RedisBus is the Redis-backed Bus.
type RedisBus struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisBus(client *redis.Client, logger *zap.Logger) *RedisBus {
	return &RedisBus{client: client, logger: logger}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, topics ...string) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, topics...)

	// Force the subscription onto the wire before we report success, so a
	// registered connection never misses publishes that race the subscribe.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", strings.Join(topics, ","), err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		out:    make(chan []byte, 64),
	}
	go sub.pump(b.logger, strings.Join(topics, ","))
	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	out    chan []byte
}

func (s *redisSubscription) pump(logger *zap.Logger, topic string) {
	defer close(s.out)
	for msg := range s.pubsub.Channel() {
		s.out <- []byte(msg.Payload)
	}
	logger.Debug("subscription channel closed", zap.String("topic", topic))
}

func (s *redisSubscription) Messages() <-chan []byte {
	return s.out
}

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}
