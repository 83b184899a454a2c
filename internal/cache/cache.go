// Package cache stores pre-serialized list responses under short TTLs.
// It is a pure performance cache: a hit is served byte-identical, and
// nothing correctness-sensitive may be read from it.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// UserListTTL bounds how stale a cached directory page may get.
	UserListTTL = 60 * time.Second
	// MessageListTTL is shorter since history pages change on every send.
	MessageListTTL = 30 * time.Second
)

// UserListKey keys a cached user.list body by every parameter that affects
// the result.
func UserListKey(email string, page, perPage int, search string) string {
	return fmt.Sprintf("user_list:%s:%d:%d:%s", email, page, perPage, search)
}

// MessageListKey keys a cached message.list body.
func MessageListKey(email, roomID string, page, pageSize int) string {
	return fmt.Sprintf("message_list:%s:%s:%d:%d", email, roomID, page, pageSize)
}

// ResponseCache is the Redis-backed body cache.
type ResponseCache struct {
	client *redis.Client
}

func NewResponseCache(client *redis.Client) *ResponseCache {
	return &ResponseCache{client: client}
}

// Get returns the cached body, or nil on a miss.
func (c *ResponseCache) Get(ctx context.Context, key string) ([]byte, error) {
	body, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	return body, nil
}

// Set stores a body under the given TTL.
func (c *ResponseCache) Set(ctx context.Context, key string, body []byte, ttl time.Duration) error {
	if err := c.client.SetEx(ctx, key, body, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}
