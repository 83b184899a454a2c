// Package presence tracks online/offline state and last-seen timestamps in
// the shared Redis cache. The cache is authoritative only for cross-process
// visibility; the connection registry decides whether an identity is truly
// connected to this process.
package presence

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"

	statusPrefix   = "user_status"
	lastSeenPrefix = "user_last_seen"

	// last_seen is only expired after a disconnect
	lastSeenTTL = 30 * 24 * time.Hour
)

// Key builds a cache key with the identity escaped so separators in the
// email cannot collide with the key layout.
func Key(prefix, email string) string {
	return fmt.Sprintf("%s_%s", prefix, url.QueryEscape(email))
}

// Record is one identity's presence as seen through the cache.
type Record struct {
	Status   string
	LastSeen string // wire timestamp, empty when never seen
}

// Store reads and writes presence records.
type Store struct {
	client *redis.Client
	logger *zap.Logger
}

func NewStore(client *redis.Client, logger *zap.Logger) *Store {
	return &Store{client: client, logger: logger}
}

// SetOnline flags the identity online and refreshes last-seen without an
// expiry.
func (s *Store) SetOnline(ctx context.Context, email string, now time.Time) error {
	if err := s.client.Set(ctx, Key(statusPrefix, email), StatusOnline, 0).Err(); err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if err := s.client.Set(ctx, Key(lastSeenPrefix, email), now.UTC().Format(time.RFC3339Nano), 0).Err(); err != nil {
		return fmt.Errorf("set last seen: %w", err)
	}
	return nil
}

// SetOffline flags the identity offline and stamps last-seen with the
// disconnect-side expiry.
func (s *Store) SetOffline(ctx context.Context, email string, now time.Time) error {
	if err := s.client.Set(ctx, Key(statusPrefix, email), StatusOffline, 0).Err(); err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if err := s.client.SetEx(ctx, Key(lastSeenPrefix, email), now.UTC().Format(time.RFC3339Nano), lastSeenTTL).Err(); err != nil {
		return fmt.Errorf("set last seen: %w", err)
	}
	return nil
}

// Get reads one identity's presence. A missing status key reads as offline.
func (s *Store) Get(ctx context.Context, email string) (Record, error) {
	status, err := s.client.Get(ctx, Key(statusPrefix, email)).Result()
	if err == redis.Nil {
		status = StatusOffline
	} else if err != nil {
		return Record{}, fmt.Errorf("get status: %w", err)
	}

	lastSeen, err := s.client.Get(ctx, Key(lastSeenPrefix, email)).Result()
	if err == redis.Nil {
		lastSeen = ""
	} else if err != nil {
		return Record{}, fmt.Errorf("get last seen: %w", err)
	}

	return Record{Status: status, LastSeen: lastSeen}, nil
}

// GetMany reads presence for a batch of identities in a single pipelined
// round-trip.
func (s *Store) GetMany(ctx context.Context, emails []string) (map[string]Record, error) {
	if len(emails) == 0 {
		return map[string]Record{}, nil
	}

	statusCmds := make([]*redis.StringCmd, len(emails))
	lastSeenCmds := make([]*redis.StringCmd, len(emails))

	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, email := range emails {
			statusCmds[i] = pipe.Get(ctx, Key(statusPrefix, email))
			lastSeenCmds[i] = pipe.Get(ctx, Key(lastSeenPrefix, email))
		}
		return nil
	})
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("pipeline presence: %w", err)
	}

	records := make(map[string]Record, len(emails))
	for i, email := range emails {
		rec := Record{Status: StatusOffline}
		if v, err := statusCmds[i].Result(); err == nil && v != "" {
			rec.Status = v
		}
		if v, err := lastSeenCmds[i].Result(); err == nil {
			rec.LastSeen = v
		}
		records[email] = rec
	}
	return records, nil
}
