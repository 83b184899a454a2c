package hub

import (
	"context"
	"time"

	"Parley/internal/presence"
)

// PresenceStore is the cross-process presence cache the gateway and
// dispatcher write through.
type PresenceStore interface {
	SetOnline(ctx context.Context, email string, now time.Time) error
	SetOffline(ctx context.Context, email string, now time.Time) error
	Get(ctx context.Context, email string) (presence.Record, error)
	GetMany(ctx context.Context, emails []string) (map[string]presence.Record, error)
}

// ListCache stores pre-serialized list response bodies.
type ListCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, body []byte, ttl time.Duration) error
}

// session is the slice of a connection the dispatch handlers need.
type session interface {
	Email() string
	SendRaw(frame []byte)
	Send(source string, data any)
	SendError(errType, message string)
}
