package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or expired.
var ErrNotFound = errors.New("storage: not found")

// Blob is a stored binary payload with its content type.
type Blob struct {
	ContentType string
	Data        []byte
}

// BlobStore keeps materialized avatar images.
// Implementations: redis.Client, memory.Client.
type BlobStore interface {
	PutBlob(ctx context.Context, key string, b Blob, ttl time.Duration) error
	GetBlob(ctx context.Context, key string) (Blob, error)
	DeleteBlob(ctx context.Context, key string) error
}

// SessionStore keeps the demo backend's refresh tokens (token -> user id).
type SessionStore interface {
	SetRefresh(ctx context.Context, token, userID string, ttl time.Duration) error
	GetRefresh(ctx context.Context, token string) (string, error)
	DeleteRefresh(ctx context.Context, token string) error
}

// Store is the union used by the wiring code.
type Store interface {
	BlobStore
	SessionStore
	Close() error
}
