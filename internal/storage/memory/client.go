package memory

import (
	"context"
	"sync"
	"time"

	"github.com/kacharaalert/internal/storage"
)

type item struct {
	val string
	exp time.Time
}

type blobItem struct {
	blob storage.Blob
	exp  time.Time
}

func expired(exp time.Time) bool {
	return !exp.IsZero() && time.Now().After(exp)
}

func deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

// Client is the in-process Store used by default and in tests.
type Client struct {
	mu       sync.RWMutex
	blobs    map[string]blobItem
	sessions map[string]item
}

func New() *Client {
	return &Client{
		blobs:    make(map[string]blobItem),
		sessions: make(map[string]item),
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) PutBlob(ctx context.Context, key string, b storage.Blob, ttl time.Duration) error {
	data := make([]byte, len(b.Data))
	copy(data, b.Data)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blobs[key] = blobItem{blob: storage.Blob{ContentType: b.ContentType, Data: data}, exp: deadline(ttl)}
	return nil
}

func (c *Client) GetBlob(ctx context.Context, key string) (storage.Blob, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.blobs[key]
	if !ok || expired(v.exp) {
		return storage.Blob{}, storage.ErrNotFound
	}
	return v.blob, nil
}

func (c *Client) DeleteBlob(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.blobs, key)
	return nil
}

// Len returns the number of live blobs.
func (c *Client) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, v := range c.blobs {
		if !expired(v.exp) {
			n++
		}
	}
	return n
}

func (c *Client) SetRefresh(ctx context.Context, token, userID string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[token] = item{val: userID, exp: deadline(ttl)}
	return nil
}

func (c *Client) GetRefresh(ctx context.Context, token string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.sessions[token]
	if !ok || expired(v.exp) {
		return "", storage.ErrNotFound
	}
	return v.val, nil
}

func (c *Client) DeleteRefresh(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, token)
	return nil
}
