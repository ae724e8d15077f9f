// Package avatar materializes authenticated profile images once per URL and
// hands out local handles that list rows can share.
package avatar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/kacharaalert/internal/apiclient"
	"github.com/kacharaalert/internal/logger"
	"github.com/kacharaalert/internal/storage"
)

var (
	// ErrUnknownHandle is returned by Open for a released or foreign handle.
	ErrUnknownHandle = errors.New("avatar: unknown handle")
	ErrClosed        = errors.New("avatar: cache closed")
)

// Handle identifies a materialized image in the blob store.
type Handle string

// Fetcher is the part of the API client the cache needs.
type Fetcher interface {
	GetBlob(ctx context.Context, path string) (*apiclient.Blob, error)
}

// Cache maps image URLs to handles. Concurrent Resolve calls for the same URL
// share one fetch.
type Cache struct {
	fetcher Fetcher
	store   storage.BlobStore
	ttl     time.Duration
	flight  singleflight.Group

	mu      sync.Mutex
	closed  bool
	handles map[string]Handle
	// versions move on Invalidate; a fetch started on an older version is
	// not cached.
	versions map[string]uint64
	// orphans are handles whose URL was invalidated while they were in flight.
	orphans []Handle
}

// New creates a cache. ttl bounds how long blobs live in a shared store; zero
// keeps them until released.
func New(fetcher Fetcher, store storage.BlobStore, ttl time.Duration) *Cache {
	return &Cache{
		fetcher:  fetcher,
		store:    store,
		ttl:      ttl,
		handles:  make(map[string]Handle),
		versions: make(map[string]uint64),
	}
}

// Resolve returns the handle for url, fetching it at most once at a time.
// A caller whose ctx ends stops waiting; the fetch continues for the others.
func (c *Cache) Resolve(ctx context.Context, url string) (Handle, error) {
	if url == "" {
		return "", errors.New("avatar: empty url")
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	if h, ok := c.handles[url]; ok {
		c.mu.Unlock()
		return h, nil
	}
	c.mu.Unlock()

	ch := c.flight.DoChan(url, func() (any, error) {
		return c.run(context.WithoutCancel(ctx), url)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(Handle), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Cache) run(ctx context.Context, url string) (Handle, error) {
	c.mu.Lock()
	if h, ok := c.handles[url]; ok {
		c.mu.Unlock()
		return h, nil
	}
	version := c.versions[url]
	c.mu.Unlock()

	handle, err := c.materialize(ctx, url)
	if err != nil {
		logger.Debugf("avatar %s: %v", url, err)
		return "", err
	}

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		if err := c.store.DeleteBlob(ctx, string(handle)); err != nil {
			logger.Errorf("avatar %s: release after close: %v", url, err)
		}
		return "", ErrClosed
	case c.versions[url] == version:
		c.handles[url] = handle
	default:
		c.orphans = append(c.orphans, handle)
	}
	c.mu.Unlock()
	return handle, nil
}

func (c *Cache) materialize(ctx context.Context, url string) (Handle, error) {
	blob, err := c.fetcher.GetBlob(ctx, url)
	if err != nil {
		return "", fmt.Errorf("fetch avatar: %w", err)
	}
	h := Handle(uuid.NewString())
	if err := c.store.PutBlob(ctx, string(h), storage.Blob{ContentType: blob.ContentType, Data: blob.Data}, c.ttl); err != nil {
		return "", fmt.Errorf("store avatar: %w", err)
	}
	return h, nil
}

// Lookup returns the cached handle for url without fetching.
func (c *Cache) Lookup(url string) (Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handles[url]
	return h, ok
}

// Open reads the bytes behind a handle.
func (c *Cache) Open(ctx context.Context, h Handle) (storage.Blob, error) {
	b, err := c.store.GetBlob(ctx, string(h))
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Blob{}, ErrUnknownHandle
	}
	return b, err
}

// Invalidate drops the handle for url and releases its bytes. An in-flight
// fetch for url still answers its waiters but is not cached.
func (c *Cache) Invalidate(ctx context.Context, url string) error {
	c.mu.Lock()
	h, ok := c.handles[url]
	delete(c.handles, url)
	c.versions[url]++
	c.mu.Unlock()
	c.flight.Forget(url)
	if !ok {
		return nil
	}
	return c.store.DeleteBlob(ctx, string(h))
}

// Close releases every handle the cache created. Fetches still in flight
// release their bytes when they finish; Resolve fails with ErrClosed.
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	handles := make([]Handle, 0, len(c.handles)+len(c.orphans))
	for _, h := range c.handles {
		handles = append(handles, h)
	}
	handles = append(handles, c.orphans...)
	c.handles = make(map[string]Handle)
	c.orphans = nil
	c.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := c.store.DeleteBlob(ctx, string(h)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
