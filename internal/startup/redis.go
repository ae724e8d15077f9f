package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/kacharaalert/internal/logger"
	"github.com/kacharaalert/internal/storage"
	"github.com/kacharaalert/internal/storage/memory"
	redisstorage "github.com/kacharaalert/internal/storage/redis"
)

// ConnectRedisWithRetry connects to Redis, doubling the pause between
// attempts up to 30s, and gives up after maxWait.
func ConnectRedisWithRetry(ctx context.Context, redisURL string, maxWait time.Duration) (*redisstorage.Client, error) {
	deadline := time.Now().Add(maxWait)
	backoff := 500 * time.Millisecond
	for {
		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		client, err := redisstorage.New(attemptCtx, redisURL)
		cancel()
		if err == nil {
			return client, nil
		}
		if time.Now().Add(backoff).After(deadline) {
			return nil, fmt.Errorf("redis (gave up after %v): %w", maxWait, err)
		}
		logger.Errorf("redis connect failed, retry in %v: %v", backoff, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// OpenStore returns the Store selected by kind ("memory" or "redis").
func OpenStore(ctx context.Context, kind, redisURL string, maxWait time.Duration) (storage.Store, error) {
	if kind != "redis" {
		return memory.New(), nil
	}
	client, err := ConnectRedisWithRetry(ctx, redisURL, maxWait)
	if err != nil {
		return nil, err
	}
	logger.Infof("store: redis %s", redisURL)
	return client, nil
}
