package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kacharaalert/internal/storage"
)

const (
	blobPrefix    = "avatar:"
	refreshPrefix = "refresh:"
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// PutBlob stores the content type and bytes in one hash so both expire together.
func (c *Client) PutBlob(ctx context.Context, key string, b storage.Blob, ttl time.Duration) error {
	k := blobPrefix + key
	pipe := c.cli.TxPipeline()
	pipe.HSet(ctx, k, "type", b.ContentType, "data", b.Data)
	if ttl > 0 {
		pipe.Expire(ctx, k, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (c *Client) GetBlob(ctx context.Context, key string) (storage.Blob, error) {
	vals, err := c.cli.HGetAll(ctx, blobPrefix+key).Result()
	if err != nil {
		return storage.Blob{}, err
	}
	data, ok := vals["data"]
	if !ok {
		return storage.Blob{}, storage.ErrNotFound
	}
	return storage.Blob{ContentType: vals["type"], Data: []byte(data)}, nil
}

func (c *Client) DeleteBlob(ctx context.Context, key string) error {
	return c.cli.Del(ctx, blobPrefix+key).Err()
}

func (c *Client) SetRefresh(ctx context.Context, token, userID string, ttl time.Duration) error {
	return c.cli.Set(ctx, refreshPrefix+token, userID, ttl).Err()
}

func (c *Client) GetRefresh(ctx context.Context, token string) (string, error) {
	val, err := c.cli.Get(ctx, refreshPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", storage.ErrNotFound
	}
	return val, err
}

func (c *Client) DeleteRefresh(ctx context.Context, token string) error {
	return c.cli.Del(ctx, refreshPrefix+token).Err()
}
