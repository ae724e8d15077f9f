package startup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kacharaalert/internal/storage/memory"
)

func TestOpenStoreMemory(t *testing.T) {
	st, err := OpenStore(context.Background(), "memory", "", time.Second)
	require.NoError(t, err)
	_, ok := st.(*memory.Client)
	assert.True(t, ok)
}

func TestOpenStoreRedisGivesUp(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := OpenStore(ctx, "redis", "redis://127.0.0.1:1/0", 100*time.Millisecond)
	assert.Error(t, err)
}

func TestOpenStoreRedisBadURL(t *testing.T) {
	_, err := OpenStore(context.Background(), "redis", "not a url", 100*time.Millisecond)
	assert.Error(t, err)
}
