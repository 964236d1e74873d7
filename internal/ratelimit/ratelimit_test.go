package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/manabi/internal/ratelimit"
)

func TestMemoryLimiter_BurstThenReject(t *testing.T) {
	l := ratelimit.NewMemoryLimiter(1, 3)
	defer l.Close()

	ctx := context.Background()
	for i := range 3 {
		ok, err := l.Allow(ctx, "user:alice")
		require.NoError(t, err)
		assert.True(t, ok, "request %d should be within burst", i+1)
	}

	ok, err := l.Allow(ctx, "user:alice")
	require.NoError(t, err)
	assert.False(t, ok, "burst exhausted")
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	l := ratelimit.NewMemoryLimiter(1, 1)
	defer l.Close()

	ctx := context.Background()

	ok, err := l.Allow(ctx, "user:alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Allow(ctx, "user:alice")
	require.NoError(t, err)
	assert.False(t, ok)

	// A different key still has its full burst.
	ok, err = l.Allow(ctx, "user:bob")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLimiter_TokensRefill(t *testing.T) {
	// 100 tokens/sec so the refill is observable without a slow test.
	l := ratelimit.NewMemoryLimiter(100, 1)
	defer l.Close()

	ctx := context.Background()

	ok, _ := l.Allow(ctx, "k")
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "k")
	assert.False(t, ok)

	time.Sleep(50 * time.Millisecond)

	ok, _ = l.Allow(ctx, "k")
	assert.True(t, ok, "tokens should refill over time")
}

func TestNoopLimiter_AlwaysAllows(t *testing.T) {
	l := ratelimit.NoopLimiter{}
	for range 100 {
		ok, err := l.Allow(context.Background(), "anything")
		require.NoError(t, err)
		assert.True(t, ok)
	}
}
