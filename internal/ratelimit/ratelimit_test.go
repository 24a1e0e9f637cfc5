package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoOpRateLimiter(t *testing.T) {
	limiter := &NoOpRateLimiter{}

	for i := 0; i < 100; i++ {
		allowed, err := limiter.Allow(context.Background(), "any")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	assert.NoError(t, limiter.Close())
}

func TestNewRedisRateLimiter_Disabled(t *testing.T) {
	limiter, err := NewRedisRateLimiter("redis://this-host-is-never-dialed:6379", 10, time.Minute, true)
	require.NoError(t, err)
	defer limiter.Close()

	allowed, err := limiter.Allow(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestNewRedisRateLimiter_InvalidURL(t *testing.T) {
	_, err := NewRedisRateLimiter("not a url", 10, time.Minute, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid redis URL")
}

func TestRedisRateLimiter_SlidingWindow(t *testing.T) {
	mr := miniredis.RunT(t)

	limiter, err := NewRedisRateLimiter("redis://"+mr.Addr(), 3, time.Minute, false)
	require.NoError(t, err)
	defer limiter.Close()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(context.Background(), "project-1")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d within the limit", i+1)
	}

	allowed, err := limiter.Allow(context.Background(), "project-1")
	require.NoError(t, err)
	assert.False(t, allowed, "fourth request must be rejected")

	// Other keys are counted independently.
	allowed, err = limiter.Allow(context.Background(), "project-2")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisRateLimiter_WindowSlides(t *testing.T) {
	mr := miniredis.RunT(t)

	limiter, err := NewRedisRateLimiter("redis://"+mr.Addr(), 1, 50*time.Millisecond, false)
	require.NoError(t, err)
	defer limiter.Close()

	allowed, err := limiter.Allow(context.Background(), "p")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = limiter.Allow(context.Background(), "p")
	require.NoError(t, err)
	require.False(t, allowed)

	// Past the window the old entry is evicted.
	time.Sleep(60 * time.Millisecond)
	allowed, err = limiter.Allow(context.Background(), "p")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisRateLimiter_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := NewRedisRateLimiter("redis://"+mr.Addr(), 10, time.Minute, false)
	require.NoError(t, err)
	defer limiter.Close()

	mr.Close()

	_, err = limiter.Allow(context.Background(), "p")
	assert.Error(t, err, "callers decide the fail-open policy, not the limiter")
}
