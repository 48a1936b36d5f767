package lock

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs only against a real server: PERMIT_TEST_REDIS_ADDR=localhost:6379
func newTestRedisLocker(t *testing.T) *RedisLocker {
	t.Helper()
	addr := os.Getenv("PERMIT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PERMIT_TEST_REDIS_ADDR not set")
	}

	locker, err := NewRedisLocker(RedisConfig{
		Addr:      addr,
		KeyPrefix: "permit:test:" + uuid.NewString() + ":",
		TTL:       2 * time.Second,
		Retry:     5 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = locker.Close() })
	return locker
}

func TestRedisLocker_ExclusiveAndReentrant(t *testing.T) {
	locker := newTestRedisLocker(t)

	held, unlock, err := locker.Lock(context.Background(), "application:1")
	require.NoError(t, err)

	_, innerUnlock, err := locker.Lock(held, "application:1")
	require.NoError(t, err)
	innerUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err = locker.Lock(ctx, "application:1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()

	_, again, err := locker.Lock(context.Background(), "application:1")
	require.NoError(t, err)
	again()
}

func TestRedisLocker_ExpiredHolderCannotReleaseNewHolder(t *testing.T) {
	locker := newTestRedisLocker(t)
	locker.ttl = 50 * time.Millisecond

	_, staleUnlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	locker.ttl = 2 * time.Second
	_, unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	staleUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err = locker.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded, "new holder still owns the key")
}

func TestRedisLocker_ConcurrentUnlockReleasesOnce(t *testing.T) {
	locker := newTestRedisLocker(t)

	_, unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock()
		}()
	}
	wg.Wait()

	_, next, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err = locker.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded, "stale unlock must not free the next holder")
	next()
}
