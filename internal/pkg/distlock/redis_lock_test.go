package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestRedisLockMutualExclusion(t *testing.T) {
	client, _ := testClient(t)
	ctx := context.Background()

	first := NewRedisLock(client, "flusher:cycle", time.Minute)
	second := NewRedisLock(client, "flusher:cycle", time.Minute)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "held lock must not be acquirable")

	require.NoError(t, first.Release(ctx))

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "released lock must be acquirable again")
}

func TestRedisLockReleaseOnlyByOwner(t *testing.T) {
	client, mr := testClient(t)
	ctx := context.Background()

	owner := NewRedisLock(client, "flusher:cycle", time.Minute)
	ok, err := owner.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	intruder := NewRedisLock(client, "flusher:cycle", time.Minute)
	require.NoError(t, intruder.Release(ctx))

	assert.True(t, mr.Exists("lock:flusher:cycle"), "non-owner release must not drop the lock")
}

func TestRedisLockExpires(t *testing.T) {
	client, mr := testClient(t)
	ctx := context.Background()

	lock := NewRedisLock(client, "flusher:cycle", time.Second)
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	other := NewRedisLock(client, "flusher:cycle", time.Minute)
	ok, err = other.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "expired lock must be acquirable")
}

func TestRedisLockExtend(t *testing.T) {
	client, mr := testClient(t)
	ctx := context.Background()

	lock := NewRedisLock(client, "flusher:cycle", time.Second)
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, lock.Extend(ctx, time.Minute))
	mr.FastForward(2 * time.Second)

	assert.True(t, mr.Exists("lock:flusher:cycle"), "extended lock must outlive the original TTL")
}
