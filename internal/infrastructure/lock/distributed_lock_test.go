package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestPayoutLock_MutualExclusion(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	first := NewPayoutLock(client, 42, "req-1", time.Minute)
	second := NewPayoutLock(client, 42, "req-2", time.Minute)
	other := NewPayoutLock(client, 43, "req-3", time.Minute)

	ok, err := first.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "same seller must wait")

	ok, err = other.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "different sellers do not block each other")

	err = second.Lock(ctx, time.Millisecond, 3)
	assert.ErrorIs(t, err, ErrLockFailed)

	require.NoError(t, first.Unlock(ctx))
	require.NoError(t, second.Lock(ctx, time.Millisecond, 3))
}

func TestUnlock_DoesNotReleaseForeignLock(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	owner := NewPayoutLock(client, 7, "owner", time.Minute)
	intruder := NewPayoutLock(client, 7, "intruder", time.Minute)

	ok, err := owner.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, intruder.Unlock(ctx))

	val, err := mr.Get(owner.Key())
	require.NoError(t, err)
	assert.Equal(t, "owner", val)
}

func TestLock_ExpiresAfterTTL(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	l := NewPayoutLock(client, 9, "a", time.Second)
	ok, err := l.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = NewPayoutLock(client, 9, "b", time.Second).TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}
