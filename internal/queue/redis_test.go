package queue_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/courier-chat/courier/internal/queue"
)

func newRedisStore(t *testing.T) (*queue.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return queue.NewRedisStore(client, "courier:"), mr
}

func TestRedisStoreFIFO(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Push(ctx, "b", msg("m1")))
	require.NoError(t, store.Push(ctx, "b", msg("m2")))

	first, ok, err := store.PopReserve(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "m1", first.ID)

	second, ok, err := store.PopReserve(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "m2", second.ID)
}

func TestRedisStorePopReserveMovesBetweenLists(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Push(ctx, "b", msg("m1")))

	_, ok, err := store.PopReserve(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)

	queued, err := mr.List("courier:b")
	require.Error(t, err, "queue list should be gone once empty")
	require.Empty(t, queued)

	inflight, err := mr.List("courier:b:inflight")
	require.NoError(t, err)
	require.Len(t, inflight, 1)
}

func TestRedisStorePopReserveEmpty(t *testing.T) {
	store, _ := newRedisStore(t)

	_, ok, err := store.PopReserve(context.Background(), "nobody")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisStoreRequeueHead(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Push(ctx, "b", msg("m1")))
	require.NoError(t, store.Push(ctx, "b", msg("m2")))

	m1, _, err := store.PopReserve(ctx, "b")
	require.NoError(t, err)
	require.NoError(t, store.RequeueHead(ctx, "b", m1))

	reserved, err := store.Reserved(ctx, "b")
	require.NoError(t, err)
	require.EqualValues(t, 0, reserved)

	next, _, err := store.PopReserve(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, "m1", next.ID)
}

func TestRedisStoreRequeueTailWithUpdatedAttempts(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Push(ctx, "b", msg("m1")))
	require.NoError(t, store.Push(ctx, "b", msg("m2")))

	m1, _, err := store.PopReserve(ctx, "b")
	require.NoError(t, err)

	updated := m1
	updated.Attempts = 1
	require.NoError(t, store.RequeueTail(ctx, "b", m1, updated))

	next, _, err := store.PopReserve(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, "m2", next.ID)

	last, _, err := store.PopReserve(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, "m1", last.ID)
	require.Equal(t, 1, last.Attempts)
}

func TestRedisStoreDiscard(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Push(ctx, "b", msg("m1")))
	m1, _, err := store.PopReserve(ctx, "b")
	require.NoError(t, err)

	require.NoError(t, store.Discard(ctx, "b", m1))
	require.ErrorIs(t, store.Discard(ctx, "b", m1), queue.ErrNotReserved)
	require.False(t, mr.Exists("courier:b:inflight"))
}

func TestRedisStoreCounts(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Push(ctx, "b", msg("m1")))
	require.NoError(t, store.Push(ctx, "b", msg("m2")))
	_, _, err := store.PopReserve(ctx, "b")
	require.NoError(t, err)

	pending, err := store.Pending(ctx, "b")
	require.NoError(t, err)
	require.EqualValues(t, 1, pending)

	reserved, err := store.Reserved(ctx, "b")
	require.NoError(t, err)
	require.EqualValues(t, 1, reserved)
}

func TestRedisStorePushRejectsEmptyChannel(t *testing.T) {
	store, _ := newRedisStore(t)
	err := store.Push(context.Background(), "", msg("m1"))
	require.ErrorIs(t, err, queue.ErrMissingDest)
}
