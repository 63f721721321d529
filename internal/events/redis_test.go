package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestPublisher(t *testing.T) (*RedisPublisher, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	pub, err := NewRedisPublisher(&redis.Options{Addr: mr.Addr()}, "test")
	require.NoError(t, err)
	t.Cleanup(func() { pub.Close() })
	return pub, mr
}

func TestNewRedisPublisherRejectsEmptyNamespace(t *testing.T) {
	_, err := NewRedisPublisher(&redis.Options{Addr: "localhost:6379"}, "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "namespace cannot be empty")
}

func TestPublishStoresHash(t *testing.T) {
	pub, mr := setupTestPublisher(t)
	ctx := context.Background()

	e := New(ItemTransmitted)
	e.QueueID = 3
	e.ItemID = 42
	e.Message = "[WIRE] [DAILY]: Budget_7"
	require.NoError(t, pub.Publish(ctx, e))

	key := EventKey("test", e.ID)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, "item.transmitted", mr.HGet(key, "type"))
	assert.Greater(t, mr.TTL(key), time.Duration(0))

	got, err := pub.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.Type, got.Type)
	assert.Equal(t, int64(3), got.QueueID)
	assert.Equal(t, int64(42), got.ItemID)
	assert.Equal(t, e.Message, got.Message)
	assert.True(t, e.At.Equal(got.At))
}

func TestGetMissingEventReturnsNil(t *testing.T) {
	pub, _ := setupTestPublisher(t)
	_, err := pub.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestPublishRejectsIncompleteEvent(t *testing.T) {
	pub, _ := setupTestPublisher(t)
	err := pub.Publish(context.Background(), Event{Type: EntrySaved})
	assert.Error(t, err)
}

func TestSubscribeReceivesPublishedEvents(t *testing.T) {
	pub, _ := setupTestPublisher(t)
	ctx := context.Background()

	sub, err := pub.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	e := New(EntryPublished)
	e.EntryID = 9
	require.NoError(t, pub.Publish(ctx, e))

	select {
	case got := <-sub.Events():
		assert.Equal(t, e.ID, got.ID)
		assert.Equal(t, EntryPublished, got.Type)
		assert.Equal(t, int64(9), got.EntryID)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.Publish(context.Background(), New(EntrySaved)))
}
