package presence

import (
	"context"
	"testing"
	"time"

	"SocialSync/apps/sync/internal/feed"
	"SocialSync/apps/sync/internal/repository"
	"SocialSync/model"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConn_DropFiresArmedHookOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	ch := NewChannel(store, feed.NewMemoryFeed(), 0)
	conn := ch.Connect("dev-1")

	require.NoError(t, conn.SetValue(ctx, "a@x.io", true))
	conn.OnDisconnect("a@x.io").SetValue(false)
	assert.True(t, conn.Armed("a@x.io"))

	conn.Drop(ctx)
	rec, err := ch.Get(ctx, "a@x.io")
	require.NoError(t, err)
	assert.False(t, rec.Online)

	// 第二次 Drop 不再写入
	require.NoError(t, store.Set(ctx, model.PresenceRecord{Email: "a@x.io", Online: true, DeviceId: "dev-2"}))
	conn.Drop(ctx)
	rec, err = ch.Get(ctx, "a@x.io")
	require.NoError(t, err)
	assert.True(t, rec.Online)
	assert.True(t, conn.Dropped())
}

func TestConn_CancelledHookDoesNotFire(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	ch := NewChannel(store, nil, 0)
	conn := ch.Connect("dev-1")

	require.NoError(t, conn.SetValue(ctx, "a@x.io", true))
	hook := conn.OnDisconnect("a@x.io")
	assert.Same(t, hook, conn.OnDisconnect("a@x.io"))
	hook.SetValue(false)
	hook.Cancel()

	conn.Drop(ctx)
	rec, err := ch.Get(ctx, "a@x.io")
	require.NoError(t, err)
	assert.True(t, rec.Online)
}

func TestChannel_WatchReportsMissingAsOffline(t *testing.T) {
	ctx := context.Background()
	f := feed.NewMemoryFeed()
	ch := NewChannel(NewMemoryStore(f), f, 0)

	updates := make(chan model.PresenceRecord, 4)
	h, err := ch.Watch(ctx, "b@x.io", func(rec model.PresenceRecord) { updates <- rec })
	require.NoError(t, err)
	defer h.Stop()

	first := <-updates
	assert.Equal(t, "b@x.io", first.Email)
	assert.False(t, first.Online)

	require.NoError(t, ch.SetValue(ctx, model.PresenceRecord{Email: "b@x.io", Online: true, DeviceId: "d"}))
	select {
	case rec := <-updates:
		assert.True(t, rec.Online)
	case <-time.After(time.Second):
		t.Fatal("presence change not delivered")
	}
}

func TestMemoryStore_TouchOnlyOwner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)
	require.NoError(t, s.Set(ctx, model.PresenceRecord{Email: "a@x.io", Online: true, DeviceId: "d1", UpdatedAt: 1}))

	require.NoError(t, s.Touch(ctx, "a@x.io", "d2"))
	rec, _, _ := s.Get(ctx, "a@x.io")
	assert.Equal(t, int64(1), rec.UpdatedAt)

	require.NoError(t, s.Touch(ctx, "a@x.io", "d1"))
	rec, _, _ = s.Get(ctx, "a@x.io")
	assert.Greater(t, rec.UpdatedAt, int64(1))
}

func TestRedisStore_ErrorsAreWrapped(t *testing.T) {
	ctx := context.Background()
	// 没有监听的端口，所有命令立即失败
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	s := NewRedisStore(client, nil, time.Second)

	_, ok, err := s.Get(ctx, "a@x.io")
	require.ErrorIs(t, err, repository.ErrRedis)
	assert.False(t, ok)

	err = s.Set(ctx, model.PresenceRecord{Email: "a@x.io", Online: true, DeviceId: "dev-1"})
	assert.ErrorIs(t, err, repository.ErrRedis)

	// 重试队列未就绪时只记日志，错误照常返回
	assert.ErrorIs(t, s.Touch(ctx, "a@x.io", "dev-1"), repository.ErrRedis)
}
