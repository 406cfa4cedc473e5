package watch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"SocialSync/apps/sync/internal/feed"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID   string
	Name string
}

func itemKey(i item) string { return i.ID }

type source struct {
	mu    sync.Mutex
	items []item
	err   error
}

func (s *source) set(items ...item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
}

func (s *source) load(context.Context) ([]item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]item(nil), s.items...), nil
}

func waitUpdate[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case u := <-ch:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
	}
	var zero T
	return zero
}

func TestDiff(t *testing.T) {
	prev := []item{{"1", "a"}, {"2", "b"}, {"3", "c"}}
	next := []item{{"2", "b"}, {"3", "C"}, {"4", "d"}}

	u := Diff(prev, next, itemKey, nil)
	assert.Equal(t, []item{{"4", "d"}}, u.Added)
	assert.Equal(t, []item{{"3", "C"}}, u.Modified)
	assert.Equal(t, []item{{"1", "a"}}, u.Removed)
	assert.Equal(t, next, u.Items)

	assert.True(t, Diff(next, next, itemKey, nil).Empty())
}

func TestCollection_InitialEmptySnapshotIsDelivered(t *testing.T) {
	f := feed.NewMemoryFeed()
	src := &source{}
	updates := make(chan Update[item], 8)

	h, err := Collection(context.Background(), f, CollectionOptions[item]{
		Topics:   []string{"t"},
		Load:     src.load,
		Key:      itemKey,
		OnUpdate: func(u Update[item]) { updates <- u },
	})
	require.NoError(t, err)
	defer h.Stop()

	u := waitUpdate(t, updates)
	assert.True(t, u.Initial)
	assert.Empty(t, u.Items)
}

func TestCollection_NotificationTriggersDiff(t *testing.T) {
	f := feed.NewMemoryFeed()
	src := &source{}
	src.set(item{"1", "a"})
	updates := make(chan Update[item], 8)

	h, err := Collection(context.Background(), f, CollectionOptions[item]{
		Topics:   []string{"t"},
		Load:     src.load,
		Key:      itemKey,
		OnUpdate: func(u Update[item]) { updates <- u },
	})
	require.NoError(t, err)
	defer h.Stop()

	u := waitUpdate(t, updates)
	assert.Equal(t, []item{{"1", "a"}}, u.Added)

	src.set(item{"1", "a"}, item{"2", "b"})
	require.NoError(t, f.Publish(context.Background(), feed.Event{Topic: "t"}))
	u = waitUpdate(t, updates)
	assert.False(t, u.Initial)
	assert.Equal(t, []item{{"2", "b"}}, u.Added)
	assert.Len(t, u.Items, 2)

	// 无变化的通知不回调
	require.NoError(t, f.Publish(context.Background(), feed.Event{Topic: "t"}))
	select {
	case u := <-updates:
		t.Fatalf("unexpected update %+v", u)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCollection_ResyncPicksUpMissedChanges(t *testing.T) {
	f := feed.NewMemoryFeed()
	src := &source{}
	updates := make(chan Update[item], 8)

	h, err := Collection(context.Background(), f, CollectionOptions[item]{
		Topics:   []string{"t"},
		Load:     src.load,
		Key:      itemKey,
		Resync:   20 * time.Millisecond,
		OnUpdate: func(u Update[item]) { updates <- u },
	})
	require.NoError(t, err)
	defer h.Stop()
	waitUpdate(t, updates)

	src.set(item{"9", "z"})
	u := waitUpdate(t, updates)
	assert.Equal(t, []item{{"9", "z"}}, u.Added)
}

func TestCollection_InitialLoadErrorReleasesSubscription(t *testing.T) {
	f := feed.NewMemoryFeed()
	src := &source{err: errors.New("boom")}

	_, err := Collection(context.Background(), f, CollectionOptions[item]{
		Topics:   []string{"t"},
		Load:     src.load,
		Key:      itemKey,
		OnUpdate: func(Update[item]) {},
	})
	require.Error(t, err)
	assert.Equal(t, 0, f.SubscriberCount("t"))
}

func TestCollection_StopReleasesSubscription(t *testing.T) {
	f := feed.NewMemoryFeed()
	src := &source{}
	h, err := Collection(context.Background(), f, CollectionOptions[item]{
		Topics:   []string{"t"},
		Load:     src.load,
		Key:      itemKey,
		OnUpdate: func(Update[item]) {},
	})
	require.NoError(t, err)
	h.Stop()
	h.Stop()
	assert.Equal(t, 0, f.SubscriberCount("t"))
}

func TestValue_ReportsExistenceChanges(t *testing.T) {
	f := feed.NewMemoryFeed()
	var mu sync.Mutex
	val, exists := "", false
	updates := make(chan ValueUpdate[string], 8)

	h, err := Value(context.Background(), f, ValueOptions[string]{
		Topics: []string{"v"},
		Load: func(context.Context) (string, bool, error) {
			mu.Lock()
			defer mu.Unlock()
			return val, exists, nil
		},
		OnUpdate: func(u ValueUpdate[string]) { updates <- u },
	})
	require.NoError(t, err)
	defer h.Stop()

	u := waitUpdate(t, updates)
	assert.True(t, u.Initial)
	assert.False(t, u.Exists)

	mu.Lock()
	val, exists = "hello", true
	mu.Unlock()
	require.NoError(t, f.Publish(context.Background(), feed.Event{Topic: "v"}))
	u = waitUpdate(t, updates)
	assert.True(t, u.Exists)
	assert.Equal(t, "hello", u.Value)
}
