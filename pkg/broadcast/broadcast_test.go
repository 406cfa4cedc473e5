package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesLatestThenUpdates(t *testing.T) {
	b := New[[]string](4)
	b.Publish([]string{"a"})

	ch, cancel := b.Subscribe()
	defer cancel()

	assert.Equal(t, []string{"a"}, <-ch)
	b.Publish([]string{"a", "b"})
	assert.Equal(t, []string{"a", "b"}, <-ch)
}

func TestSlowSubscriberKeepsNewest(t *testing.T) {
	b := New[int](1)
	ch, cancel := b.Subscribe()
	defer cancel()

	for i := 1; i <= 10; i++ {
		b.Publish(i)
	}
	assert.Equal(t, 10, <-ch)
	select {
	case v := <-ch:
		t.Fatalf("unexpected extra value %d", v)
	default:
	}
}

func TestClearDropsCachedSnapshot(t *testing.T) {
	b := New[string](2)
	b.Publish("alice-data")
	b.Clear()

	_, ok := b.Latest()
	assert.False(t, ok)

	ch, cancel := b.Subscribe()
	defer cancel()
	select {
	case v := <-ch:
		t.Fatalf("stale snapshot leaked: %q", v)
	default:
	}
}

func TestCancelAndClose(t *testing.T) {
	b := New[int](1)
	ch1, cancel1 := b.Subscribe()
	ch2, _ := b.Subscribe()
	require.Equal(t, 2, b.SubscriberCount())

	cancel1()
	cancel1()
	_, open := <-ch1
	assert.False(t, open)
	assert.Equal(t, 1, b.SubscriberCount())

	b.Close()
	_, open = <-ch2
	assert.False(t, open)

	ch3, _ := b.Subscribe()
	_, open = <-ch3
	assert.False(t, open)
	b.Publish(1)
}
