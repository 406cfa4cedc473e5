package feed

import (
	"context"
	"sync"
	"time"
)

const memorySubscriptionBuffer = 64

// MemoryFeed 进程内总线，单实例部署与测试使用
type MemoryFeed struct {
	mu     sync.RWMutex
	topics map[string]map[*memorySubscription]struct{}
	closed bool
}

// NewMemoryFeed 创建进程内总线
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{topics: make(map[string]map[*memorySubscription]struct{})}
}

func (f *MemoryFeed) Publish(_ context.Context, ev Event) error {
	if ev.At == 0 {
		ev.At = time.Now().UnixMilli()
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return ErrClosed
	}
	for sub := range f.topics[ev.Topic] {
		sub.offer(ev)
	}
	return nil
}

func (f *MemoryFeed) Subscribe(_ context.Context, topics ...string) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	sub := &memorySubscription{
		feed:   f,
		topics: topics,
		ch:     make(chan Event, memorySubscriptionBuffer),
	}
	for _, t := range topics {
		set, ok := f.topics[t]
		if !ok {
			set = make(map[*memorySubscription]struct{})
			f.topics[t] = set
		}
		set[sub] = struct{}{}
	}
	return sub, nil
}

// SubscriberCount 某 topic 的订阅数（测试用于检查订阅泄漏）
func (f *MemoryFeed) SubscriberCount(topic string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.topics[topic])
}

// Close 关闭总线及全部订阅
func (f *MemoryFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	for t, set := range f.topics {
		for sub := range set {
			sub.closeLocked()
		}
		delete(f.topics, t)
	}
	return nil
}

type memorySubscription struct {
	feed   *MemoryFeed
	topics []string
	ch     chan Event
	once   sync.Once
}

func (s *memorySubscription) Events() <-chan Event { return s.ch }

// offer 缓冲满时丢弃：积压的通知已足以触发重查
func (s *memorySubscription) offer(ev Event) {
	select {
	case s.ch <- ev:
	default:
	}
}

func (s *memorySubscription) Close() error {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	for _, t := range s.topics {
		if set, ok := s.feed.topics[t]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.feed.topics, t)
			}
		}
	}
	s.closeLocked()
	return nil
}

func (s *memorySubscription) closeLocked() {
	s.once.Do(func() { close(s.ch) })
}
