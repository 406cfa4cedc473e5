// Package broadcast 提供单生产者、多消费者的快照广播。
//
// 每次 Publish 的值都应是完整画面（不可变快照），因此慢消费者只需要最新值：
// 订阅者缓冲满时丢弃最旧的一条再写入。新订阅者会先收到最近一次快照。
package broadcast

import "sync"

// Broadcaster 快照广播器，零值不可用，使用 New 创建
type Broadcaster[T any] struct {
	mu      sync.Mutex
	subs    map[uint64]chan T
	nextID  uint64
	last    T
	hasLast bool
	closed  bool
	buffer  int
}

// New 创建广播器，buffer 为每个订阅者的缓冲长度（至少 1）
func New[T any](buffer int) *Broadcaster[T] {
	if buffer < 1 {
		buffer = 1
	}
	return &Broadcaster[T]{
		subs:   make(map[uint64]chan T),
		buffer: buffer,
	}
}

// Publish 发布一次快照，永不阻塞
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.last = v
	b.hasLast = true
	for _, ch := range b.subs {
		offer(ch, v)
	}
}

// Subscribe 订阅，返回只读通道和取消函数（可重复调用）
func (b *Broadcaster[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	if b.hasLast {
		ch <- b.last
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Latest 返回最近一次快照
func (b *Broadcaster[T]) Latest() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last, b.hasLast
}

// Clear 丢弃缓存的最近快照，不通知订阅者。
// 用于主体切换：后来的订阅者不能看到上一个主体的数据。
func (b *Broadcaster[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	var zero T
	b.last = zero
	b.hasLast = false
	for _, ch := range b.subs {
		drain(ch)
	}
}

// SubscriberCount 当前订阅者数量
func (b *Broadcaster[T]) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close 关闭全部订阅通道，之后的 Publish 被忽略
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// offer 非阻塞写入；缓冲满时挤掉最旧的一条
func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}

func drain[T any](ch chan T) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
