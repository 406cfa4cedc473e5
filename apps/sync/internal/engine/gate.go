package engine

import (
	"sync"

	"SocialSync/pkg/broadcast"
)

// gate 一代组件写入会话级广播器的唯一入口。
// 主体切换时先关闭旧 gate 再清空广播器，旧组件迟到的发布会被丢弃。
type gate[T any] struct {
	mu     sync.Mutex
	closed bool
	out    *broadcast.Broadcaster[T]
}

func newGate[T any](out *broadcast.Broadcaster[T]) *gate[T] {
	return &gate[T]{out: out}
}

func (g *gate[T]) publish(v T) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.out.Publish(v)
	return true
}

func (g *gate[T]) close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
}
