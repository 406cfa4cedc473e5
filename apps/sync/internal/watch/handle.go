package watch

import (
	"context"
	"sync"
)

// Handle 一个正在运行的订阅
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func newHandle(cancel context.CancelFunc) *Handle {
	return &Handle{cancel: cancel, done: make(chan struct{})}
}

// Cancel 请求停止，不等待
func (h *Handle) Cancel() {
	h.once.Do(h.cancel)
}

// Stop 停止并等待回调 goroutine 退出。不得在回调内部调用。
func (h *Handle) Stop() {
	h.Cancel()
	<-h.done
}

// Done 订阅 goroutine 退出后关闭
func (h *Handle) Done() <-chan struct{} { return h.done }
