package watch

import (
	"context"
	"errors"
	"time"

	"SocialSync/apps/sync/internal/feed"
	"SocialSync/pkg/logger"
)

// CollectionOptions 集合订阅参数
type CollectionOptions[T any] struct {
	Name     string   // 日志标识
	Topics   []string // 任一 topic 有通知即重查
	Load     func(ctx context.Context) ([]T, error)
	Key      func(T) string
	Equal    func(a, b T) bool // 为空时使用 reflect.DeepEqual
	Resync   time.Duration     // 兜底重查周期，<=0 关闭
	OnUpdate func(Update[T])
	OnError  func(error) // 重查失败，订阅继续
}

// Collection 订阅一个集合。初始快照加载失败时直接返回错误，不启动订阅。
// 回调在同一个 goroutine 中串行执行。
func Collection[T any](ctx context.Context, f feed.Feed, opts CollectionOptions[T]) (*Handle, error) {
	if opts.Load == nil || opts.Key == nil || opts.OnUpdate == nil {
		return nil, errors.New("watch: Load, Key and OnUpdate are required")
	}

	sub, err := f.Subscribe(ctx, opts.Topics...)
	if err != nil {
		return nil, err
	}
	items, err := opts.Load(ctx)
	if err != nil {
		_ = sub.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := newHandle(cancel)

	initial := Diff(nil, items, opts.Key, opts.Equal)
	initial.Initial = true

	go func() {
		defer close(h.done)
		defer sub.Close()

		opts.OnUpdate(initial)
		current := items

		reload := func() {
			next, err := opts.Load(runCtx)
			if err != nil {
				if runCtx.Err() != nil {
					return
				}
				logger.Warn(runCtx, "订阅重查失败",
					logger.String("watch", opts.Name),
					logger.ErrorField("error", err),
				)
				if opts.OnError != nil {
					opts.OnError(err)
				}
				return
			}
			u := Diff(current, next, opts.Key, opts.Equal)
			current = next
			if !u.Empty() && runCtx.Err() == nil {
				opts.OnUpdate(u)
			}
		}

		loop(runCtx, sub, opts.Resync, reload)
	}()
	return h, nil
}

// loop 等待通知或定时器，合并积压通知后执行一次 reload
func loop(ctx context.Context, sub feed.Subscription, resync time.Duration, reload func()) {
	var tick <-chan time.Time
	if resync > 0 {
		t := time.NewTicker(resync)
		defer t.Stop()
		tick = t.C
	}
	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			drain(events)
			reload()
		case <-tick:
			reload()
		}
	}
}

func drain(events <-chan feed.Event) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
