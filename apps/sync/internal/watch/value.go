package watch

import (
	"context"
	"errors"
	"reflect"
	"time"

	"SocialSync/apps/sync/internal/feed"
	"SocialSync/pkg/logger"
)

// ValueUpdate 单值订阅的一次回调
type ValueUpdate[T any] struct {
	Value   T
	Exists  bool
	Initial bool
}

// ValueOptions 单值订阅参数
type ValueOptions[T any] struct {
	Name     string
	Topics   []string
	Load     func(ctx context.Context) (T, bool, error)
	Equal    func(a, b T) bool
	Resync   time.Duration
	OnUpdate func(ValueUpdate[T])
	OnError  func(error)
}

// Value 订阅单个值，值或存在性变化时回调
func Value[T any](ctx context.Context, f feed.Feed, opts ValueOptions[T]) (*Handle, error) {
	if opts.Load == nil || opts.OnUpdate == nil {
		return nil, errors.New("watch: Load and OnUpdate are required")
	}
	equal := opts.Equal
	if equal == nil {
		equal = func(a, b T) bool { return reflect.DeepEqual(a, b) }
	}

	sub, err := f.Subscribe(ctx, opts.Topics...)
	if err != nil {
		return nil, err
	}
	val, exists, err := opts.Load(ctx)
	if err != nil {
		_ = sub.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := newHandle(cancel)

	go func() {
		defer close(h.done)
		defer sub.Close()

		opts.OnUpdate(ValueUpdate[T]{Value: val, Exists: exists, Initial: true})
		cur, curExists := val, exists

		reload := func() {
			next, ok, err := opts.Load(runCtx)
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
			if ok == curExists && (!ok || equal(cur, next)) {
				return
			}
			cur, curExists = next, ok
			if runCtx.Err() == nil {
				opts.OnUpdate(ValueUpdate[T]{Value: next, Exists: ok})
			}
		}

		loop(runCtx, sub, opts.Resync, reload)
	}()
	return h, nil
}
