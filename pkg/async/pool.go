package async

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"SocialSync/config"
	"SocialSync/pkg/ctxmeta"
	"SocialSync/pkg/logger"

	"github.com/panjf2000/ants/v2"
)

var (
	global   *ants.Pool
	globalMu sync.RWMutex
	cfgCopy  config.AsyncConfig
)

// ContextPropagator 从父 ctx 提取需要透传的字段，默认复制链路元数据。
var ContextPropagator = ctxmeta.Detach

// ErrNotInitialized 表示协程池尚未初始化。
var ErrNotInitialized = errors.New("async pool not initialized")

// Pool 返回全局协程池（未初始化时为 nil）。
func Pool() *ants.Pool {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}

// Build 根据配置创建协程池实例。
func Build(cfg config.AsyncConfig) (*ants.Pool, error) {
	opts := []ants.Option{
		ants.WithMaxBlockingTasks(cfg.MaxBlockingTasks),
		ants.WithExpiryDuration(cfg.ExpiryDuration),
		ants.WithPanicHandler(func(p any) {
			logger.Error(context.Background(), "async task panic",
				logger.Any("panic", p),
				logger.String("stack", string(debug.Stack())),
			)
		}),
	}
	if cfg.Nonblocking {
		opts = append(opts, ants.WithNonblocking(true))
	}
	return ants.NewPool(cfg.PoolSize, opts...)
}

// Init 初始化全局协程池（仅需在进程启动时调用一次）。
func Init(cfg config.AsyncConfig) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if global != nil {
		return nil
	}
	p, err := Build(cfg)
	if err != nil {
		return err
	}
	global = p
	cfgCopy = cfg
	return nil
}

// Submit 将任务投递到全局协程池。
func Submit(task func()) error {
	p := Pool()
	if p == nil {
		return ErrNotInitialized
	}
	return p.Submit(task)
}

// Release 优雅释放协程池资源（等待任务执行完）。
func Release() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if global == nil {
		return nil
	}
	var err error
	if cfgCopy.ReleaseTimeout > 0 {
		err = global.ReleaseTimeout(cfgCopy.ReleaseTimeout)
	} else {
		global.Release()
	}
	global = nil
	return err
}

// RunSafe 在协程池中执行旁路任务：带超时、recover，并透传链路元数据。
// 协程池未初始化时（单测、memory 模式）退化为独立 goroutine。
func RunSafe(ctx context.Context, task func(ctx context.Context), timeout time.Duration) {
	if task == nil {
		return
	}
	if timeout <= 0 {
		timeout = time.Minute
	}

	baseCtx := context.Background()
	if ContextPropagator != nil && ctx != nil {
		baseCtx = ContextPropagator(ctx)
	}
	runCtx, cancel := context.WithTimeout(baseCtx, timeout)

	wrap := func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				logger.Error(runCtx, "async task panic",
					logger.Any("panic", r),
					logger.String("stack", string(debug.Stack())),
				)
			}
		}()

		task(runCtx)
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			logger.Warn(runCtx, "async task timeout", logger.Duration("timeout", timeout))
		}
	}

	err := Submit(wrap)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotInitialized):
		go wrap()
	default:
		cancel()
		logger.Error(baseCtx, "async submit failed",
			logger.ErrorField("error", err),
			logger.Duration("timeout", timeout),
		)
	}
}
