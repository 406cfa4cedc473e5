package engine

import (
	"context"
	"sync"

	"SocialSync/model"
	"SocialSync/pkg/logger"
)

// profileList 邮箱集合 -> 资料列表的发布端。
// 多个来源（订阅回调、本地乐观移除、资料变更）都可能改写集合，
// 解析在锁外进行，发布前按版本号比对，只有最新一次输入的结果会被发布。
type profileList struct {
	deps *Deps
	name string
	out  *gate[[]model.Profile]

	// onChange 发布成功后回调，持有 mu 时调用，不得回到本列表
	onChange func(emails []string)

	mu      sync.Mutex
	version uint64
	loaded  bool
	emails  []string
}

func newProfileList(deps *Deps, name string, out *gate[[]model.Profile], onChange func([]string)) *profileList {
	return &profileList{deps: deps, name: name, out: out, onChange: onChange}
}

// set 替换整个集合并发布
func (l *profileList) set(ctx context.Context, emails []string) {
	emails = uniqueStrings(emails)
	l.mu.Lock()
	l.version++
	v := l.version
	l.loaded = true
	l.emails = emails
	l.mu.Unlock()

	l.resolve(ctx, v, emails)
}

// remove 从当前集合移除 email，集合不变时不发布
func (l *profileList) remove(ctx context.Context, email string) {
	l.mu.Lock()
	kept := make([]string, 0, len(l.emails))
	for _, e := range l.emails {
		if e != email {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(l.emails) {
		l.mu.Unlock()
		return
	}
	l.version++
	v := l.version
	l.emails = kept
	l.mu.Unlock()

	l.resolve(ctx, v, kept)
}

// refresh 集合不变，重新解析资料（缓存剔除后使用）
func (l *profileList) refresh(ctx context.Context) {
	l.mu.Lock()
	if !l.loaded {
		l.mu.Unlock()
		return
	}
	l.version++
	v := l.version
	emails := l.emails
	l.mu.Unlock()

	l.resolve(ctx, v, emails)
}

// current 当前集合的副本
func (l *profileList) current() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.emails...)
}

// reset 丢弃集合，之前发起的解析不再发布
func (l *profileList) reset() {
	l.mu.Lock()
	l.version++
	l.loaded = false
	l.emails = nil
	l.mu.Unlock()
}

func (l *profileList) resolve(ctx context.Context, v uint64, emails []string) {
	profiles, err := l.deps.Resolver.Resolve(ctx, emails)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn(ctx, "资料解析失败", logger.String("list", l.name), logger.ErrorField("error", err))
		}
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if v != l.version {
		// 解析期间集合已被更新的输入取代
		return
	}
	if !l.out.publish(profiles) {
		return
	}
	if l.onChange != nil {
		l.onChange(emails)
	}
}
