package engine

import (
	"context"
	"strings"
	"sync"

	"SocialSync/apps/sync/internal/feed"
	"SocialSync/apps/sync/internal/repository"
	"SocialSync/apps/sync/internal/watch"
	"SocialSync/model"
	"SocialSync/pkg/logger"
)

// RelationSync 好友列表同步：根记录 + 条目集合 -> 完整资料列表
type RelationSync struct {
	deps *Deps
	self Principal
	// list 每次好友集合确定后回调 onChange（含空集合）
	list *profileList

	mu     sync.Mutex
	owner  *model.LinkOwner
	handle *watch.Handle

	// 好友资料变更订阅，只在订阅回调 goroutine 中重建
	profileSub    feed.Subscription
	profileCancel context.CancelFunc
	profileDone   chan struct{}
	profileTopics []string
}

func newRelationSync(deps *Deps, self Principal, out *gate[[]model.Profile], onChange func([]string)) *RelationSync {
	return &RelationSync{
		deps: deps,
		self: self,
		list: newProfileList(deps, "links:"+self.Email, out, onChange),
	}
}

// Start 确保根记录存在并开始订阅条目
func (r *RelationSync) Start(ctx context.Context) error {
	owner, err := r.ensureOwner(ctx)
	if err != nil {
		return err
	}

	handle, err := watch.Collection(ctx, r.deps.Feed, watch.CollectionOptions[*model.LinkEntry]{
		Name:   "links:" + r.self.Email,
		Topics: []string{feed.LinksTopic(r.self.Email)},
		Load: func(ctx context.Context) ([]*model.LinkEntry, error) {
			entries, err := r.deps.Store.Links.ListEntries(ctx, owner.Id)
			if err != nil {
				return nil, err
			}
			kept := entries[:0]
			for _, e := range entries {
				if e.Email != r.self.Email {
					kept = append(kept, e)
				}
			}
			return kept, nil
		},
		Key:    func(e *model.LinkEntry) string { return e.Email },
		Equal:  func(a, b *model.LinkEntry) bool { return a.Email == b.Email },
		Resync: r.deps.Config.ResyncInterval,
		OnUpdate: func(u watch.Update[*model.LinkEntry]) {
			emails := make([]string, 0, len(u.Items))
			for _, e := range u.Items {
				emails = append(emails, e.Email)
			}
			emails = uniqueStrings(emails)
			r.followProfiles(ctx, emails)
			r.list.set(ctx, emails)
		},
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.owner = owner
	r.handle = handle
	r.mu.Unlock()
	return nil
}

// ensureOwner 点查根记录，不存在时在事务里比较并创建
func (r *RelationSync) ensureOwner(ctx context.Context) (*model.LinkOwner, error) {
	owners, err := r.deps.Store.Links.GetOwners(ctx, r.self.Email)
	if err != nil {
		return nil, err
	}
	if len(owners) == 0 {
		err = r.deps.Store.Batcher.Batch(ctx, func(tx repository.Tx) error {
			var txErr error
			owners, txErr = tx.EnsureLinkOwner(r.self.Email)
			return txErr
		})
		if err != nil {
			return nil, err
		}
	}
	if len(owners) != 1 {
		return nil, integrityViolation(ctx, KindLinkOwner, r.self.Email, len(owners))
	}
	return owners[0], nil
}

// followProfiles 按当前好友集合重建资料变更订阅。
// 任一好友资料变更（可能来自其他节点）时剔除本地缓存并重新发布好友列表。
func (r *RelationSync) followProfiles(ctx context.Context, emails []string) {
	topics := make([]string, 0, len(emails))
	for _, e := range emails {
		topics = append(topics, feed.ProfileTopic(e))
	}
	if sameStrings(topics, r.profileTopics) && r.profileSub != nil {
		return
	}
	r.unfollowProfiles()
	r.profileTopics = topics
	if len(topics) == 0 {
		return
	}

	sub, err := r.deps.Feed.Subscribe(ctx, topics...)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn(ctx, "好友资料订阅失败", logger.ErrorField("error", err))
		}
		r.profileTopics = nil
		return
	}
	followCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.profileSub = sub
	r.profileCancel = cancel
	r.profileDone = done

	go func() {
		defer close(done)
		events := sub.Events()
		for {
			select {
			case <-followCtx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				r.invalidate(ev)
				// 合并积压的通知，只重新发布一次
				for pending := true; pending; {
					select {
					case ev, ok := <-events:
						if !ok {
							return
						}
						r.invalidate(ev)
					default:
						pending = false
					}
				}
				r.list.refresh(followCtx)
			}
		}
	}()
}

func (r *RelationSync) invalidate(ev feed.Event) {
	if email, ok := strings.CutPrefix(ev.Topic, feed.ProfileTopic("")); ok {
		r.deps.Resolver.Invalidate(email)
	}
}

// unfollowProfiles 关闭资料订阅并等待其 goroutine 退出
func (r *RelationSync) unfollowProfiles() {
	if r.profileSub == nil {
		return
	}
	r.profileCancel()
	_ = r.profileSub.Close()
	<-r.profileDone
	r.profileSub = nil
	r.profileCancel = nil
	r.profileDone = nil
	r.profileTopics = nil
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Stop 取消订阅并丢弃根记录缓存
func (r *RelationSync) Stop() {
	r.mu.Lock()
	h := r.handle
	r.handle = nil
	r.owner = nil
	r.mu.Unlock()
	if h != nil {
		h.Stop()
	}
	// 订阅回调已退出，资料订阅不再被并发重建
	r.unfollowProfiles()
	r.list.reset()
}

// Owner 当前缓存的根记录
func (r *RelationSync) Owner() *model.LinkOwner {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.owner
}
