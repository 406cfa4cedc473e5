// Package memstore 进程内存储后端，实现与 MySQL 后端相同的仓储接口。
// 单实例部署（store.driver=memory）与引擎测试使用。
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"SocialSync/apps/sync/internal/feed"
	"SocialSync/apps/sync/internal/repository"
	"SocialSync/model"
	"SocialSync/pkg/util"
)

// Store 全部数据放在一把锁下，Batch 通过快照回滚实现原子性
type Store struct {
	mu   sync.RWMutex
	feed feed.Feed
	data dataset
}

type dataset struct {
	profiles map[string]model.Profile // email -> profile
	owners   []model.LinkOwner
	entries  []model.LinkEntry
	requests []model.FriendRequest
	convs    []model.ConversationIndex
	messages map[string][]model.Message // conversation_id -> 按 seq 升序
	entryID  int64
	profID   int64
}

func (d dataset) clone() dataset {
	out := d
	out.profiles = make(map[string]model.Profile, len(d.profiles))
	for k, v := range d.profiles {
		out.profiles[k] = v
	}
	out.owners = append([]model.LinkOwner(nil), d.owners...)
	out.entries = append([]model.LinkEntry(nil), d.entries...)
	out.requests = append([]model.FriendRequest(nil), d.requests...)
	out.convs = append([]model.ConversationIndex(nil), d.convs...)
	out.messages = make(map[string][]model.Message, len(d.messages))
	for k, v := range d.messages {
		out.messages[k] = append([]model.Message(nil), v...)
	}
	return out
}

// New 创建内存后端，f 为 nil 时不发布变更通知
func New(f feed.Feed) *Store {
	return &Store{
		feed: f,
		data: dataset{
			profiles: make(map[string]model.Profile),
			messages: make(map[string][]model.Message),
		},
	}
}

// Repositories 以仓储接口的形式暴露
func (s *Store) Repositories() repository.Store {
	return repository.Store{
		Profiles:      profileRepo{s},
		Links:         linkRepo{s},
		Requests:      requestRepo{s},
		Conversations: conversationRepo{s},
		Batcher:       s,
	}
}

func (s *Store) publish(ctx context.Context, kind string, topics ...string) {
	if s.feed == nil {
		return
	}
	for _, t := range topics {
		_ = s.feed.Publish(ctx, feed.Event{Topic: t, Kind: kind})
	}
}

// ==================== 资料 ====================

type profileRepo struct{ s *Store }

func (r profileRepo) GetByEmail(_ context.Context, email string) (*model.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.data.profiles[email]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r profileRepo) GetByPrincipal(_ context.Context, principalID string) (*model.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, p := range r.s.data.profiles {
		if p.PrincipalId == principalID {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}

func (r profileRepo) BatchGetByEmails(_ context.Context, emails []string) ([]*model.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*model.Profile, 0, len(emails))
	seen := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		if p, ok := r.s.data.profiles[e]; ok {
			p := p
			out = append(out, &p)
		}
	}
	return out, nil
}

func (r profileRepo) sorted() []model.Profile {
	all := make([]model.Profile, 0, len(r.s.data.profiles))
	for _, p := range r.s.data.profiles {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].SearchKey != all[j].SearchKey {
			return all[i].SearchKey < all[j].SearchKey
		}
		return all[i].Email < all[j].Email
	})
	return all
}

func (r profileRepo) ListAfter(_ context.Context, cursor repository.ProfileCursor, limit int) ([]*model.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*model.Profile, 0, limit)
	for _, p := range r.sorted() {
		if len(out) >= limit {
			break
		}
		if p.SearchKey > cursor.SearchKey || (p.SearchKey == cursor.SearchKey && p.Email > cursor.Email) {
			p := p
			out = append(out, &p)
		}
	}
	return out, nil
}

func (r profileRepo) SearchByPrefix(_ context.Context, prefix string, limit int) ([]*model.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	key := model.BuildSearchKey(prefix)
	out := make([]*model.Profile, 0, limit)
	for _, p := range r.sorted() {
		if len(out) >= limit {
			break
		}
		if strings.HasPrefix(p.SearchKey, key) {
			p := p
			out = append(out, &p)
		}
	}
	return out, nil
}

func (r profileRepo) Create(ctx context.Context, profile *model.Profile) error {
	r.s.mu.Lock()
	if _, ok := r.s.data.profiles[profile.Email]; ok {
		r.s.mu.Unlock()
		return repository.ErrDuplicateKey
	}
	for _, p := range r.s.data.profiles {
		if p.PrincipalId == profile.PrincipalId {
			r.s.mu.Unlock()
			return repository.ErrDuplicateKey
		}
	}
	r.s.data.profID++
	profile.Id = r.s.data.profID
	profile.SearchKey = model.BuildSearchKey(profile.DisplayName)
	r.s.data.profiles[profile.Email] = *profile
	r.s.mu.Unlock()

	r.s.publish(ctx, feed.KindChanged, feed.ProfileTopic(profile.Email))
	return nil
}

func (r profileRepo) UpdateDisplayName(ctx context.Context, email, displayName string) error {
	return r.update(ctx, email, func(p *model.Profile) {
		p.DisplayName = displayName
		p.SearchKey = model.BuildSearchKey(displayName)
	})
}

func (r profileRepo) UpdateAvatar(ctx context.Context, email, avatarURL string) error {
	return r.update(ctx, email, func(p *model.Profile) { p.AvatarURL = avatarURL })
}

func (r profileRepo) update(ctx context.Context, email string, fn func(p *model.Profile)) error {
	r.s.mu.Lock()
	p, ok := r.s.data.profiles[email]
	if !ok {
		r.s.mu.Unlock()
		return repository.ErrRecordNotFound
	}
	fn(&p)
	r.s.data.profiles[email] = p
	r.s.mu.Unlock()

	r.s.publish(ctx, feed.KindChanged, feed.ProfileTopic(email))
	return nil
}

// ==================== 好友链接 ====================

type linkRepo struct{ s *Store }

func (r linkRepo) GetOwners(_ context.Context, email string) ([]*model.LinkOwner, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.data.ownersOf(email), nil
}

func (r linkRepo) ListEntries(_ context.Context, ownerID string) ([]*model.LinkEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.LinkEntry
	for _, e := range r.s.data.entries {
		if e.OwnerId == ownerID {
			e := e
			out = append(out, &e)
		}
	}
	return out, nil
}

func (d *dataset) ownersOf(email string) []*model.LinkOwner {
	var out []*model.LinkOwner
	for _, o := range d.owners {
		if o.Email == email {
			o := o
			out = append(out, &o)
		}
	}
	return out
}

// ==================== 好友申请 ====================

type requestRepo struct{ s *Store }

func (r requestRepo) Create(ctx context.Context, req *model.FriendRequest) error {
	r.s.mu.Lock()
	if req.Id == "" {
		req.Id = util.NewUUID()
	}
	r.s.data.requests = append(r.s.data.requests, *req)
	r.s.mu.Unlock()

	r.s.publish(ctx, feed.KindChanged, feed.ReceivedRequestsTopic(req.ReceiverEmail), feed.SentRequestsTopic(req.SenderEmail))
	return nil
}

func (r requestRepo) Find(_ context.Context, sender, receiver string) ([]*model.FriendRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.data.findRequests(func(q model.FriendRequest) bool {
		return q.SenderEmail == sender && q.ReceiverEmail == receiver
	}), nil
}

func (r requestRepo) ListByReceiver(_ context.Context, receiver string) ([]*model.FriendRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.data.findRequests(func(q model.FriendRequest) bool { return q.ReceiverEmail == receiver }), nil
}

func (r requestRepo) ListBySender(_ context.Context, sender string) ([]*model.FriendRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.data.findRequests(func(q model.FriendRequest) bool { return q.SenderEmail == sender }), nil
}

func (r requestRepo) Delete(ctx context.Context, req *model.FriendRequest) error {
	r.s.mu.Lock()
	r.s.data.deleteRequest(req.Id)
	r.s.mu.Unlock()

	r.s.publish(ctx, feed.KindChanged, feed.ReceivedRequestsTopic(req.ReceiverEmail), feed.SentRequestsTopic(req.SenderEmail))
	return nil
}

func (d *dataset) findRequests(match func(model.FriendRequest) bool) []*model.FriendRequest {
	var out []*model.FriendRequest
	for _, q := range d.requests {
		if match(q) {
			q := q
			out = append(out, &q)
		}
	}
	return out
}

func (d *dataset) deleteRequest(id string) {
	kept := d.requests[:0]
	for _, q := range d.requests {
		if q.Id != id {
			kept = append(kept, q)
		}
	}
	d.requests = kept
}

// ==================== 会话 ====================

type conversationRepo struct{ s *Store }

func (r conversationRepo) FindByPair(_ context.Context, a, b string) ([]*model.ConversationIndex, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.data.convsOf(a, b), nil
}

func (d *dataset) convsOf(a, b string) []*model.ConversationIndex {
	var out []*model.ConversationIndex
	for _, c := range d.convs {
		if (c.ParticipantA == a && c.ParticipantB == b) || (c.ParticipantA == b && c.ParticipantB == a) {
			c := c
			out = append(out, &c)
		}
	}
	return out
}

func (r conversationRepo) ListLatest(_ context.Context, conversationID string, limit int) ([]*model.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	msgs := r.s.data.messages[conversationID]
	out := make([]*model.Message, 0, limit)
	for i := len(msgs) - 1; i >= 0 && len(out) < limit; i-- {
		m := msgs[i]
		out = append(out, &m)
	}
	return out, nil
}

func (r conversationRepo) ListBefore(_ context.Context, conversationID string, before int64, limit int) ([]*model.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	msgs := r.s.data.messages[conversationID]
	out := make([]*model.Message, 0, limit)
	for i := len(msgs) - 1; i >= 0 && len(out) < limit; i-- {
		if msgs[i].Seq < before {
			m := msgs[i]
			out = append(out, &m)
		}
	}
	return out, nil
}

func (r conversationRepo) ListAfter(_ context.Context, conversationID string, after int64, limit int) ([]*model.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*model.Message, 0, limit)
	for _, m := range r.s.data.messages[conversationID] {
		if len(out) >= limit {
			break
		}
		if m.Seq > after {
			m := m
			out = append(out, &m)
		}
	}
	return out, nil
}
