package engine

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"SocialSync/apps/sync/internal/feed"
	"SocialSync/apps/sync/internal/memstore"
	"SocialSync/apps/sync/internal/presence"
	"SocialSync/apps/sync/internal/repository"
	"SocialSync/apps/sync/mq"
	"SocialSync/config"
	"SocialSync/model"
	"SocialSync/pkg/broadcast"

	"github.com/stretchr/testify/require"
)

const (
	waitTimeout = 3 * time.Second
	seqBase     = 1000
)

// recordingEvents 记录发出的领域事件
type recordingEvents struct {
	mu     sync.Mutex
	events []mq.Event
}

func (r *recordingEvents) PublishEvent(_ context.Context, ev mq.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, string(ev.Type))
	}
	return out
}

type harness struct {
	feed     *feed.MemoryFeed
	store    *memstore.Store
	repos    repository.Store
	presence *presence.MemoryStore
	channel  *presence.Channel
	events   *recordingEvents
	engine   *Engine
	deps     *Deps
}

func testConfig() config.SyncConfig {
	cfg := config.DefaultSyncConfig()
	cfg.MessageWindow = 5
	cfg.HistoryPageSize = 5
	cfg.SuggestionQuota = 5
	cfg.SuggestionPageSize = 3
	cfg.ResyncInterval = 100 * time.Millisecond
	cfg.ProfileCacheTTL = time.Minute
	return cfg
}

func newHarness(t *testing.T, cfg config.SyncConfig) *harness {
	t.Helper()
	f := feed.NewMemoryFeed()
	store := memstore.New(f)
	pstore := presence.NewMemoryStore(f)
	ch := presence.NewChannel(pstore, f, cfg.ResyncInterval)
	events := &recordingEvents{}

	// 服务端序号从 seqBase 之后开始，测试里直接写入的历史消息用较小的 seq
	var seq atomic.Int64
	seq.Store(seqBase)
	e := New(Deps{
		Store:    store.Repositories(),
		Feed:     f,
		Presence: ch,
		Events:   events,
		Config:   cfg,
		NextSeq:  func() int64 { return seq.Add(1) },
	})
	return &harness{
		feed:     f,
		store:    store,
		repos:    store.Repositories(),
		presence: pstore,
		channel:  ch,
		events:   events,
		engine:   e,
		deps:     e.deps,
	}
}

// addProfiles 以邮箱本身作为昵称建档
func (h *harness) addProfiles(t *testing.T, emails ...string) {
	t.Helper()
	for _, e := range emails {
		require.NoError(t, h.repos.Profiles.Create(context.Background(), &model.Profile{
			PrincipalId: "pid-" + e,
			Email:       e,
			DisplayName: e,
		}))
	}
}

func (h *harness) session(t *testing.T, deviceID string) *Session {
	t.Helper()
	s := h.engine.NewSession(h.channel.Connect(deviceID))
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func (h *harness) login(t *testing.T, email string) *Session {
	t.Helper()
	s := h.session(t, "dev-"+email)
	require.NoError(t, s.Reset(context.Background(), &Principal{ID: "pid-" + email, Email: email}))
	return s
}

// newTestGate 直接构造单个组件时使用
func newTestGate[T any](buffer int) (*gate[T], <-chan T) {
	out := broadcast.New[T](buffer)
	ch, _ := out.Subscribe()
	return newGate(out), ch
}

// waitFor 读取快照直到满足条件
func waitFor[T any](t *testing.T, ch <-chan T, ok func(T) bool) T {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case v, open := <-ch:
			if !open {
				t.Fatal("channel closed while waiting")
			}
			if ok(v) {
				return v
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
			var zero T
			return zero
		}
	}
}

func emailsOf(ps []model.Profile) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Email)
	}
	sort.Strings(out)
	return out
}

func hasEmails(want ...string) func([]model.Profile) bool {
	sort.Strings(want)
	return func(ps []model.Profile) bool {
		got := emailsOf(ps)
		if len(got) != len(want) {
			return false
		}
		for i := range got {
			if got[i] != want[i] {
				return false
			}
		}
		return true
	}
}

func seqsOf(msgs []model.Message) []int64 {
	out := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Seq)
	}
	return out
}

// fakeProfiles 包装真实仓储，按需替换个别方法
type fakeProfiles struct {
	repository.IProfileRepository
	batchGetFunc  func(ctx context.Context, emails []string) ([]*model.Profile, error)
	listAfterFunc func(ctx context.Context, cursor repository.ProfileCursor, limit int) ([]*model.Profile, error)
}

func (f *fakeProfiles) BatchGetByEmails(ctx context.Context, emails []string) ([]*model.Profile, error) {
	if f.batchGetFunc != nil {
		return f.batchGetFunc(ctx, emails)
	}
	return f.IProfileRepository.BatchGetByEmails(ctx, emails)
}

func (f *fakeProfiles) ListAfter(ctx context.Context, cursor repository.ProfileCursor, limit int) ([]*model.Profile, error) {
	if f.listAfterFunc != nil {
		return f.listAfterFunc(ctx, cursor, limit)
	}
	return f.IProfileRepository.ListAfter(ctx, cursor, limit)
}

// withProfiles 复制一份依赖，资料仓储换成 repo，本地缓存关闭
func (h *harness) withProfiles(repo repository.IProfileRepository) *Deps {
	d := *h.deps
	d.Store.Profiles = repo
	d.Resolver = NewProfileResolver(repo, 0, 0)
	return &d
}
