package engine

import (
	"context"
	"strings"
	"sync"

	"SocialSync/apps/sync/internal/feed"
	"SocialSync/apps/sync/internal/presence"
	"SocialSync/apps/sync/internal/watch"
	"SocialSync/model"
	"SocialSync/pkg/broadcast"
	"SocialSync/pkg/ctxmeta"
	"SocialSync/pkg/logger"
)

// PresenceMap 已订阅对端的在线状态快照
type PresenceMap map[string]model.PresenceRecord

// PrincipalState 主体切换通知，Principal 为 nil 表示已登出
type PrincipalState struct {
	Principal *Principal `json:"principal"`
}

// Engine 进程级入口，持有共享依赖
type Engine struct {
	deps *Deps
}

// New 创建引擎
func New(deps Deps) *Engine {
	return &Engine{deps: deps.withDefaults()}
}

// NewSession 为一条客户端连接创建会话
func (e *Engine) NewSession(conn *presence.Conn) *Session {
	buf := e.deps.Config.BroadcastBuffer
	return &Session{
		deps:        e.deps,
		conn:        conn,
		tracker:     NewPresenceTracker(conn),
		friends:     broadcast.New[[]model.Profile](buf),
		received:    broadcast.New[[]model.Profile](buf),
		sent:        broadcast.New[[]model.Profile](buf),
		suggestions: broadcast.New[[]model.Profile](buf),
		profile:     broadcast.New[model.Profile](buf),
		presence:    broadcast.New[PresenceMap](buf),
		messageSent: broadcast.New[MessageSent](buf),
		principalCh: broadcast.New[PrincipalState](buf),
	}
}

// Profiles 资料服务
func (e *Engine) Profiles(uploader AvatarUploader) *ProfileService {
	return NewProfileService(e.deps.Store.Profiles, e.deps.Resolver, uploader, e.deps.Config.SearchLimit)
}

// ==================== Session ====================

// Session 一条连接上的引擎会话。
// 广播器跨主体长期存在；组件按主体成代创建，Reset 时整代停止后清空广播器，
// 上一个主体的数据不会出现在下一个主体的订阅里。
type Session struct {
	deps    *Deps
	conn    *presence.Conn
	tracker *PresenceTracker

	friends     *broadcast.Broadcaster[[]model.Profile]
	received    *broadcast.Broadcaster[[]model.Profile]
	sent        *broadcast.Broadcaster[[]model.Profile]
	suggestions *broadcast.Broadcaster[[]model.Profile]
	profile     *broadcast.Broadcaster[model.Profile]
	presence    *broadcast.Broadcaster[PresenceMap]
	messageSent *broadcast.Broadcaster[MessageSent]
	principalCh *broadcast.Broadcaster[PrincipalState]

	resetMu sync.Mutex // 串行化 Reset/Close

	mu        sync.RWMutex
	principal *Principal
	gen       *generation
	closed    bool
}

// generation 某个主体的一整代组件
type generation struct {
	deps   *Deps
	self   Principal
	ctx    context.Context
	cancel context.CancelFunc

	relation    *RelationSync
	requests    *RequestResolver
	convs       *ConversationSync
	suggestions *SuggestionGenerator

	friendsGate     *gate[[]model.Profile]
	receivedGate    *gate[[]model.Profile]
	sentGate        *gate[[]model.Profile]
	suggestionsGate *gate[[]model.Profile]
	profileGate     *gate[model.Profile]
	presenceGate    *gate[PresenceMap]
	messageSentGate *gate[MessageSent]

	profileHandle *watch.Handle

	presMu        sync.Mutex
	presWatches   map[string]*watch.Handle
	presenceState PresenceMap
}

// Bind 把会话挂到身份协作方上，主体变化即 Reset
func (s *Session) Bind(ctx context.Context, identity *Identity) func() {
	base := ctxmeta.Detach(ctx)
	return identity.OnPrincipalChanged(func(p *Principal) {
		if err := s.Reset(base, p); err != nil {
			logger.Warn(base, "会话切换主体失败", logger.ErrorField("error", err))
		}
	})
}

// Reset 切换主体。p 为 nil 表示登出：写离线、停止全部订阅并清空派生状态。
// 同一主体重复 Reset 不重建。
func (s *Session) Reset(ctx context.Context, p *Principal) error {
	s.resetMu.Lock()
	defer s.resetMu.Unlock()

	s.mu.RLock()
	closed, cur, old := s.closed, s.principal, s.gen
	s.mu.RUnlock()
	if closed {
		return ErrSessionClosed
	}
	if p != nil {
		p = p.clone()
		p.Email = strings.TrimSpace(p.Email)
		if p.Email == "" {
			return invalidArgument("principal email is required")
		}
		if p.DeviceID == "" {
			p.DeviceID = s.conn.DeviceID()
		}
		if cur.same(p) {
			return nil
		}
	}

	if old != nil {
		old.stop()
	}
	if cur != nil {
		s.tracker.Deactivate(ctx)
		sessionsActive.Dec()
	}
	s.clearBroadcasters()

	s.mu.Lock()
	s.principal = p.clone()
	s.gen = nil
	s.mu.Unlock()
	s.principalCh.Publish(PrincipalState{Principal: p.clone()})

	if p == nil {
		logger.Info(ctx, "会话已登出")
		return nil
	}

	s.tracker.Activate(ctx, p)
	gen := s.newGeneration(ctx, *p)
	s.mu.Lock()
	s.gen = gen
	s.mu.Unlock()
	sessionsActive.Inc()

	gen.start()
	logger.Info(gen.ctx, "会话已切换主体", logger.String("email", p.Email))
	return nil
}

func (s *Session) clearBroadcasters() {
	s.friends.Clear()
	s.received.Clear()
	s.sent.Clear()
	s.suggestions.Clear()
	s.profile.Clear()
	s.presence.Clear()
	s.messageSent.Clear()
}

func (s *Session) newGeneration(ctx context.Context, self Principal) *generation {
	runCtx := ctxmeta.WithPrincipal(ctxmeta.Detach(ctx), self.Email)
	runCtx = ctxmeta.WithDeviceID(runCtx, self.DeviceID)
	runCtx, cancel := context.WithCancel(runCtx)

	g := &generation{
		deps:            s.deps,
		self:            self,
		ctx:             runCtx,
		cancel:          cancel,
		friendsGate:     newGate(s.friends),
		receivedGate:    newGate(s.received),
		sentGate:        newGate(s.sent),
		suggestionsGate: newGate(s.suggestions),
		profileGate:     newGate(s.profile),
		presenceGate:    newGate(s.presence),
		messageSentGate: newGate(s.messageSent),
		presWatches:     make(map[string]*watch.Handle),
		presenceState:   make(PresenceMap),
	}
	g.suggestions = newSuggestionGenerator(runCtx, s.deps, self, g.suggestionsGate)
	g.relation = newRelationSync(s.deps, self, g.friendsGate, g.suggestions.SetFriends)
	g.requests = newRequestResolver(s.deps, self, g.receivedGate, g.sentGate,
		g.suggestions.SetReceived, g.suggestions.SetSent)
	g.convs = newConversationSync(runCtx, s.deps, self, g.messageSentGate)
	return g
}

// start 启动后台订阅，失败只记日志
func (g *generation) start() {
	deps := g.deps
	if err := g.relation.Start(g.ctx); err != nil {
		logger.Error(g.ctx, "好友订阅启动失败", logger.ErrorField("error", err))
	}
	if err := g.requests.Start(g.ctx); err != nil {
		logger.Error(g.ctx, "申请订阅启动失败", logger.ErrorField("error", err))
	}

	h, err := watch.Value(g.ctx, deps.Feed, watch.ValueOptions[model.Profile]{
		Name:   "profile:" + g.self.Email,
		Topics: []string{feed.ProfileTopic(g.self.Email)},
		Load: func(ctx context.Context) (model.Profile, bool, error) {
			p, err := deps.Store.Profiles.GetByEmail(ctx, g.self.Email)
			if err != nil || p == nil {
				return model.Profile{}, false, err
			}
			return *p, true, nil
		},
		Resync: deps.Config.ResyncInterval,
		OnUpdate: func(u watch.ValueUpdate[model.Profile]) {
			deps.Resolver.Invalidate(g.self.Email)
			if u.Exists {
				g.profileGate.publish(u.Value)
			}
		},
	})
	if err != nil {
		logger.Error(g.ctx, "资料订阅启动失败", logger.ErrorField("error", err))
		return
	}
	g.presMu.Lock()
	g.profileHandle = h
	g.presMu.Unlock()
}

// stop 停止整代组件并关闭全部 gate
func (g *generation) stop() {
	g.relation.Stop()
	g.requests.Stop()
	g.suggestions.Stop()
	g.convs.Stop()

	g.presMu.Lock()
	handles := make([]*watch.Handle, 0, len(g.presWatches)+1)
	for _, h := range g.presWatches {
		handles = append(handles, h)
	}
	if g.profileHandle != nil {
		handles = append(handles, g.profileHandle)
	}
	g.presWatches = map[string]*watch.Handle{}
	g.profileHandle = nil
	g.presMu.Unlock()
	for _, h := range handles {
		h.Stop()
	}

	g.cancel()
	for _, closer := range []interface{ close() }{
		g.friendsGate, g.receivedGate, g.sentGate, g.suggestionsGate,
		g.profileGate, g.presenceGate, g.messageSentGate,
	} {
		closer.close()
	}
}

// Close 连接断开：停止当前代、触发断连写入并关闭全部广播器
func (s *Session) Close(ctx context.Context) {
	s.resetMu.Lock()
	defer s.resetMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	gen, cur := s.gen, s.principal
	s.gen = nil
	s.principal = nil
	s.mu.Unlock()

	if gen != nil {
		gen.stop()
	}
	if cur != nil {
		sessionsActive.Dec()
	}
	s.conn.Drop(ctx)

	s.friends.Close()
	s.received.Close()
	s.sent.Close()
	s.suggestions.Close()
	s.profile.Close()
	s.presence.Close()
	s.messageSent.Close()
	s.principalCh.Close()
}

func (s *Session) current() (*generation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.gen == nil {
		return nil, ErrNoPrincipal
	}
	return s.gen, nil
}

// Principal 当前主体
func (s *Session) Principal() *Principal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.principal.clone()
}

// ==================== 订阅 ====================

func (s *Session) WatchFriends() (<-chan []model.Profile, func())          { return s.friends.Subscribe() }
func (s *Session) WatchReceivedRequests() (<-chan []model.Profile, func()) { return s.received.Subscribe() }
func (s *Session) WatchSentRequests() (<-chan []model.Profile, func())     { return s.sent.Subscribe() }
func (s *Session) WatchSuggestions() (<-chan []model.Profile, func())      { return s.suggestions.Subscribe() }
func (s *Session) WatchProfile() (<-chan model.Profile, func())            { return s.profile.Subscribe() }
func (s *Session) WatchPresenceMap() (<-chan PresenceMap, func())          { return s.presence.Subscribe() }
func (s *Session) WatchMessageSent() (<-chan MessageSent, func())          { return s.messageSent.Subscribe() }
func (s *Session) WatchPrincipal() (<-chan PrincipalState, func())         { return s.principalCh.Subscribe() }

// WatchPeer 订阅已开始尾部订阅的对端日志
func (s *Session) WatchPeer(peer string) (<-chan PeerLog, func(), error) {
	g, err := s.current()
	if err != nil {
		return nil, nil, err
	}
	ch, cancel, ok := g.convs.Subscribe(peer)
	if !ok {
		return nil, nil, ErrPeerNotWatched
	}
	return ch, cancel, nil
}

// ==================== 操作 ====================

// SetPresence 写当前主体在线状态
func (s *Session) SetPresence(ctx context.Context, online bool) error {
	if _, err := s.current(); err != nil {
		return err
	}
	return s.tracker.SetPresence(ctx, online)
}

// Heartbeat 续期在线记录
func (s *Session) Heartbeat(ctx context.Context) error {
	g, err := s.current()
	if err != nil {
		return err
	}
	return s.deps.Presence.Heartbeat(ctx, g.self.Email, g.self.DeviceID)
}

func (s *Session) AddRequest(ctx context.Context, receiver string) error {
	g, err := s.current()
	if err != nil {
		return err
	}
	return g.requests.Add(ctx, receiver)
}

func (s *Session) AcceptRequest(ctx context.Context, peer string) (bool, error) {
	g, err := s.current()
	if err != nil {
		return false, err
	}
	return g.requests.Accept(ctx, peer)
}

func (s *Session) RejectRequest(ctx context.Context, peer string) (bool, error) {
	g, err := s.current()
	if err != nil {
		return false, err
	}
	return g.requests.Reject(ctx, peer)
}

func (s *Session) BeginWatchingPeer(ctx context.Context, peer string) error {
	g, err := s.current()
	if err != nil {
		return err
	}
	return g.convs.BeginWatchingPeer(ctx, peer)
}

func (s *Session) FetchOlderThan(ctx context.Context, cursor int64, peer string) ([]model.Message, error) {
	g, err := s.current()
	if err != nil {
		return nil, err
	}
	return g.convs.FetchOlderThan(ctx, cursor, peer)
}

func (s *Session) SendMessage(ctx context.Context, peer, text string) (model.Message, error) {
	g, err := s.current()
	if err != nil {
		return model.Message{}, err
	}
	return g.convs.SendMessage(ctx, peer, text)
}

func (s *Session) SearchDirectory(ctx context.Context, text string) ([]model.Profile, error) {
	g, err := s.current()
	if err != nil {
		return nil, err
	}
	return g.suggestions.SearchDirectory(ctx, text)
}

// WatchPresence 订阅某对端的在线状态，结果并入 PresenceMap
func (s *Session) WatchPresence(ctx context.Context, peer string) error {
	g, err := s.current()
	if err != nil {
		return err
	}
	peer = strings.TrimSpace(peer)
	if peer == "" {
		return invalidArgument("peer email is required")
	}

	g.presMu.Lock()
	defer g.presMu.Unlock()
	if _, ok := g.presWatches[peer]; ok {
		return nil
	}
	h, err := s.deps.Presence.Watch(g.ctx, peer, func(rec model.PresenceRecord) {
		g.presMu.Lock()
		g.presenceState[peer] = rec
		snapshot := make(PresenceMap, len(g.presenceState))
		for k, v := range g.presenceState {
			snapshot[k] = v
		}
		g.presMu.Unlock()
		g.presenceGate.publish(snapshot)
	})
	if err != nil {
		return err
	}
	g.presWatches[peer] = h
	return nil
}

// UnwatchPresence 取消对端在线状态订阅
func (s *Session) UnwatchPresence(peer string) {
	g, err := s.current()
	if err != nil {
		return
	}
	g.presMu.Lock()
	h, ok := g.presWatches[peer]
	delete(g.presWatches, peer)
	delete(g.presenceState, peer)
	g.presMu.Unlock()
	if ok {
		h.Stop()
	}
}

// WatchedPeers 已开始尾部订阅的对端
func (s *Session) WatchedPeers() []string {
	g, err := s.current()
	if err != nil {
		return nil
	}
	return g.convs.Peers()
}

// Suggestions 当前推荐，ok=false 表示首轮扫描尚未完成
func (s *Session) Suggestions() ([]model.Profile, bool) {
	g, err := s.current()
	if err != nil {
		return nil, false
	}
	return g.suggestions.Current()
}
