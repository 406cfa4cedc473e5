package engine

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"SocialSync/apps/sync/internal/feed"
	"SocialSync/apps/sync/internal/repository"
	"SocialSync/apps/sync/mq"
	"SocialSync/model"
	"SocialSync/pkg/broadcast"
	"SocialSync/pkg/logger"
)

// catchUpMaxPages 一次补齐最多向后翻的页数，剩余部分留给下一次通知
const catchUpMaxPages = 50

// PeerLog 某个对端的会话日志快照，Messages 按 Seq 升序
type PeerLog struct {
	Peer           string          `json:"peer"`
	ConversationID string          `json:"conversation_id"`
	Messages       []model.Message `json:"messages"`
	HasMore        bool            `json:"has_more"`
}

// MessageSent 本会话成功发出一条消息
type MessageSent struct {
	Peer    string        `json:"peer"`
	Message model.Message `json:"message"`
}

// ConversationSync 会话标识解析、按对端的实时尾部订阅与向前翻页
type ConversationSync struct {
	deps *Deps
	self Principal
	sent *gate[MessageSent]

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	peers   map[string]*peerState
	stopped bool
	wg      sync.WaitGroup
}

// peerState 对端订阅登记：pending 期间 ready 未关闭，active 后开始尾部循环
type peerState struct {
	peer  string
	ready chan struct{}
	err   error

	mu       sync.Mutex
	convID   string
	log      []model.Message
	seen     map[int64]struct{}
	newest   int64
	contig   int64 // 该 seq 及之前的消息已连续读取
	hasMore  bool
	active   bool
	sub      feed.Subscription
	out      *broadcast.Broadcaster[PeerLog]
	outGate  *gate[PeerLog]
	tailDone chan struct{}
}

func newConversationSync(parent context.Context, deps *Deps, self Principal, sent *gate[MessageSent]) *ConversationSync {
	ctx, cancel := context.WithCancel(parent)
	return &ConversationSync{
		deps:   deps,
		self:   self,
		sent:   sent,
		ctx:    ctx,
		cancel: cancel,
		peers:  make(map[string]*peerState),
	}
}

func (c *ConversationSync) checkPeer(peer string) (string, error) {
	peer = strings.TrimSpace(peer)
	if peer == "" {
		return "", invalidArgument("peer email is required")
	}
	if peer == c.self.Email {
		return "", ErrSelfTarget
	}
	return peer, nil
}

// ==================== 会话标识解析 ====================

// resolve 点查已有会话，create=true 时在事务里比较并创建。多于一条返回完整性错误。
func (c *ConversationSync) resolve(ctx context.Context, peer string, create bool) (string, error) {
	convs, err := c.deps.Store.Conversations.FindByPair(ctx, c.self.Email, peer)
	if err != nil {
		return "", err
	}
	if len(convs) == 0 && create {
		err = c.deps.Store.Batcher.Batch(ctx, func(tx repository.Tx) error {
			var txErr error
			convs, txErr = tx.EnsureConversation(c.deps.NewID(), c.self.Email, peer)
			return txErr
		})
		if err != nil {
			return "", err
		}
	}
	switch len(convs) {
	case 0:
		return "", nil
	case 1:
		return convs[0].ConversationId, nil
	default:
		return "", integrityViolation(ctx, KindConversation, model.PairKey(c.self.Email, peer), len(convs))
	}
}

// ==================== 实时尾部 ====================

// BeginWatchingPeer 打开对端的消息尾部订阅。
// 同一对端只订阅一次：已 active 直接返回，pending 中则等待其结果。
func (c *ConversationSync) BeginWatchingPeer(ctx context.Context, peer string) error {
	peer, err := c.checkPeer(peer)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if st, ok := c.peers[peer]; ok {
		c.mu.Unlock()
		select {
		case <-st.ready:
			return st.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	st := &peerState{
		peer:  peer,
		ready: make(chan struct{}),
		seen:  make(map[int64]struct{}),
		out:   broadcast.New[PeerLog](c.deps.Config.BroadcastBuffer),
	}
	st.outGate = newGate(st.out)
	c.peers[peer] = st
	c.wg.Add(1)
	c.mu.Unlock()

	err = c.open(st)
	if err != nil {
		c.mu.Lock()
		if c.peers[peer] == st {
			delete(c.peers, peer)
		}
		c.mu.Unlock()
		st.out.Close()
		c.wg.Done()
		logger.Warn(c.ctx, "打开消息订阅失败", logger.String("peer", peer), logger.ErrorField("error", err))
	}
	st.err = err
	close(st.ready)
	return err
}

// open 解析会话、先订阅再加载最近窗口，然后启动尾部循环
func (c *ConversationSync) open(st *peerState) error {
	ctx := c.ctx
	convID, err := c.resolve(ctx, st.peer, true)
	if err != nil {
		return err
	}

	sub, err := c.deps.Feed.Subscribe(ctx, feed.MessagesTopic(convID))
	if err != nil {
		return err
	}
	latest, err := c.deps.Store.Conversations.ListLatest(ctx, convID, c.deps.Config.MessageWindow)
	if err != nil {
		_ = sub.Close()
		return err
	}

	st.mu.Lock()
	st.convID = convID
	st.sub = sub
	st.merge(latest)
	st.contig = st.newest
	st.hasMore = len(latest) >= c.deps.Config.MessageWindow
	st.active = true
	st.tailDone = make(chan struct{})
	st.mu.Unlock()

	st.publish()
	peerTails.Inc()
	go c.tail(st)
	return nil
}

// tail 每收到通知或兜底定时器触发就补齐新消息
func (c *ConversationSync) tail(st *peerState) {
	defer c.wg.Done()
	defer close(st.tailDone)
	defer peerTails.Dec()
	defer st.sub.Close()

	var tick <-chan time.Time
	if c.deps.Config.ResyncInterval > 0 {
		t := time.NewTicker(c.deps.Config.ResyncInterval)
		defer t.Stop()
		tick = t.C
	}
	events := st.sub.Events()
	for {
		select {
		case <-c.ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			drainEvents(events)
		case <-tick:
		}
		if err := c.catchUp(st); err != nil && c.ctx.Err() == nil {
			logger.Warn(c.ctx, "消息补齐失败", logger.String("peer", st.peer), logger.ErrorField("error", err))
		}
	}
}

// catchUp 从连续游标向后翻页补齐新消息，再重查最近窗口收拢晚提交的较小 seq。
// 翻页达到上限时游标停在原处，下一次通知继续。
func (c *ConversationSync) catchUp(st *peerState) error {
	window := c.deps.Config.MessageWindow
	st.mu.Lock()
	convID, cursor := st.convID, st.contig
	st.mu.Unlock()

	added := 0
	for page := 0; page < catchUpMaxPages; page++ {
		rows, err := c.deps.Store.Conversations.ListAfter(c.ctx, convID, cursor, window)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			cursor = rows[len(rows)-1].Seq
		}
		st.mu.Lock()
		added += st.merge(rows)
		st.contig = cursor
		st.mu.Unlock()
		if len(rows) < window {
			break
		}
	}

	latest, err := c.deps.Store.Conversations.ListLatest(c.ctx, convID, window)
	if err != nil {
		return err
	}
	st.mu.Lock()
	added += st.merge(latest)
	st.mu.Unlock()

	if added > 0 {
		st.publish()
	}
	return nil
}

// merge 按 seq 去重合并，返回新增条数。调用方持有 st.mu。
func (st *peerState) merge(rows []*model.Message) int {
	added := 0
	for _, m := range rows {
		if m == nil {
			continue
		}
		if _, ok := st.seen[m.Seq]; ok {
			continue
		}
		st.seen[m.Seq] = struct{}{}
		st.log = append(st.log, *m)
		if m.Seq > st.newest {
			st.newest = m.Seq
		}
		added++
	}
	if added > 0 {
		sort.Slice(st.log, func(i, j int) bool { return st.log[i].Seq < st.log[j].Seq })
	}
	return added
}

func (st *peerState) snapshot() PeerLog {
	st.mu.Lock()
	defer st.mu.Unlock()
	return PeerLog{
		Peer:           st.peer,
		ConversationID: st.convID,
		Messages:       append([]model.Message(nil), st.log...),
		HasMore:        st.hasMore,
	}
}

func (st *peerState) publish() {
	st.outGate.publish(st.snapshot())
}

func (st *peerState) oldest() int64 {
	if len(st.log) == 0 {
		return 0
	}
	return st.log[0].Seq
}

// Subscribe 订阅对端日志快照，对端未订阅时返回 false
func (c *ConversationSync) Subscribe(peer string) (<-chan PeerLog, func(), bool) {
	c.mu.Lock()
	st, ok := c.peers[peer]
	c.mu.Unlock()
	if !ok {
		return nil, nil, false
	}
	ch, cancel := st.out.Subscribe()
	return ch, cancel, true
}

// Log 对端当前日志
func (c *ConversationSync) Log(peer string) (PeerLog, bool) {
	st, ok := c.activePeer(peer)
	if !ok {
		return PeerLog{}, false
	}
	return st.snapshot(), true
}

func (c *ConversationSync) activePeer(peer string) (*peerState, bool) {
	c.mu.Lock()
	st, ok := c.peers[peer]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st, st.active
}

// ==================== 向前翻页 ====================

// FetchOlderThan 取 seq < cursor 的一页历史（升序返回）。cursor<=0 时从已加载的最旧一条开始。
// 对端已订阅时结果并入其日志；空结果表示没有更多历史。
func (c *ConversationSync) FetchOlderThan(ctx context.Context, cursor int64, peer string) ([]model.Message, error) {
	peer, err := c.checkPeer(peer)
	if err != nil {
		return nil, err
	}

	st, watched := c.activePeer(peer)
	var convID string
	if watched {
		st.mu.Lock()
		convID = st.convID
		if cursor <= 0 {
			cursor = st.oldest()
		}
		st.mu.Unlock()
	} else {
		convID, err = c.resolve(ctx, peer, false)
		if err != nil {
			return nil, err
		}
		if convID == "" {
			return []model.Message{}, nil
		}
	}
	if cursor <= 0 {
		// 尚未加载任何消息：从最新开始
		cursor = int64(^uint64(0) >> 1)
	}

	page := c.deps.Config.HistoryPageSize
	rows, err := c.deps.Store.Conversations.ListBefore(ctx, convID, cursor, page)
	if err != nil {
		return nil, err
	}

	out := make([]model.Message, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		out = append(out, *rows[i])
	}

	if watched {
		st.mu.Lock()
		st.merge(rows)
		st.hasMore = len(rows) >= page
		st.mu.Unlock()
		st.publish()
	}
	return out, nil
}

// ==================== 发送 ====================

// SendMessage 发送一条消息；首条消息与会话索引在同一个批次中创建。
// 多于一条会话索引时返回完整性错误，不换 id 重试。
func (c *ConversationSync) SendMessage(ctx context.Context, peer, text string) (msg model.Message, err error) {
	defer func() { observeOp("send_message", err) }()

	peer, err = c.checkPeer(peer)
	if err != nil {
		return model.Message{}, err
	}
	if strings.TrimSpace(text) == "" {
		return model.Message{}, ErrEmptyMessage
	}

	err = c.deps.Store.Batcher.Batch(ctx, func(tx repository.Tx) error {
		convs, err := tx.EnsureConversation(c.deps.NewID(), c.self.Email, peer)
		if err != nil {
			return err
		}
		if len(convs) != 1 {
			return integrityViolation(ctx, KindConversation, model.PairKey(c.self.Email, peer), len(convs))
		}
		msg = model.Message{
			Seq:            c.deps.NextSeq(),
			ConversationId: convs[0].ConversationId,
			SenderEmail:    c.self.Email,
			Text:           text,
			SentAt:         c.deps.Now(),
		}
		return tx.CreateMessage(&msg)
	})
	if err != nil {
		return model.Message{}, err
	}

	c.sent.publish(MessageSent{Peer: peer, Message: msg})
	c.deps.emit(ctx, mq.Event{
		Type:           mq.EventMessageSent,
		Actor:          c.self.Email,
		Peer:           peer,
		ConversationID: msg.ConversationId,
		MessageSeq:     msg.Seq,
	})
	return msg, nil
}

// ==================== 生命周期 ====================

// Stop 取消全部尾部订阅、等待退出并清空日志
func (c *ConversationSync) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	peers := c.peers
	c.peers = make(map[string]*peerState)
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	for _, st := range peers {
		st.outGate.close()
		st.out.Close()
		st.mu.Lock()
		st.active = false
		st.mu.Unlock()
	}
}

// Peers 已订阅的对端
func (c *ConversationSync) Peers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.peers))
	for p := range c.peers {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func drainEvents(events <-chan feed.Event) {
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
