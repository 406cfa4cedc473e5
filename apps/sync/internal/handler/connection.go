package handler

import (
	"SocialSync/apps/sync/internal/engine"
	"SocialSync/apps/sync/internal/manager"
	"SocialSync/apps/sync/internal/svc"
	"SocialSync/model"
	"SocialSync/pkg/logger"
	"context"
	"strings"
	"sync"
)

// connection 一条已升级连接上的会话状态：上行帧分发与下行推送
type connection struct {
	ctx      context.Context
	h        *WSHandler
	client   *manager.Client
	session  *engine.Session
	identity *engine.Identity
	deviceID string

	mu        sync.Mutex
	peerPumps map[string]*peerPump
	closed    bool
	wg        sync.WaitGroup
}

// peerPump 把某个对端的日志快照转成 messages 帧
type peerPump struct {
	cancel func()
}

func newConnection(ctx context.Context, h *WSHandler, client *manager.Client, session *engine.Session, identity *engine.Identity, deviceID string) *connection {
	return &connection{
		ctx:       ctx,
		h:         h,
		client:    client,
		session:   session,
		identity:  identity,
		deviceID:  deviceID,
		peerPumps: make(map[string]*peerPump),
	}
}

// ==================== 下行推送 ====================

// pump 把会话级订阅转成推送帧。广播器关闭（会话关闭）或连接结束时退出。
func (cn *connection) pump() {
	friends, cancelFriends := cn.session.WatchFriends()
	defer cancelFriends()
	received, cancelReceived := cn.session.WatchReceivedRequests()
	defer cancelReceived()
	sent, cancelSent := cn.session.WatchSentRequests()
	defer cancelSent()
	suggestions, cancelSuggestions := cn.session.WatchSuggestions()
	defer cancelSuggestions()
	profile, cancelProfile := cn.session.WatchProfile()
	defer cancelProfile()
	presenceMap, cancelPresence := cn.session.WatchPresenceMap()
	defer cancelPresence()
	messageSent, cancelMessageSent := cn.session.WatchMessageSent()
	defer cancelMessageSent()
	principal, cancelPrincipal := cn.session.WatchPrincipal()
	defer cancelPrincipal()

	for {
		var (
			frameType string
			data      any
			open      bool
		)
		select {
		case <-cn.ctx.Done():
			return
		case v, ok := <-friends:
			frameType, data, open = svc.PushFriends, nonNil(v), ok
		case v, ok := <-received:
			frameType, data, open = svc.PushRequestsReceived, nonNil(v), ok
		case v, ok := <-sent:
			frameType, data, open = svc.PushRequestsSent, nonNil(v), ok
		case v, ok := <-suggestions:
			frameType, data, open = svc.PushSuggestions, nonNil(v), ok
		case v, ok := <-profile:
			frameType, data, open = svc.PushProfile, v, ok
		case v, ok := <-presenceMap:
			frameType, data, open = svc.PushPresence, v, ok
		case v, ok := <-messageSent:
			frameType, data, open = svc.PushMessageSent, v, ok
		case v, ok := <-principal:
			frameType, data, open = svc.PushPrincipal, v, ok
		}
		if !open {
			return
		}
		cn.push(frameType, "", data)
	}
}

// followPeer 开始转发某对端的日志。
// 主体切换后旧订阅随整代组件关闭，同名对端再次订阅时以新订阅替换旧转发。
func (cn *connection) followPeer(peer string) error {
	ch, cancel, err := cn.session.WatchPeer(peer)
	if err != nil {
		return err
	}

	cn.mu.Lock()
	if cn.closed {
		cn.mu.Unlock()
		cancel()
		return nil
	}
	if old, ok := cn.peerPumps[peer]; ok {
		old.cancel()
	}
	pp := &peerPump{cancel: cancel}
	cn.peerPumps[peer] = pp
	cn.wg.Add(1)
	cn.mu.Unlock()

	go func() {
		defer cn.wg.Done()
		defer func() {
			cn.mu.Lock()
			if cn.peerPumps[peer] == pp {
				delete(cn.peerPumps, peer)
			}
			cn.mu.Unlock()
		}()
		for {
			select {
			case <-cn.ctx.Done():
				return
			case snapshot, ok := <-ch:
				if !ok {
					return
				}
				if snapshot.Messages == nil {
					snapshot.Messages = []model.Message{}
				}
				cn.push(svc.PushMessages, "", snapshot)
			}
		}
	}()
	return nil
}

// close 连接结束：取消全部对端转发并等待退出，之后不再接受新的转发
func (cn *connection) close() {
	cn.mu.Lock()
	cn.closed = true
	pumps := cn.peerPumps
	cn.peerPumps = make(map[string]*peerPump)
	cn.mu.Unlock()

	for _, pp := range pumps {
		pp.cancel()
	}
	cn.wg.Wait()
}

// push 序列化并投递一帧，队列满视为慢连接直接断开
func (cn *connection) push(frameType, id string, data any) {
	payload, err := svc.MarshalEnvelope(frameType, id, data)
	if err != nil {
		logger.Warn(cn.ctx, "下行帧序列化失败",
			logger.String("type", frameType),
			logger.ErrorField("error", err),
		)
		return
	}
	if !cn.client.Enqueue(payload) {
		cn.client.Close()
	}
}

func (cn *connection) pushError(id string, err error) {
	code := svc.CodeOf(err)
	if !svc.IsClientError(code) {
		logger.Error(cn.ctx, "上行帧处理失败", logger.ErrorField("error", err))
	}
	msg := err.Error()
	if !svc.IsClientError(code) {
		msg = "internal error"
	}
	cn.push(svc.PushError, id, svc.ErrorData{Code: code, Message: msg})
}

func nonNil(v []model.Profile) []model.Profile {
	if v == nil {
		return []model.Profile{}
	}
	return v
}

// ==================== 上行分发 ====================

// handleMessage 在读循环中串行执行，同一连接的上行帧按到达顺序处理
func (cn *connection) handleMessage(raw []byte) {
	envelope, err := svc.ParseEnvelope(raw)
	if err != nil {
		cn.pushError("", err)
		return
	}

	if envelope.Type != svc.FrameHeartbeat && !cn.allow() {
		cn.pushError(envelope.ID, svc.ErrTooManyRequests)
		return
	}

	ctx, cancel := context.WithTimeout(cn.ctx, opTimeout)
	defer cancel()

	data, err := cn.dispatch(ctx, envelope)
	if err != nil {
		cn.pushError(envelope.ID, err)
		return
	}
	cn.push(svc.AckType(envelope.Type), envelope.ID, data)
}

// allow 按当前主体限流，未登录时按设备
func (cn *connection) allow() bool {
	key := "device:" + cn.deviceID
	if p := cn.session.Principal(); p != nil {
		key = p.Email
	}
	return cn.h.limiter.Allow(key)
}

func (cn *connection) dispatch(ctx context.Context, envelope *svc.Envelope) (any, error) {
	switch envelope.Type {
	case svc.FrameHeartbeat:
		return nil, cn.session.Heartbeat(ctx)

	case svc.FrameLogin:
		var req svc.LoginData
		if err := svc.DecodeData(envelope, &req); err != nil {
			return nil, err
		}
		return cn.login(ctx, req.Token)

	case svc.FrameLogout:
		cn.identity.Set(nil)
		cn.h.connManager.Rebind(cn.client, "")
		return engine.PrincipalState{}, nil

	case svc.FrameSetPresence:
		var req svc.PresenceData
		if err := svc.DecodeData(envelope, &req); err != nil {
			return nil, err
		}
		return nil, cn.session.SetPresence(ctx, req.Online)

	case svc.FrameAddRequest:
		peer, err := decodePeer(envelope)
		if err != nil {
			return nil, err
		}
		return nil, cn.session.AddRequest(ctx, peer)

	case svc.FrameAcceptRequest:
		peer, err := decodePeer(envelope)
		if err != nil {
			return nil, err
		}
		resolved, err := cn.session.AcceptRequest(ctx, peer)
		if err != nil {
			return nil, err
		}
		return svc.ResolveResult{Peer: peer, Resolved: resolved}, nil

	case svc.FrameRejectRequest:
		peer, err := decodePeer(envelope)
		if err != nil {
			return nil, err
		}
		resolved, err := cn.session.RejectRequest(ctx, peer)
		if err != nil {
			return nil, err
		}
		return svc.ResolveResult{Peer: peer, Resolved: resolved}, nil

	case svc.FrameWatchPeer:
		peer, err := decodePeer(envelope)
		if err != nil {
			return nil, err
		}
		if err := cn.session.BeginWatchingPeer(ctx, peer); err != nil {
			return nil, err
		}
		return nil, cn.followPeer(peer)

	case svc.FrameFetchOlder:
		var req svc.FetchOlderData
		if err := svc.DecodeData(envelope, &req); err != nil {
			return nil, err
		}
		msgs, err := cn.session.FetchOlderThan(ctx, req.Cursor, strings.TrimSpace(req.Peer))
		if err != nil {
			return nil, err
		}
		if msgs == nil {
			msgs = []model.Message{}
		}
		return svc.OlderPage{Peer: strings.TrimSpace(req.Peer), Messages: msgs}, nil

	case svc.FrameSendMessage:
		var req svc.SendMessageData
		if err := svc.DecodeData(envelope, &req); err != nil {
			return nil, err
		}
		return cn.session.SendMessage(ctx, strings.TrimSpace(req.Peer), req.Text)

	case svc.FrameSearch:
		var req svc.SearchData
		if err := svc.DecodeData(envelope, &req); err != nil {
			return nil, err
		}
		profiles, err := cn.session.SearchDirectory(ctx, req.Text)
		if err != nil {
			return nil, err
		}
		return nonNil(profiles), nil

	case svc.FrameWatchPresence:
		peer, err := decodePeer(envelope)
		if err != nil {
			return nil, err
		}
		return nil, cn.session.WatchPresence(ctx, peer)

	case svc.FrameUnwatchPres:
		peer, err := decodePeer(envelope)
		if err != nil {
			return nil, err
		}
		cn.session.UnwatchPresence(peer)
		return nil, nil

	default:
		return nil, svc.ErrFrameUnsupported
	}
}

// login 切换到 token 对应的主体；同一主体同一设备的其他连接被替换
func (cn *connection) login(ctx context.Context, token string) (any, error) {
	p, err := cn.h.syncSvc.PrincipalFromToken(token, cn.deviceID)
	if err != nil {
		return nil, err
	}
	cn.h.retire(ctx, cn.h.connManager.Rebind(cn.client, p.Email))
	cn.identity.Set(p)
	return engine.PrincipalState{Principal: cn.session.Principal()}, nil
}

func decodePeer(envelope *svc.Envelope) (string, error) {
	var req svc.PeerData
	if err := svc.DecodeData(envelope, &req); err != nil {
		return "", err
	}
	return strings.TrimSpace(req.Peer), nil
}
