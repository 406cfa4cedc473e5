package engine

import (
	"context"
	"strings"
	"sync"

	"SocialSync/apps/sync/internal/feed"
	"SocialSync/apps/sync/internal/repository"
	"SocialSync/apps/sync/internal/watch"
	"SocialSync/apps/sync/mq"
	"SocialSync/model"
	"SocialSync/pkg/logger"
)

// RequestResolver 好友申请状态机：NONE -> PENDING -> ACCEPTED/REJECTED -> NONE
type RequestResolver struct {
	deps     *Deps
	self     Principal
	received *profileList
	sent     *profileList

	mu      sync.Mutex
	handles []*watch.Handle
}

func newRequestResolver(deps *Deps, self Principal, received, sent *gate[[]model.Profile], onReceived, onSent func([]string)) *RequestResolver {
	return &RequestResolver{
		deps:     deps,
		self:     self,
		received: newProfileList(deps, "requests:received:"+self.Email, received, onReceived),
		sent:     newProfileList(deps, "requests:sent:"+self.Email, sent, onSent),
	}
}

// Start 订阅收到的与发出的申请
func (r *RequestResolver) Start(ctx context.Context) error {
	recv, err := r.watchSide(ctx, "received", feed.ReceivedRequestsTopic(r.self.Email),
		func(ctx context.Context) ([]*model.FriendRequest, error) {
			return r.deps.Store.Requests.ListByReceiver(ctx, r.self.Email)
		},
		func(q *model.FriendRequest) string { return q.SenderEmail },
		r.received)
	if err != nil {
		return err
	}

	sent, err := r.watchSide(ctx, "sent", feed.SentRequestsTopic(r.self.Email),
		func(ctx context.Context) ([]*model.FriendRequest, error) {
			return r.deps.Store.Requests.ListBySender(ctx, r.self.Email)
		},
		func(q *model.FriendRequest) string { return q.ReceiverEmail },
		r.sent)
	if err != nil {
		recv.Stop()
		return err
	}

	r.mu.Lock()
	r.handles = []*watch.Handle{recv, sent}
	r.mu.Unlock()
	return nil
}

func (r *RequestResolver) watchSide(
	ctx context.Context,
	name, topic string,
	load func(context.Context) ([]*model.FriendRequest, error),
	peerOf func(*model.FriendRequest) string,
	out *profileList,
) (*watch.Handle, error) {
	return watch.Collection(ctx, r.deps.Feed, watch.CollectionOptions[*model.FriendRequest]{
		Name:   "requests:" + name + ":" + r.self.Email,
		Topics: []string{topic},
		Load:   load,
		Key:    func(q *model.FriendRequest) string { return q.Id },
		Equal: func(a, b *model.FriendRequest) bool {
			return a.SenderEmail == b.SenderEmail && a.ReceiverEmail == b.ReceiverEmail
		},
		Resync: r.deps.Config.ResyncInterval,
		OnUpdate: func(u watch.Update[*model.FriendRequest]) {
			emails := make([]string, 0, len(u.Items))
			for _, q := range u.Items {
				emails = append(emails, peerOf(q))
			}
			out.set(ctx, emails)
		},
	})
}

// Stop 取消两个订阅
func (r *RequestResolver) Stop() {
	r.mu.Lock()
	handles := r.handles
	r.handles = nil
	r.mu.Unlock()
	for _, h := range handles {
		h.Stop()
	}
	r.received.reset()
	r.sent.reset()
}

// ==================== 写操作 ====================

func (r *RequestResolver) checkPeer(peer string) (string, error) {
	peer = strings.TrimSpace(peer)
	if peer == "" {
		return "", invalidArgument("peer email is required")
	}
	if peer == r.self.Email {
		return "", ErrSelfTarget
	}
	return peer, nil
}

// Add 向 receiver 发出申请，不做重复检查
func (r *RequestResolver) Add(ctx context.Context, receiver string) (err error) {
	defer func() { observeOp("add_request", err) }()

	receiver, err = r.checkPeer(receiver)
	if err != nil {
		return err
	}
	req := &model.FriendRequest{
		Id:            r.deps.NewID(),
		SenderEmail:   r.self.Email,
		ReceiverEmail: receiver,
	}
	if err = r.deps.Store.Requests.Create(ctx, req); err != nil {
		return err
	}
	r.deps.emit(ctx, mq.Event{Type: mq.EventRequestCreated, Actor: r.self.Email, Peer: receiver})
	return nil
}

// Accept 接受 peer 的申请。以下步骤在同一个批次中提交：
// 双方根记录各追加一条条目、删除 peer->self 的申请、删除可能存在的 self->peer 反向申请。
// 没有待处理申请时什么也不做（返回 false）。
func (r *RequestResolver) Accept(ctx context.Context, peer string) (accepted bool, err error) {
	defer func() { observeOp("accept_request", err) }()

	peer, err = r.checkPeer(peer)
	if err != nil {
		return false, err
	}

	err = r.deps.Store.Batcher.Batch(ctx, func(tx repository.Tx) error {
		incoming, err := tx.FindRequests(peer, r.self.Email)
		if err != nil {
			return err
		}
		if len(incoming) == 0 {
			return nil
		}

		if err := r.link(ctx, tx, r.self.Email, peer); err != nil {
			return err
		}
		if err := r.link(ctx, tx, peer, r.self.Email); err != nil {
			return err
		}
		// 重复发送的申请一并清掉：接受按邮箱去重
		for _, q := range incoming {
			if err := tx.DeleteRequest(q); err != nil {
				return err
			}
		}
		// 双方同时发出申请时的反向记录，不存在则跳过
		outgoing, err := tx.FindRequests(r.self.Email, peer)
		if err != nil {
			return err
		}
		for _, q := range outgoing {
			if err := tx.DeleteRequest(q); err != nil {
				return err
			}
		}
		accepted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !accepted {
		logger.Info(ctx, "没有待处理的好友申请，忽略", logger.String("peer", peer))
		return false, nil
	}

	r.dropReceived(ctx, peer)
	r.deps.emit(ctx, mq.Event{Type: mq.EventRequestAccepted, Actor: r.self.Email, Peer: peer})
	return true, nil
}

// link 确保 owner 的根记录存在并追加 peer
func (r *RequestResolver) link(ctx context.Context, tx repository.Tx, owner, peer string) error {
	owners, err := tx.EnsureLinkOwner(owner)
	if err != nil {
		return err
	}
	if len(owners) != 1 {
		return integrityViolation(ctx, KindLinkOwner, owner, len(owners))
	}
	return tx.AddLinkEntry(owners[0], peer)
}

// Reject 拒绝 peer 的申请。多于一条匹配属于完整性错误，不猜测删哪条。
func (r *RequestResolver) Reject(ctx context.Context, peer string) (rejected bool, err error) {
	defer func() { observeOp("reject_request", err) }()

	peer, err = r.checkPeer(peer)
	if err != nil {
		return false, err
	}

	err = r.deps.Store.Batcher.Batch(ctx, func(tx repository.Tx) error {
		incoming, err := tx.FindRequests(peer, r.self.Email)
		if err != nil {
			return err
		}
		switch len(incoming) {
		case 0:
			return nil
		case 1:
			rejected = true
			return tx.DeleteRequest(incoming[0])
		default:
			return integrityViolation(ctx, KindRequest, peer+"->"+r.self.Email, len(incoming))
		}
	})
	if err != nil {
		return false, err
	}
	if !rejected {
		return false, nil
	}

	r.dropReceived(ctx, peer)
	r.deps.emit(ctx, mq.Event{Type: mq.EventRequestRejected, Actor: r.self.Email, Peer: peer})
	return true, nil
}

// dropReceived 立即从收到的申请列表中移除 peer 并重新发布，随后的订阅回调会确认
func (r *RequestResolver) dropReceived(ctx context.Context, peer string) {
	r.received.remove(ctx, peer)
}
