package memstore

import (
	"context"
	"sort"

	"SocialSync/apps/sync/internal/feed"
	"SocialSync/apps/sync/internal/repository"
	"SocialSync/model"
	"SocialSync/pkg/util"
)

// Batch 持有写锁执行 fn，失败时整体回滚到执行前的快照
func (s *Store) Batch(ctx context.Context, fn func(tx repository.Tx) error) error {
	s.mu.Lock()
	snapshot := s.data.clone()
	tx := &memTx{d: &s.data}
	if err := fn(tx); err != nil {
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.publish(ctx, feed.KindChanged, tx.changed...)
	s.publish(ctx, feed.KindMessageAdded, tx.messages...)
	return nil
}

type memTx struct {
	d        *dataset
	changed  []string
	messages []string
}

func (t *memTx) EnsureLinkOwner(email string) ([]*model.LinkOwner, error) {
	if owners := t.d.ownersOf(email); len(owners) > 0 {
		return owners, nil
	}
	t.d.owners = append(t.d.owners, model.LinkOwner{Id: util.NewUUID(), Email: email})
	return t.d.ownersOf(email), nil
}

func (t *memTx) AddLinkEntry(owner *model.LinkOwner, email string) error {
	for _, e := range t.d.entries {
		if e.OwnerId == owner.Id && e.Email == email {
			return nil
		}
	}
	t.d.entryID++
	t.d.entries = append(t.d.entries, model.LinkEntry{
		Id:         t.d.entryID,
		OwnerId:    owner.Id,
		OwnerEmail: owner.Email,
		Email:      email,
	})
	t.changed = append(t.changed, feed.LinksTopic(owner.Email))
	return nil
}

func (t *memTx) FindRequests(sender, receiver string) ([]*model.FriendRequest, error) {
	return t.d.findRequests(func(q model.FriendRequest) bool {
		return q.SenderEmail == sender && q.ReceiverEmail == receiver
	}), nil
}

func (t *memTx) DeleteRequest(req *model.FriendRequest) error {
	t.d.deleteRequest(req.Id)
	t.changed = append(t.changed,
		feed.ReceivedRequestsTopic(req.ReceiverEmail),
		feed.SentRequestsTopic(req.SenderEmail),
	)
	return nil
}

func (t *memTx) EnsureConversation(conversationID, a, b string) ([]*model.ConversationIndex, error) {
	if existing := t.d.convsOf(a, b); len(existing) > 0 {
		return existing, nil
	}
	t.d.convs = append(t.d.convs, model.ConversationIndex{
		ConversationId: conversationID,
		ParticipantA:   a,
		ParticipantB:   b,
		PairKey:        model.PairKey(a, b),
	})
	return t.d.convsOf(a, b), nil
}

func (t *memTx) CreateMessage(msg *model.Message) error {
	msgs := append(t.d.messages[msg.ConversationId], *msg)
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Seq < msgs[j].Seq })
	t.d.messages[msg.ConversationId] = msgs
	t.messages = append(t.messages, feed.MessagesTopic(msg.ConversationId))
	return nil
}
