package memstore

import (
	"context"
	"sort"

	"SocialSync/apps/sync/internal/feed"
	"SocialSync/model"
)

// Seed 直接写入原始记录，不做唯一性检查。
// 用于导入数据以及构造重复根记录、重复会话索引等异常数据。
type Seed struct {
	Owners        []model.LinkOwner
	Entries       []model.LinkEntry
	Requests      []model.FriendRequest
	Conversations []model.ConversationIndex
	Messages      []model.Message
}

// Seed 写入原始记录并发布对应通知
func (s *Store) Seed(ctx context.Context, seed Seed) {
	var topics, msgTopics []string

	s.mu.Lock()
	s.data.owners = append(s.data.owners, seed.Owners...)
	for _, e := range seed.Entries {
		s.data.entryID++
		if e.Id == 0 {
			e.Id = s.data.entryID
		}
		s.data.entries = append(s.data.entries, e)
		topics = append(topics, feed.LinksTopic(e.OwnerEmail))
	}
	for _, q := range seed.Requests {
		s.data.requests = append(s.data.requests, q)
		topics = append(topics, feed.ReceivedRequestsTopic(q.ReceiverEmail), feed.SentRequestsTopic(q.SenderEmail))
	}
	s.data.convs = append(s.data.convs, seed.Conversations...)
	for _, m := range seed.Messages {
		s.data.messages[m.ConversationId] = append(s.data.messages[m.ConversationId], m)
		msgTopics = append(msgTopics, feed.MessagesTopic(m.ConversationId))
	}
	for id := range s.data.messages {
		msgs := s.data.messages[id]
		sort.Slice(msgs, func(i, j int) bool { return msgs[i].Seq < msgs[j].Seq })
	}
	s.mu.Unlock()

	s.publish(ctx, feed.KindChanged, topics...)
	s.publish(ctx, feed.KindMessageAdded, msgTopics...)
}
