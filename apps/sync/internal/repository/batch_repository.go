package repository

import (
	"SocialSync/apps/sync/internal/feed"
	"SocialSync/model"
	"SocialSync/pkg/util"
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// batchRepositoryImpl 基于 MySQL 事务的原子批量写
type batchRepositoryImpl struct {
	db   *gorm.DB
	feed feed.Feed
}

// NewBatchRepository 创建批量写入口
func NewBatchRepository(db *gorm.DB, f feed.Feed) IBatchRepository {
	return &batchRepositoryImpl{db: db, feed: f}
}

// Batch 在一个事务内执行 fn，提交成功后发布涉及的变更通知
func (r *batchRepositoryImpl) Batch(ctx context.Context, fn func(tx Tx) error) error {
	t := &gormTx{}
	err := r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		t.db = db
		return fn(t)
	})
	if err != nil {
		return err
	}
	notify(ctx, r.feed, feed.KindChanged, t.changed.order...)
	notify(ctx, r.feed, feed.KindMessageAdded, t.messages.order...)
	return nil
}

// gormTx 事务内的写操作，同时记录涉及的 topic
type gormTx struct {
	db       *gorm.DB
	changed  topicSet
	messages topicSet
}

func (t *gormTx) EnsureLinkOwner(email string) ([]*model.LinkOwner, error) {
	owner := &model.LinkOwner{Id: util.NewUUID(), Email: email}
	// 唯一索引 uidx_owner_email 保证并发下只有一方插入成功
	if err := t.db.Clauses(clause.OnConflict{DoNothing: true}).Create(owner).Error; err != nil {
		return nil, WrapDBError(err)
	}
	var owners []*model.LinkOwner
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("email = ?", email).
		Order("created_at ASC, id ASC").
		Find(&owners).Error
	if err != nil {
		return nil, WrapDBError(err)
	}
	return owners, nil
}

func (t *gormTx) AddLinkEntry(owner *model.LinkOwner, email string) error {
	entry := &model.LinkEntry{OwnerId: owner.Id, OwnerEmail: owner.Email, Email: email}
	if err := t.db.Clauses(clause.OnConflict{DoNothing: true}).Create(entry).Error; err != nil {
		return WrapDBError(err)
	}
	t.changed.add(feed.LinksTopic(owner.Email))
	return nil
}

func (t *gormTx) FindRequests(sender, receiver string) ([]*model.FriendRequest, error) {
	var rows []*model.FriendRequest
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("sender_email = ? AND receiver_email = ?", sender, receiver).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, WrapDBError(err)
	}
	return rows, nil
}

func (t *gormTx) DeleteRequest(req *model.FriendRequest) error {
	if err := t.db.Where("id = ?", req.Id).Delete(&model.FriendRequest{}).Error; err != nil {
		return WrapDBError(err)
	}
	t.changed.add(requestTopics(req)...)
	return nil
}

func (t *gormTx) EnsureConversation(conversationID, a, b string) ([]*model.ConversationIndex, error) {
	idx := &model.ConversationIndex{
		ConversationId: conversationID,
		ParticipantA:   a,
		ParticipantB:   b,
		PairKey:        model.PairKey(a, b),
	}
	// 唯一索引 uidx_pair_key 上比较并创建
	if err := t.db.Clauses(clause.OnConflict{DoNothing: true}).Create(idx).Error; err != nil {
		return nil, WrapDBError(err)
	}
	var rows []*model.ConversationIndex
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("(participant_a = ? AND participant_b = ?) OR (participant_a = ? AND participant_b = ?)", a, b, b, a).
		Order("created_at ASC, conversation_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, WrapDBError(err)
	}
	return rows, nil
}

func (t *gormTx) CreateMessage(msg *model.Message) error {
	if err := t.db.Create(msg).Error; err != nil {
		return WrapDBError(err)
	}
	t.messages.add(feed.MessagesTopic(msg.ConversationId))
	return nil
}
