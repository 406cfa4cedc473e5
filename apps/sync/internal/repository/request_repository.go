package repository

import (
	"SocialSync/apps/sync/internal/feed"
	"SocialSync/model"
	"context"

	"gorm.io/gorm"
)

// requestRepositoryImpl 好友申请数据访问层实现
type requestRepositoryImpl struct {
	db   *gorm.DB
	feed feed.Feed
}

// NewRequestRepository 创建好友申请仓储实例
func NewRequestRepository(db *gorm.DB, f feed.Feed) IRequestRepository {
	return &requestRepositoryImpl{db: db, feed: f}
}

// Create 新增申请
func (r *requestRepositoryImpl) Create(ctx context.Context, req *model.FriendRequest) error {
	if err := r.db.WithContext(ctx).Create(req).Error; err != nil {
		return WrapDBError(err)
	}
	notify(ctx, r.feed, feed.KindChanged, requestTopics(req)...)
	return nil
}

// Find 精确匹配 sender -> receiver
func (r *requestRepositoryImpl) Find(ctx context.Context, sender, receiver string) ([]*model.FriendRequest, error) {
	var rows []*model.FriendRequest
	err := r.db.WithContext(ctx).
		Where("sender_email = ? AND receiver_email = ?", sender, receiver).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, WrapDBError(err)
	}
	return rows, nil
}

// ListByReceiver 收到的申请
func (r *requestRepositoryImpl) ListByReceiver(ctx context.Context, receiver string) ([]*model.FriendRequest, error) {
	return r.list(ctx, "receiver_email = ?", receiver)
}

// ListBySender 发出的申请
func (r *requestRepositoryImpl) ListBySender(ctx context.Context, sender string) ([]*model.FriendRequest, error) {
	return r.list(ctx, "sender_email = ?", sender)
}

func (r *requestRepositoryImpl) list(ctx context.Context, cond string, email string) ([]*model.FriendRequest, error) {
	var rows []*model.FriendRequest
	err := r.db.WithContext(ctx).
		Where(cond, email).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, WrapDBError(err)
	}
	return rows, nil
}

// Delete 删除单条申请，记录已不存在时不报错
func (r *requestRepositoryImpl) Delete(ctx context.Context, req *model.FriendRequest) error {
	if err := r.db.WithContext(ctx).Where("id = ?", req.Id).Delete(&model.FriendRequest{}).Error; err != nil {
		return WrapDBError(err)
	}
	notify(ctx, r.feed, feed.KindChanged, requestTopics(req)...)
	return nil
}
