package repository

import (
	"SocialSync/model"
	"context"

	"gorm.io/gorm"
)

// linkRepositoryImpl 好友链接只读实现
type linkRepositoryImpl struct {
	db *gorm.DB
}

// NewLinkRepository 创建好友链接仓储实例
func NewLinkRepository(db *gorm.DB) ILinkRepository {
	return &linkRepositoryImpl{db: db}
}

// GetOwners 某邮箱的全部根记录
func (r *linkRepositoryImpl) GetOwners(ctx context.Context, email string) ([]*model.LinkOwner, error) {
	var owners []*model.LinkOwner
	err := r.db.WithContext(ctx).
		Where("email = ?", email).
		Order("created_at ASC, id ASC").
		Find(&owners).Error
	if err != nil {
		return nil, WrapDBError(err)
	}
	return owners, nil
}

// ListEntries 根记录下的全部条目，按加入顺序
func (r *linkRepositoryImpl) ListEntries(ctx context.Context, ownerID string) ([]*model.LinkEntry, error) {
	var entries []*model.LinkEntry
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, WrapDBError(err)
	}
	return entries, nil
}
