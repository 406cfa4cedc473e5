package repository

import (
	"SocialSync/model"
	"context"

	"gorm.io/gorm"
)

// conversationRepositoryImpl 会话与消息只读实现
type conversationRepositoryImpl struct {
	db *gorm.DB
}

// NewConversationRepository 创建会话仓储实例
func NewConversationRepository(db *gorm.DB) IConversationRepository {
	return &conversationRepositoryImpl{db: db}
}

// FindByPair 两种参与方顺序都要查
func (r *conversationRepositoryImpl) FindByPair(ctx context.Context, a, b string) ([]*model.ConversationIndex, error) {
	var rows []*model.ConversationIndex
	err := r.db.WithContext(ctx).
		Where("(participant_a = ? AND participant_b = ?) OR (participant_a = ? AND participant_b = ?)", a, b, b, a).
		Order("created_at ASC, conversation_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, WrapDBError(err)
	}
	return rows, nil
}

// ListLatest 最近 limit 条，seq 降序
func (r *conversationRepositoryImpl) ListLatest(ctx context.Context, conversationID string, limit int) ([]*model.Message, error) {
	var rows []*model.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("seq DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, WrapDBError(err)
	}
	return rows, nil
}

// ListBefore seq < before，降序
func (r *conversationRepositoryImpl) ListBefore(ctx context.Context, conversationID string, before int64, limit int) ([]*model.Message, error) {
	var rows []*model.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND seq < ?", conversationID, before).
		Order("seq DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, WrapDBError(err)
	}
	return rows, nil
}

// ListAfter seq > after，升序
func (r *conversationRepositoryImpl) ListAfter(ctx context.Context, conversationID string, after int64, limit int) ([]*model.Message, error) {
	var rows []*model.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND seq > ?", conversationID, after).
		Order("seq ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, WrapDBError(err)
	}
	return rows, nil
}
