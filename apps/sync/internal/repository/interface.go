package repository

import (
	"SocialSync/model"
	"context"
)

// ==================== 资料仓储 ====================

// ProfileCursor 目录扫描游标，按 (search_key, email) 严格递增
type ProfileCursor struct {
	SearchKey string
	Email     string
}

// IProfileRepository 用户资料数据访问接口
type IProfileRepository interface {
	// GetByEmail 按邮箱查询，不存在返回 nil, nil
	GetByEmail(ctx context.Context, email string) (*model.Profile, error)

	// GetByPrincipal 按身份主体查询，不存在返回 nil, nil
	GetByPrincipal(ctx context.Context, principalID string) (*model.Profile, error)

	// BatchGetByEmails 批量查询，结果按传入顺序，不存在的跳过
	BatchGetByEmails(ctx context.Context, emails []string) ([]*model.Profile, error)

	// ListAfter 游标之后的下一页
	ListAfter(ctx context.Context, cursor ProfileCursor, limit int) ([]*model.Profile, error)

	// SearchByPrefix 按小写昵称前缀检索
	SearchByPrefix(ctx context.Context, prefix string, limit int) ([]*model.Profile, error)

	// Create 创建资料，email 冲突返回 ErrDuplicateKey
	Create(ctx context.Context, profile *model.Profile) error

	// UpdateDisplayName 更新昵称并同步 search_key
	UpdateDisplayName(ctx context.Context, email, displayName string) error

	// UpdateAvatar 更新头像
	UpdateAvatar(ctx context.Context, email, avatarURL string) error
}

// ==================== 好友链接仓储 ====================

// ILinkRepository 好友链接只读接口，写入统一走 Batch
type ILinkRepository interface {
	// GetOwners 某邮箱的全部根记录（正常情况下 0 或 1 条）
	GetOwners(ctx context.Context, email string) ([]*model.LinkOwner, error)

	// ListEntries 根记录下的全部条目
	ListEntries(ctx context.Context, ownerID string) ([]*model.LinkEntry, error)
}

// ==================== 好友申请仓储 ====================

// IRequestRepository 好友申请数据访问接口
type IRequestRepository interface {
	// Create 新增申请，不做去重
	Create(ctx context.Context, req *model.FriendRequest) error

	// Find 精确匹配 sender -> receiver 的全部申请
	Find(ctx context.Context, sender, receiver string) ([]*model.FriendRequest, error)

	// ListByReceiver 收到的申请
	ListByReceiver(ctx context.Context, receiver string) ([]*model.FriendRequest, error)

	// ListBySender 发出的申请
	ListBySender(ctx context.Context, sender string) ([]*model.FriendRequest, error)

	// Delete 删除单条申请
	Delete(ctx context.Context, req *model.FriendRequest) error
}

// ==================== 会话仓储 ====================

// IConversationRepository 会话与消息只读接口，写入统一走 Batch
type IConversationRepository interface {
	// FindByPair 两人之间的全部会话索引（与参数顺序无关）
	FindByPair(ctx context.Context, a, b string) ([]*model.ConversationIndex, error)

	// ListLatest 最近 limit 条，seq 降序
	ListLatest(ctx context.Context, conversationID string, limit int) ([]*model.Message, error)

	// ListBefore seq < before 的 limit 条，seq 降序
	ListBefore(ctx context.Context, conversationID string, before int64, limit int) ([]*model.Message, error)

	// ListAfter seq > after 的 limit 条，seq 升序
	ListAfter(ctx context.Context, conversationID string, after int64, limit int) ([]*model.Message, error)
}

// ==================== 原子批量写 ====================

// Tx 批量写上下文。fn 返回错误则全部回滚；提交成功后才发布变更通知。
type Tx interface {
	// EnsureLinkOwner 不存在则创建根记录，返回该邮箱的全部根记录
	EnsureLinkOwner(email string) ([]*model.LinkOwner, error)

	// AddLinkEntry 在根记录下追加条目，已存在则忽略
	AddLinkEntry(owner *model.LinkOwner, email string) error

	// FindRequests 加锁读取 sender -> receiver 的全部申请
	FindRequests(sender, receiver string) ([]*model.FriendRequest, error)

	// DeleteRequest 删除申请
	DeleteRequest(req *model.FriendRequest) error

	// EnsureConversation 不存在则创建会话索引，返回两人之间的全部索引
	EnsureConversation(conversationID, a, b string) ([]*model.ConversationIndex, error)

	// CreateMessage 写入消息
	CreateMessage(msg *model.Message) error
}

// IBatchRepository 原子批量写入口
type IBatchRepository interface {
	Batch(ctx context.Context, fn func(tx Tx) error) error
}

// Store 一个完整的存储后端
type Store struct {
	Profiles      IProfileRepository
	Links         ILinkRepository
	Requests      IRequestRepository
	Conversations IConversationRepository
	Batcher       IBatchRepository
}
