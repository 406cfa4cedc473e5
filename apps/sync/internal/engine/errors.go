package engine

import (
	"context"
	"errors"
	"fmt"

	"SocialSync/pkg/logger"
)

var (
	// ErrIntegrity 违反"至多一条"约束的数据
	ErrIntegrity = errors.New("integrity violation")

	// ErrNoPrincipal 未登录
	ErrNoPrincipal = errors.New("no active principal")

	// ErrSessionClosed 会话已关闭
	ErrSessionClosed = errors.New("session closed")

	// ErrInvalidArgument 参数非法
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrProfileNotFound 资料不存在
	ErrProfileNotFound = errors.New("profile not found")

	// ErrProfileExists 邮箱或主体已注册资料
	ErrProfileExists = errors.New("profile already exists")

	// ErrPeerNotWatched 未对该对端开始尾部订阅
	ErrPeerNotWatched = errors.New("peer not watched")

	// ErrAvatarUnavailable 未配置头像存储
	ErrAvatarUnavailable = errors.New("avatar storage unavailable")

	// ErrSelfTarget 以自己为对端
	ErrSelfTarget = fmt.Errorf("%w: cannot target yourself", ErrInvalidArgument)

	// ErrEmptyMessage 消息正文为空
	ErrEmptyMessage = fmt.Errorf("%w: message text is empty", ErrInvalidArgument)
)

// 完整性错误的记录类型
const (
	KindLinkOwner    = "link_owner"
	KindConversation = "conversation_index"
	KindRequest      = "friend_request"
)

// IntegrityError 某个键上找到了多于一条记录
type IntegrityError struct {
	Kind  string
	Key   string
	Count int
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation: %d %s records for %s", e.Count, e.Kind, e.Key)
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

// integrityViolation 记录硬错误并返回，不做任何自动修复
func integrityViolation(ctx context.Context, kind, key string, count int) error {
	integrityTotal.WithLabelValues(kind).Inc()
	err := &IntegrityError{Kind: kind, Key: key, Count: count}
	logger.Error(ctx, "数据完整性错误",
		logger.String("kind", kind),
		logger.String("key", key),
		logger.Int("count", count),
	)
	return err
}

func invalidArgument(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, msg)
}
