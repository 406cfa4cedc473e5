package rediskey

import (
	"fmt"
	"time"
)

// ==================== TTL 常量 ====================

const (
	// ProfileTTL 资料缓存 TTL
	ProfileTTL = 1 * time.Hour
	// ProfileEmptyTTL 资料空值缓存 TTL
	ProfileEmptyTTL = 5 * time.Minute

	// PresenceDefaultTTL 在线记录默认 TTL（由心跳续期，进程崩溃时自然过期）
	PresenceDefaultTTL = 90 * time.Second
)

// EmptyPlaceholder 空值占位，防止缓存穿透
const EmptyPlaceholder = "__EMPTY__"

// ==================== Key 构造函数 ====================

// ProfileKey 资料缓存 Key: sync:profile:{email}
func ProfileKey(email string) string {
	return fmt.Sprintf("sync:profile:%s", email)
}

// PresenceKey 在线状态 Key: sync:presence:{email}
// Hash 字段: online(0/1)、device_id、updated_at(unix 毫秒)
func PresenceKey(email string) string {
	return fmt.Sprintf("sync:presence:%s", email)
}

// FeedChannel 变更通知频道: sync:feed:{topic}
func FeedChannel(topic string) string {
	return "sync:feed:" + topic
}

// FeedPattern 订阅全部变更通知的模式
const FeedPattern = "sync:feed:*"
