// Package feed 变更通知总线。
//
// 存储层每次提交后向相关 topic 发布一条通知，订阅方据此重查快照。
// 通知只是"有变化"的信号，丢失一条不会丢数据：任意一条后续通知或兜底重查都会补齐。
package feed

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrClosed 总线已关闭
var ErrClosed = errors.New("feed closed")

// 通知类型
const (
	KindChanged      = "changed"
	KindMessageAdded = "message_added"
)

// Event 一条变更通知
type Event struct {
	Topic   string          `json:"topic"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      int64           `json:"at"` // unix 毫秒
}

// Subscription 一次订阅
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Feed 发布/订阅接口
type Feed interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context, topics ...string) (Subscription, error)
}

// ==================== Topic 约定 ====================

// LinksTopic 某用户的好友条目集合
func LinksTopic(email string) string { return "links:" + email }

// ReceivedRequestsTopic receiver=email 的申请集合
func ReceivedRequestsTopic(email string) string { return "requests:received:" + email }

// SentRequestsTopic sender=email 的申请集合
func SentRequestsTopic(email string) string { return "requests:sent:" + email }

// MessagesTopic 某会话的消息子空间
func MessagesTopic(conversationID string) string { return "messages:" + conversationID }

// ProfileTopic 某用户资料
func ProfileTopic(email string) string { return "profile:" + email }

// PresenceTopic 某用户在线状态
func PresenceTopic(email string) string { return "presence:" + email }
