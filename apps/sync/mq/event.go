package mq

import (
	"context"
	"encoding/json"
	"time"

	"SocialSync/pkg/kafka"
	"SocialSync/pkg/logger"
)

// ==================== 领域事件 ====================

// EventType 领域事件类型
type EventType string

const (
	EventMessageSent     EventType = "message.sent"
	EventRequestCreated  EventType = "request.created"
	EventRequestAccepted EventType = "request.accepted"
	EventRequestRejected EventType = "request.rejected"
)

// Event 写入事件 topic 的消息体，下游（推送、统计）按 Type 分发
type Event struct {
	Type           EventType `json:"type"`
	Actor          string    `json:"actor"`
	Peer           string    `json:"peer"`
	ConversationID string    `json:"conversation_id,omitempty"`
	MessageSeq     int64     `json:"message_seq,omitempty,string"`
	TraceID        string    `json:"trace_id,omitempty"`
	At             time.Time `json:"at"`
}

// EventPublisher 领域事件发布接口
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev Event) error
}

// KafkaEventPublisher 写入 Kafka 事件 topic，按 actor 分区
type KafkaEventPublisher struct {
	producer *kafka.Producer
}

// NewKafkaEventPublisher 创建事件发布者
func NewKafkaEventPublisher(p *kafka.Producer) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: p}
}

func (p *KafkaEventPublisher) PublishEvent(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := p.producer.Send(ctx, []byte(ev.Actor), raw); err != nil {
		logger.Warn(ctx, "领域事件发送失败",
			logger.String("type", string(ev.Type)),
			logger.ErrorField("error", err),
		)
		return err
	}
	return nil
}

// NopEventPublisher 未启用 Kafka 时使用
type NopEventPublisher struct{}

func (NopEventPublisher) PublishEvent(context.Context, Event) error { return nil }
