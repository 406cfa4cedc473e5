package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer 单 topic 生产者
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer 创建生产者。消息按 key 哈希分区，保证同一 key 有序。
func NewProducer(brokers []string, topic string, batchTimeout time.Duration) *Producer {
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}
	return &Producer{
		topic: topic,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			BatchTimeout:           batchTimeout,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

// Topic 返回生产者绑定的 topic
func (p *Producer) Topic() string { return p.topic }

// Send 发送一条消息
func (p *Producer) Send(ctx context.Context, key, value []byte) error {
	if p == nil || p.writer == nil {
		return errors.New("kafka producer not initialized")
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value}); err != nil {
		return fmt.Errorf("kafka 写入 %s 失败: %w", p.topic, err)
	}
	return nil
}

// Close 刷新缓冲并关闭
func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// NewReader 创建消费组 Reader
func NewReader(brokers []string, topic, groupID string, minBytes, maxBytes int, commitInterval time.Duration, l kafka.Logger) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       minBytes,
		MaxBytes:       maxBytes,
		CommitInterval: commitInterval,
		ErrorLogger:    l,
	})
}

// ZapLoggerAdapter 把 kafka-go 的 Printf 日志接到 zap
type ZapLoggerAdapter struct {
	l *zap.Logger
}

// NewZapLoggerAdapter 创建适配器
func NewZapLoggerAdapter(l *zap.Logger) *ZapLoggerAdapter {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapLoggerAdapter{l: l}
}

func (a *ZapLoggerAdapter) Printf(format string, args ...interface{}) {
	a.l.Sugar().Warnf("kafka: "+format, args...)
}
