package config

import "time"

// KafkaConsumerConfig 消费者配置
type KafkaConsumerConfig struct {
	GroupID        string        `json:"groupId" yaml:"groupId"`
	MinBytes       int           `json:"minBytes" yaml:"minBytes"`
	MaxBytes       int           `json:"maxBytes" yaml:"maxBytes"`
	CommitInterval time.Duration `json:"commitInterval" yaml:"commitInterval"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Enabled         bool                `json:"enabled" yaml:"enabled"`
	Brokers         []string            `json:"brokers" yaml:"brokers"`
	EventTopic      string              `json:"eventTopic" yaml:"eventTopic"`           // 领域事件（message.sent 等）
	RedisRetryTopic string              `json:"redisRetryTopic" yaml:"redisRetryTopic"` // Redis 失败重试队列
	BatchTimeout    time.Duration       `json:"batchTimeout" yaml:"batchTimeout"`
	ConsumerConfig  KafkaConsumerConfig `json:"consumer" yaml:"consumer"`
}

// DefaultKafkaConfig 返回本地开发的默认配置
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Enabled:         true,
		Brokers:         []string{"kafka:9092"},
		EventTopic:      "social-sync-events",
		RedisRetryTopic: "social-sync-redis-retry",
		BatchTimeout:    10 * time.Millisecond,
		ConsumerConfig: KafkaConsumerConfig{
			GroupID:        "social-sync-redis-retry",
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: time.Second,
		},
	}
}
