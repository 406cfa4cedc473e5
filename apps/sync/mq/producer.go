package mq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"SocialSync/pkg/kafka"
)

// ErrProducerNotReady 重试队列生产者未初始化
var ErrProducerNotReady = errors.New("redis retry producer not initialized")

var (
	producerMu     sync.RWMutex
	globalProducer *kafka.Producer
)

// SetGlobalProducer 设置 Redis 重试队列生产者，传 nil 表示关闭重试
func SetGlobalProducer(p *kafka.Producer) {
	producerMu.Lock()
	defer producerMu.Unlock()
	globalProducer = p
}

// SendRedisTask 把失败的 Redis 操作投递到重试队列
func SendRedisTask(ctx context.Context, task RedisTask) error {
	producerMu.RLock()
	p := globalProducer
	producerMu.RUnlock()
	if p == nil {
		return ErrProducerNotReady
	}
	raw, err := json.Marshal(task)
	if err != nil {
		return err
	}
	var key []byte
	if task.Principal != "" {
		key = []byte(task.Principal)
	}
	return p.Send(ctx, key, raw)
}
