package feed

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	rediskey "SocialSync/consts/redisKey"
	"SocialSync/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisFeed 基于 Redis Pub/Sub 的跨实例总线。
// go-redis 的 PubSub 断线后会自动重连重订阅，期间丢失的通知由订阅方的兜底重查补齐。
type RedisFeed struct {
	client *redis.Client
}

// NewRedisFeed 创建 Redis 总线
func NewRedisFeed(client *redis.Client) *RedisFeed {
	return &RedisFeed{client: client}
}

func (f *RedisFeed) Publish(ctx context.Context, ev Event) error {
	if ev.At == 0 {
		ev.At = time.Now().UnixMilli()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, rediskey.FeedChannel(ev.Topic), raw).Err()
}

func (f *RedisFeed) Subscribe(ctx context.Context, topics ...string) (Subscription, error) {
	channels := make([]string, 0, len(topics))
	for _, t := range topics {
		channels = append(channels, rediskey.FeedChannel(t))
	}

	ps := f.client.Subscribe(ctx, channels...)
	// 等待订阅确认，避免 Subscribe 返回后、真正订阅前发布的通知丢失
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := &redisSubscription{
		ps:   ps,
		ch:   make(chan Event, memorySubscriptionBuffer),
		done: make(chan struct{}),
	}
	go sub.pump()
	return sub, nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func (s *redisSubscription) Events() <-chan Event { return s.ch }

func (s *redisSubscription) pump() {
	defer close(s.ch)
	in := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Warn(context.Background(), "变更通知解析失败",
					logger.String("channel", msg.Channel),
					logger.ErrorField("error", err),
				)
				continue
			}
			if ev.Topic == "" {
				ev.Topic = strings.TrimPrefix(msg.Channel, rediskey.FeedChannel(""))
			}
			select {
			case s.ch <- ev:
			default:
			}
		}
	}
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
