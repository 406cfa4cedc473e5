package repository

import (
	"SocialSync/apps/sync/internal/feed"
	"SocialSync/model"
	"SocialSync/pkg/logger"
	"context"
	"math/rand"
	"strings"
	"time"
)

// getRandomExpireTime 基础过期时间 ± 10% 的随机抖动，防止缓存雪崩
func getRandomExpireTime(baseExpire time.Duration) time.Duration {
	jitterRange := float64(baseExpire) * 0.1
	jitter := time.Duration(rand.Float64()*jitterRange*2 - jitterRange)
	return baseExpire + jitter
}

// escapeLike 转义 LIKE 通配符
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// topicSet 去重收集一次写入涉及的 topic
type topicSet struct {
	order []string
	seen  map[string]struct{}
}

func (t *topicSet) add(topics ...string) {
	if t.seen == nil {
		t.seen = make(map[string]struct{})
	}
	for _, topic := range topics {
		if _, ok := t.seen[topic]; ok {
			continue
		}
		t.seen[topic] = struct{}{}
		t.order = append(t.order, topic)
	}
}

// notify 提交后发布变更通知。发布失败只记日志，订阅方的兜底重查会补齐。
func notify(ctx context.Context, f feed.Feed, kind string, topics ...string) {
	if f == nil {
		return
	}
	for _, topic := range topics {
		if err := f.Publish(ctx, feed.Event{Topic: topic, Kind: kind}); err != nil {
			logger.Warn(ctx, "变更通知发布失败",
				logger.String("topic", topic),
				logger.ErrorField("error", err),
			)
		}
	}
}

// requestTopics 一条申请影响的两个集合
func requestTopics(req *model.FriendRequest) []string {
	return []string{
		feed.ReceivedRequestsTopic(req.ReceiverEmail),
		feed.SentRequestsTopic(req.SenderEmail),
	}
}
