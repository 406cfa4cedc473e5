// Package presence 低延迟在线状态通道。
//
// 记录存放在 Redis hash 中并带 TTL，由心跳续期；
// 连接断开时由 Conn 上预先登记的断连写入把记录置为离线，进程崩溃时由 TTL 兜底。
package presence

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"SocialSync/apps/sync/internal/feed"
	"SocialSync/apps/sync/internal/repository"
	"SocialSync/apps/sync/mq"
	rediskey "SocialSync/consts/redisKey"
	"SocialSync/model"
	"SocialSync/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// Store 在线状态存储
type Store interface {
	// Set 覆盖写一条记录（同一用户最后一次写入生效）
	Set(ctx context.Context, rec model.PresenceRecord) error
	// Get 读取记录，不存在时 ok=false
	Get(ctx context.Context, email string) (rec model.PresenceRecord, ok bool, err error)
	// Touch 心跳续期，仅当记录仍属于该设备时生效
	Touch(ctx context.Context, email, deviceID string) error
}

// ==================== Redis 实现 ====================

// luaTouchIfOwner 记录属于该设备时续期
// KEYS[1]: presence hash
// ARGV[1]: device_id
// ARGV[2]: ttl 毫秒
// 返回: 1 续期成功，0 记录不存在或已被其他设备覆盖
const luaTouchIfOwner = `
if redis.call('HGET', KEYS[1], 'device_id') == ARGV[1] then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
	return 1
end
return 0
`

var touchScript = redis.NewScript(luaTouchIfOwner)

// RedisStore 基于 Redis hash 的在线状态存储
type RedisStore struct {
	client *redis.Client
	feed   feed.Feed
	ttl    time.Duration
}

// NewRedisStore 创建 Redis 在线状态存储，ttl<=0 时使用默认值
func NewRedisStore(client *redis.Client, f feed.Feed, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = rediskey.PresenceDefaultTTL
	}
	return &RedisStore{client: client, feed: f, ttl: ttl}
}

func (s *RedisStore) Set(ctx context.Context, rec model.PresenceRecord) error {
	if rec.UpdatedAt == 0 {
		rec.UpdatedAt = time.Now().UnixMilli()
	}
	key := rediskey.PresenceKey(rec.Email)
	online := "0"
	if rec.Online {
		online = "1"
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "online", online, "device_id", rec.DeviceId, "updated_at", rec.UpdatedAt)
	pipe.PExpire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return repository.WrapRedisError(err)
	}

	if s.feed != nil {
		if err := s.feed.Publish(ctx, feed.Event{Topic: feed.PresenceTopic(rec.Email), Kind: feed.KindChanged}); err != nil {
			logger.Warn(ctx, "在线状态通知发布失败", logger.String("email", rec.Email), logger.ErrorField("error", err))
		}
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, email string) (model.PresenceRecord, bool, error) {
	vals, err := s.client.HGetAll(ctx, rediskey.PresenceKey(email)).Result()
	if err = repository.WrapRedisError(err); err != nil {
		if errors.Is(err, repository.ErrRedisNil) {
			return model.PresenceRecord{Email: email}, false, nil
		}
		return model.PresenceRecord{}, false, err
	}
	if len(vals) == 0 {
		return model.PresenceRecord{Email: email}, false, nil
	}
	updatedAt, _ := strconv.ParseInt(vals["updated_at"], 10, 64)
	return model.PresenceRecord{
		Email:     email,
		Online:    vals["online"] == "1",
		DeviceId:  vals["device_id"],
		UpdatedAt: updatedAt,
	}, true, nil
}

func (s *RedisStore) Touch(ctx context.Context, email, deviceID string) error {
	key := rediskey.PresenceKey(email)
	err := repository.WrapRedisError(touchScript.Run(ctx, s.client, []string{key}, deviceID, s.ttl.Milliseconds()).Err())
	if err == nil || errors.Is(err, repository.ErrRedisNil) {
		return nil
	}
	task := mq.BuildLuaTask(luaTouchIfOwner, []string{key}, deviceID, s.ttl.Milliseconds()).
		WithSource("presence.RedisStore.Touch")
	repository.LogAndRetryRedisError(ctx, task, err)
	return err
}

// ==================== 内存实现 ====================

// MemoryStore 进程内在线状态存储，不做过期
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.PresenceRecord
	feed    feed.Feed
}

// NewMemoryStore 创建内存在线状态存储
func NewMemoryStore(f feed.Feed) *MemoryStore {
	return &MemoryStore{records: make(map[string]model.PresenceRecord), feed: f}
}

func (s *MemoryStore) Set(ctx context.Context, rec model.PresenceRecord) error {
	if rec.UpdatedAt == 0 {
		rec.UpdatedAt = time.Now().UnixMilli()
	}
	s.mu.Lock()
	s.records[rec.Email] = rec
	s.mu.Unlock()
	if s.feed != nil {
		_ = s.feed.Publish(ctx, feed.Event{Topic: feed.PresenceTopic(rec.Email), Kind: feed.KindChanged})
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, email string) (model.PresenceRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[email]
	if !ok {
		return model.PresenceRecord{Email: email}, false, nil
	}
	return rec, true, nil
}

func (s *MemoryStore) Touch(_ context.Context, email, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[email]; ok && rec.DeviceId == deviceID {
		rec.UpdatedAt = time.Now().UnixMilli()
		s.records[email] = rec
	}
	return nil
}
