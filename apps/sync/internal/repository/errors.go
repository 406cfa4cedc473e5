package repository

import (
	"SocialSync/apps/sync/mq"
	"SocialSync/pkg/logger"
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// 存储层的哨兵错误。上层（引擎、在线状态）只用 errors.Is 判断，不感知 gorm / go-redis。
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateKey   = errors.New("duplicate key")
	ErrDatabase       = errors.New("database error")

	// ErrRedisNil key 或字段不存在，调用方通常按"无记录"处理
	ErrRedisNil = errors.New("redis: key not found")
	ErrRedis    = errors.New("redis error")
)

// WrapDBError gorm 错误归一为哨兵错误。
// 已是哨兵的原样返回，其余包成 ErrDatabase，原文留在消息里供日志使用。
func WrapDBError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, ErrRecordNotFound):
		return ErrRecordNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), errors.Is(err, ErrDuplicateKey):
		return ErrDuplicateKey
	case errors.Is(err, ErrDatabase):
		return err
	}
	return fmt.Errorf("%w: %v", ErrDatabase, err)
}

// WrapRedisError go-redis 错误归一为哨兵错误，redis.Nil -> ErrRedisNil，其余 -> ErrRedis
func WrapRedisError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil), errors.Is(err, ErrRedisNil):
		return ErrRedisNil
	case errors.Is(err, ErrRedis):
		return err
	}
	return fmt.Errorf("%w: %v", ErrRedis, err)
}

// LogRedisError 缓存类操作失败只记日志，主流程继续走数据库
func LogRedisError(ctx context.Context, err error) {
	logger.Error(ctx, "Redis 操作错误", logger.ErrorField("error", err))
}

// LogAndRetryRedisError 写类操作失败时把命令交给 Kafka 重试队列；
// 队列也不可用时只能放弃，留下错误日志
func LogAndRetryRedisError(ctx context.Context, task mq.RedisTask, err error) {
	logger.Warn(ctx, "Redis 写入失败，转入重试队列",
		logger.ErrorField("error", err),
		logger.String("task_type", string(task.Type)),
		logger.String("source", task.Source),
	)

	task = task.WithContext(ctx).WithError(err)
	if sendErr := mq.SendRedisTask(ctx, task); sendErr != nil {
		logger.Error(ctx, "Redis 重试任务投递失败，放弃",
			logger.ErrorField("kafka_error", sendErr),
			logger.ErrorField("original_error", err),
			logger.String("task_type", string(task.Type)),
		)
	}
}
