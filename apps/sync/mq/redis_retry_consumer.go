package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"SocialSync/pkg/logger"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

// RedisRetryConsumer 消费重试队列，重放失败的 Redis 操作
type RedisRetryConsumer struct {
	reader *kafkago.Reader
	client *redis.Client
}

// NewRedisRetryConsumer 创建消费者
func NewRedisRetryConsumer(reader *kafkago.Reader, client *redis.Client) *RedisRetryConsumer {
	return &RedisRetryConsumer{reader: reader, client: client}
}

// Run 阻塞消费直到 ctx 取消
func (c *RedisRetryConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		var task RedisTask
		if err := json.Unmarshal(msg.Value, &task); err != nil {
			logger.Error(ctx, "重试任务解析失败，丢弃", logger.ErrorField("error", err))
		} else {
			c.handle(ctx, task)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.Warn(ctx, "重试任务提交 offset 失败", logger.ErrorField("error", err))
		}
	}
}

// Close 关闭 reader
func (c *RedisRetryConsumer) Close() error {
	return c.reader.Close()
}

func (c *RedisRetryConsumer) handle(ctx context.Context, task RedisTask) {
	err := Execute(ctx, c.client, task)
	if err == nil {
		return
	}
	task.RetryCount++
	task = task.WithError(err)
	if task.RetryCount >= task.MaxRetries {
		logger.Error(ctx, "Redis 重试次数耗尽，放弃",
			logger.String("task_type", string(task.Type)),
			logger.String("command", task.Command),
			logger.String("source", task.Source),
			logger.Int("retry_count", task.RetryCount),
			logger.ErrorField("error", err),
		)
		return
	}
	if sendErr := SendRedisTask(ctx, task); sendErr != nil {
		logger.Error(ctx, "重新投递重试任务失败",
			logger.ErrorField("kafka_error", sendErr),
			logger.ErrorField("error", err),
		)
	}
}

// Execute 执行一个 Redis 任务
func Execute(ctx context.Context, client *redis.Client, task RedisTask) error {
	switch task.Type {
	case CmdSimple:
		if task.Command == "" {
			return errors.New("empty command")
		}
		return client.Do(ctx, append([]interface{}{task.Command}, task.Args...)...).Err()
	case CmdPipeline:
		pipe := client.Pipeline()
		for _, cmd := range task.PipelineCmds {
			pipe.Do(ctx, append([]interface{}{cmd.Command}, cmd.Args...)...)
		}
		_, err := pipe.Exec(ctx)
		return err
	case CmdLua:
		err := client.Eval(ctx, task.LuaScript, task.LuaKeys, task.LuaArgs...).Err()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	default:
		return fmt.Errorf("unknown task type %q", task.Type)
	}
}
