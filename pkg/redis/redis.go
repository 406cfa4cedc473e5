package redis

import (
	"context"
	"fmt"

	"SocialSync/config"

	"github.com/redis/go-redis/v9"
)

var global *redis.Client

// Client 返回全局 Redis 客户端（未初始化或降级时为 nil）
func Client() *redis.Client { return global }

// ReplaceGlobal 设置全局 Redis 客户端
func ReplaceGlobal(c *redis.Client) { global = c }

// Build 创建 Redis 客户端并做一次 PING
func Build(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s 失败: %w", cfg.Addr, err)
	}
	return client, nil
}
