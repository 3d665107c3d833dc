package redis

import (
	"context"
	"fmt"

	"residence-data/common/config"

	"github.com/go-redis/redis/v8"
)

type Client = redis.Client

func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
		ReadTimeout: cfg.ReadTimeout,
	})
}

// Connect 创建客户端并 ping；失败时客户端已关闭
func Connect(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	c := NewRedisClient(cfg)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", cfg.Addr, err)
	}
	return c, nil
}

func Close(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
