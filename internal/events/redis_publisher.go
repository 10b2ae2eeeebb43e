package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisConfig 描述 Redis 事件通道的连接参数。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Channel  string
	History  int64
}

// RedisPublisher 通过 PUBLISH 广播事件，并在有上限的 list 中保留最近的事件。
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
	history int64
}

// NewRedisPublisher 创建 Redis 事件发布器。
func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return NewRedisPublisherWithClient(client, cfg.Channel, cfg.History), nil
}

// NewRedisPublisherWithClient 复用已有的 Redis 客户端。
func NewRedisPublisherWithClient(client redis.UniversalClient, channel string, history int64) *RedisPublisher {
	if channel == "" {
		channel = "contracthub:deployments"
	}
	if history <= 0 {
		history = 256
	}
	return &RedisPublisher{client: client, channel: channel, history: history}
}

// Channel 返回发布频道名称。
func (p *RedisPublisher) Channel() string { return p.channel }

// Publish 实现 Publisher 接口。
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := event.Encode()
	if err != nil {
		return fmt.Errorf("序列化部署事件失败: %w", err)
	}
	historyKey := p.channel + ":history"
	_, err = p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, p.channel, payload)
		pipe.LPush(ctx, historyKey, payload)
		pipe.LTrim(ctx, historyKey, 0, p.history-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("Redis 发布部署事件失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (p *RedisPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
