package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ViewStore 视图文档缓存 + 就绪通知
type ViewStore struct {
	client  redis.UniversalClient
	prefix  string
	channel string
	ttl     time.Duration
}

// NewViewStore 创建 ViewStore 实例（会先 Ping）
func NewViewStore(addr, password string, db int, prefix, channel string, ttl time.Duration) (*ViewStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// 测试连接
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewViewStoreWithClient(client, prefix, channel, ttl), nil
}

// NewViewStoreWithClient 使用已有客户端
func NewViewStoreWithClient(client redis.UniversalClient, prefix, channel string, ttl time.Duration) *ViewStore {
	return &ViewStore{
		client:  client,
		prefix:  prefix,
		channel: channel,
		ttl:     ttl,
	}
}

// ViewReadyNotification 视图就绪通知消息
type ViewReadyNotification struct {
	RunID     string `json:"run_id"`
	Name      string `json:"name"`
	Key       string `json:"key"`
	Bytes     int    `json:"bytes"`
	Timestamp int64  `json:"timestamp"`
}

// Key 文档在 Redis 中的键
func (s *ViewStore) Key(name string) string {
	return s.prefix + name
}

// StoreView 写入最新文档并发布就绪通知
func (s *ViewStore) StoreView(ctx context.Context, runID, name string, payload []byte) error {
	key := s.Key(name)

	// 1. 写入文档（ttl 为 0 表示不过期）
	if err := s.client.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	// 2. 发布通知
	if s.channel == "" {
		return nil
	}
	msgJSON, err := json.Marshal(&ViewReadyNotification{
		RunID:     runID,
		Name:      name,
		Key:       key,
		Bytes:     len(payload),
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, msgJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接
func (s *ViewStore) Close() error {
	return s.client.Close()
}
