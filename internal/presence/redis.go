package presence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore 以 Redis set 保存在線名單，key 格式為 "<prefix>:<category>:<room>"
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(ctx context.Context, redisURL, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreWithClient(client, prefix), nil
}

func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "presence"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(category, room string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, category, room)
}

func (s *RedisStore) Join(ctx context.Context, category, room, memberID string) error {
	return s.client.SAdd(ctx, s.key(category, room), memberID).Err()
}

func (s *RedisStore) Leave(ctx context.Context, category, room, memberID string) error {
	return s.client.SRem(ctx, s.key(category, room), memberID).Err()
}

func (s *RedisStore) Count(ctx context.Context, category, room string) (int64, error) {
	return s.client.SCard(ctx, s.key(category, room)).Result()
}

// Members 回傳房間內所有在線成員 ID
func (s *RedisStore) Members(ctx context.Context, category, room string) ([]string, error) {
	return s.client.SMembers(ctx, s.key(category, room)).Result()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
