package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sweetpotato0/auto-concierge/message"
)

// RedisStore implements ConversationStore using a Redis list per user. Every
// append refreshes the key's TTL so an active conversation stays alive.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig holds Redis configuration for conversation storage.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewRedisStore creates a new Redis-based conversation store.
func NewRedisStore(config *RedisConfig) *RedisStore {
	if config == nil {
		config = &RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "auto-concierge:conversation:",
			TTL:    24 * time.Hour,
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &RedisStore{
		client: client,
		prefix: config.Prefix,
		ttl:    config.TTL,
	}
}

// GetConversation loads the full ordered conversation for a user.
func (s *RedisStore) GetConversation(ctx context.Context, userID string) ([]*message.Message, error) {
	key := s.key(userID)
	raw, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	entries := make([]*message.Message, 0, len(raw))
	for _, item := range raw {
		var msg message.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conversation entry: %w", err)
		}
		entries = append(entries, &msg)
	}
	return entries, nil
}

// AppendConversation pushes entries onto the user's list and refreshes TTL.
func (s *RedisStore) AppendConversation(ctx context.Context, userID string, entries []*message.Message) error {
	if len(entries) == 0 {
		return nil
	}

	key := s.key(userID)
	values := make([]interface{}, 0, len(entries))
	for _, entry := range entries {
		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal conversation entry: %w", err)
		}
		values = append(values, raw)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append conversation: %w", err)
	}
	return nil
}

// ClearConversation deletes the user's conversation key.
func (s *RedisStore) ClearConversation(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear conversation: %w", err)
	}
	return nil
}

// Ping checks if the Redis connection is alive.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + userID
}
