package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"nullbr-search-service/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	searchKeyPrefix   = "nullbr:session:search:"
	resourceKeyPrefix = "nullbr:session:resource:"
)

// RedisSessionStore keeps sessions in Redis so they survive restarts and
// are shared between replicas
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisSessionStore connects to redisURL and creates a new RedisSessionStore
func NewRedisSessionStore(redisURL string, ttl time.Duration) (*RedisSessionStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	// 只记录地址，不记录完整 URL（可能包含密码）
	log.Info().Str("addr", opt.Addr).Msg("✅ Redis connected")

	return NewRedisSessionStoreFromClient(client, ttl), nil
}

// NewRedisSessionStoreFromClient wraps an existing client
func NewRedisSessionStoreFromClient(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisSessionStore{client: client, ttl: ttl, now: time.Now}
}

// SetClock replaces the time source used for the lazy TTL check
func (s *RedisSessionStore) SetClock(now func() time.Time) {
	s.now = now
}

// Client exposes the underlying connection so metrics can share it
func (s *RedisSessionStore) Client() *redis.Client {
	return s.client
}

// PutSearch replaces the search listing of user
func (s *RedisSessionStore) PutSearch(ctx context.Context, user string, hits []model.SearchHit, keyword string) error {
	return s.set(ctx, searchKeyPrefix+user, &model.SearchCacheEntry{
		Hits:      truncate(hits),
		Keyword:   keyword,
		CreatedAt: s.now(),
	})
}

// GetSearch returns the live search listing of user
func (s *RedisSessionStore) GetSearch(ctx context.Context, user string) (*model.SearchCacheEntry, bool, error) {
	var entry model.SearchCacheEntry
	ok, err := s.get(ctx, searchKeyPrefix+user, &entry)
	if err != nil || !ok {
		return nil, false, err
	}
	if !model.Live(entry.CreatedAt, s.now(), s.ttl) {
		return nil, false, nil
	}
	return &entry, true, nil
}

// PutResource replaces the resource listing of user
func (s *RedisSessionStore) PutResource(ctx context.Context, user string, items []model.ResourceItem, title string, rt model.ResourceType) error {
	return s.set(ctx, resourceKeyPrefix+user, &model.ResourceCacheEntry{
		Items:     truncate(items),
		Title:     title,
		Type:      rt,
		CreatedAt: s.now(),
	})
}

// GetResource returns the live resource listing of user
func (s *RedisSessionStore) GetResource(ctx context.Context, user string) (*model.ResourceCacheEntry, bool, error) {
	var entry model.ResourceCacheEntry
	ok, err := s.get(ctx, resourceKeyPrefix+user, &entry)
	if err != nil || !ok {
		return nil, false, err
	}
	if !model.Live(entry.CreatedAt, s.now(), s.ttl) {
		return nil, false, nil
	}
	return &entry, true, nil
}

// Clear drops both listings of user
func (s *RedisSessionStore) Clear(ctx context.Context, user string) error {
	if err := s.client.Del(ctx, searchKeyPrefix+user, resourceKeyPrefix+user).Err(); err != nil {
		return fmt.Errorf("redis del error: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}

func (s *RedisSessionStore) set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) get(ctx context.Context, key string, dest interface{}) (bool, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis get error: %w", err)
	}

	if err := json.Unmarshal(val, dest); err != nil {
		// 损坏的会话视为不存在
		log.Warn().Err(err).Str("key", key).Msg("failed to unmarshal session")
		return false, nil
	}
	return true, nil
}
