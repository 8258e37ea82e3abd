package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adreel/api/internal/model"
)

// RedisRunStore keeps run states under run:<id> with a TTL
type RedisRunStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisRunStore(redisClient *redis.Client, ttl time.Duration) *RedisRunStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisRunStore{redis: redisClient, ttl: ttl}
}

func (s *RedisRunStore) Create(ctx context.Context, state *model.RunState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	ok, err := s.redis.SetNX(ctx, runKey(state.RunID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	if !ok {
		return ErrRunExists
	}
	return nil
}

func (s *RedisRunStore) Put(ctx context.Context, state *model.RunState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	return s.redis.Set(ctx, runKey(state.RunID), data, s.ttl).Err()
}

func (s *RedisRunStore) Get(ctx context.Context, runID string) (*model.RunState, error) {
	data, err := s.redis.Get(ctx, runKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}

	var state model.RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &state, nil
}

func runKey(runID string) string {
	return fmt.Sprintf("run:%s", runID)
}
