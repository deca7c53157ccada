package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const keyVerificationCode = "verification:code:%s"

type redisStore struct {
	client *redis.Client
}

// NewRedisStore backs the store with redis so codes survive restarts.
func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func codeKey(phone string) string {
	return fmt.Sprintf(keyVerificationCode, strings.TrimSpace(phone))
}

func (s *redisStore) Put(ctx context.Context, phone, code string, ttl time.Duration) error {
	return s.client.Set(ctx, codeKey(phone), code, ttl).Err()
}

func (s *redisStore) Take(ctx context.Context, phone, code string) error {
	key := codeKey(phone)
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return ErrCodeMismatch
	}
	if err != nil {
		return err
	}
	if value != code {
		return ErrCodeMismatch
	}
	return s.client.Del(ctx, key).Err()
}

func (s *redisStore) Delete(ctx context.Context, phone string) error {
	return s.client.Del(ctx, codeKey(phone)).Err()
}
