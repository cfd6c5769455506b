package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/zerowaste/internal/common"
)

// RedisStore implements Store with one Redis list per household collection.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// OpenRedis parses a redis:// URL and verifies the connection.
func OpenRedis(ctx context.Context, url string, logger *slog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStore(client, "zerowaste", logger), nil
}

func NewRedisStore(client *redis.Client, prefix string, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{client: client, prefix: prefix, logger: logger}
}

func (s *RedisStore) key(household, collection string) string {
	return s.prefix + ":" + household + ":" + collection
}

func toValues(docs []json.RawMessage) []any {
	vals := make([]any, len(docs))
	for i, d := range docs {
		vals[i] = string(d)
	}
	return vals
}

func (s *RedisStore) Replace(ctx context.Context, household, collection string, docs []json.RawMessage) error {
	key := s.key(household, collection)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(docs) > 0 {
			pipe.RPush(ctx, key, toValues(docs)...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: redis replace %s: %v", common.ErrDatabase, collection, err)
	}
	s.logger.Debug("store.redis.replace", "key", key, "count", len(docs))
	return nil
}

func (s *RedisStore) Append(ctx context.Context, household, collection string, docs []json.RawMessage) error {
	if len(docs) == 0 {
		return nil
	}
	key := s.key(household, collection)
	if err := s.client.RPush(ctx, key, toValues(docs)...).Err(); err != nil {
		return fmt.Errorf("%w: redis append %s: %v", common.ErrDatabase, collection, err)
	}
	s.logger.Debug("store.redis.append", "key", key, "count", len(docs))
	return nil
}

const maxUpdateAttempts = 10

// Update watches the key and retries when another writer changed it first.
func (s *RedisStore) Update(ctx context.Context, household, collection string, fn func([]json.RawMessage) ([]json.RawMessage, error)) error {
	key := s.key(household, collection)
	var fnErr error
	txf := func(tx *redis.Tx) error {
		vals, err := tx.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return err
		}
		current := make([]json.RawMessage, len(vals))
		for i, v := range vals {
			current[i] = json.RawMessage(v)
		}
		next, err := fn(current)
		if err != nil {
			fnErr = err
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if len(next) > 0 {
				pipe.RPush(ctx, key, toValues(next)...)
			}
			return nil
		})
		return err
	}

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			s.logger.Debug("store.redis.update", "key", key, "attempt", attempt)
			return nil
		}
		if fnErr != nil {
			return fnErr
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("%w: redis update %s: %v", common.ErrDatabase, collection, err)
		}
		s.logger.Debug("store.redis.update_conflict", "key", key, "attempt", attempt)
	}
	return fmt.Errorf("%w: redis update %s: too many concurrent writers", common.ErrDatabase, collection)
}

func (s *RedisStore) List(ctx context.Context, household, collection string) ([]json.RawMessage, error) {
	vals, err := s.client.LRange(ctx, s.key(household, collection), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redis list %s: %v", common.ErrDatabase, collection, err)
	}
	out := make([]json.RawMessage, len(vals))
	for i, v := range vals {
		out[i] = json.RawMessage(v)
	}
	return out, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
