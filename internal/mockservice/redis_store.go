package mockservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/eye-check/internal/apiclient"
	"github.com/example/eye-check/internal/logging"
	"github.com/example/eye-check/internal/result"
)

const (
	redisIndexKey  = "eyecheck:results"
	redisRecordKey = "eyecheck:result:%s"
)

// RedisStore keeps each record as a JSON string and orders them with a
// sorted set scored by timestamp.
type RedisStore struct {
	cache Cache
	retrier
}

// NewRedisStore creates a store over cache.
func NewRedisStore(cache Cache, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		cache:   cache,
		retrier: newRetrier(logger.Named("redis_store")),
	}
}

func (s *RedisStore) Save(ctx context.Context, rec *result.Record) error {
	serialized, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	var score float64
	if rec.Timestamp != nil {
		score = float64(rec.Timestamp.UnixNano())
	}

	requestID := apiclient.RequestIDFrom(ctx)
	id := string(rec.ID)
	if err := s.executeWithRetry(ctx, "store.save", requestID, func() error {
		return s.cache.Set(ctx, fmt.Sprintf(redisRecordKey, id), string(serialized))
	}); err != nil {
		return err
	}
	return s.executeWithRetry(ctx, "store.index", requestID, func() error {
		return s.cache.ZAdd(ctx, redisIndexKey, score, id)
	})
}

func (s *RedisStore) List(ctx context.Context) ([]*result.Record, error) {
	requestID := apiclient.RequestIDFrom(ctx)
	var ids []string
	if err := s.executeWithRetry(ctx, "store.list", requestID, func() error {
		var err error
		ids, err = s.cache.ZRevRange(ctx, redisIndexKey)
		return err
	}); err != nil {
		return nil, err
	}

	records := make([]*result.Record, 0, len(ids))
	for _, id := range ids {
		var raw string
		missing := false
		if err := s.executeWithRetry(ctx, "store.get", requestID, func() error {
			var err error
			raw, err = s.cache.Get(ctx, fmt.Sprintf(redisRecordKey, id))
			if errors.Is(err, redis.Nil) {
				missing = true
				return nil
			}
			return err
		}); err != nil {
			return nil, err
		}
		if missing {
			// index entry outlived its record
			logging.WithOperation(s.logger, "store.list", requestID).Warn("dangling index entry", zap.String("result_id", id))
			continue
		}

		var rec result.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", id, err)
		}
		records = append(records, &rec)
	}
	return records, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	requestID := apiclient.RequestIDFrom(ctx)
	var removed int64
	if err := s.executeWithRetry(ctx, "store.delete", requestID, func() error {
		var err error
		removed, err = s.cache.Del(ctx, fmt.Sprintf(redisRecordKey, id))
		return err
	}); err != nil {
		return err
	}
	if err := s.executeWithRetry(ctx, "store.unindex", requestID, func() error {
		return s.cache.ZRem(ctx, redisIndexKey, id)
	}); err != nil {
		return err
	}
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) DeleteAll(ctx context.Context) error {
	requestID := apiclient.RequestIDFrom(ctx)
	var ids []string
	if err := s.executeWithRetry(ctx, "store.list", requestID, func() error {
		var err error
		ids, err = s.cache.ZRevRange(ctx, redisIndexKey)
		return err
	}); err != nil {
		return err
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, fmt.Sprintf(redisRecordKey, id))
	}
	keys = append(keys, redisIndexKey)
	return s.executeWithRetry(ctx, "store.delete_all", requestID, func() error {
		_, err := s.cache.Del(ctx, keys...)
		return err
	})
}
