package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Checker-Finance/assetcache/pkg/model"
)

// RedisStore keeps the cache in three keys under a prefix:
//
//	<prefix>:assets                    hash id -> JSON record
//	<prefix>:assets:saved_ts           snapshot timestamp of the hash
//	<prefix>:pref:last_update_timestamp  last-update marker
//
// Snapshots are written in a MULTI/EXEC block.
type RedisStore struct {
	redis  *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedis connects to addr and verifies the connection.
func NewRedis(addr string, db int, password, prefix string, logger *zap.Logger) (*RedisStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       db,
		Password: password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisFromClient(rdb, prefix, logger), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(rdb *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "assetcache"
	}
	return &RedisStore{redis: rdb, prefix: prefix, logger: logger}
}

func (s *RedisStore) assetsKey() string  { return s.prefix + ":assets" }
func (s *RedisStore) savedTSKey() string { return s.prefix + ":assets:saved_ts" }
func (s *RedisStore) markerKey() string  { return s.prefix + ":pref:" + markerKey }

func (s *RedisStore) ready() error {
	if s == nil || s.redis == nil {
		return fmt.Errorf("redis not initialized: %w", ErrClosed)
	}
	return nil
}

func (s *RedisStore) GetAll(ctx context.Context) ([]model.CachedRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	raw, err := s.redis.HGetAll(ctx, s.assetsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("read assets: %w", err)
	}

	out := make([]model.CachedRecord, 0, len(raw))
	for id, data := range raw {
		var r model.CachedRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("decode asset %s: %w", id, err)
		}
		out = append(out, r)
	}
	model.SortRecordsByRank(out)
	return out, nil
}

func (s *RedisStore) GetByID(ctx context.Context, id string) (*model.CachedRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	data, err := s.redis.HGet(ctx, s.assetsKey(), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("read asset %s: %w", id, err)
	}

	var r model.CachedRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode asset %s: %w", id, err)
	}
	return &r, nil
}

func (s *RedisStore) ReplaceAll(ctx context.Context, records []model.CachedRecord) error {
	return s.writeSnapshot(ctx, records, 0, false)
}

func (s *RedisStore) SharedSavedTimestamp(ctx context.Context) (int64, bool, error) {
	if err := s.ready(); err != nil {
		return 0, false, err
	}
	return s.getInt(ctx, s.savedTSKey())
}

func (s *RedisStore) ReadMarker(ctx context.Context) (int64, bool, error) {
	if err := s.ready(); err != nil {
		return 0, false, err
	}
	return s.getInt(ctx, s.markerKey())
}

func (s *RedisStore) WriteMarker(ctx context.Context, ts int64) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.redis.Set(ctx, s.markerKey(), ts, 0).Err()
}

func (s *RedisStore) ClearMarker(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.redis.Del(ctx, s.markerKey()).Err()
}

// WriteSnapshot replaces every record and the marker in one MULTI/EXEC.
func (s *RedisStore) WriteSnapshot(ctx context.Context, records []model.CachedRecord, ts int64) error {
	return s.writeSnapshot(ctx, records, ts, true)
}

func (s *RedisStore) writeSnapshot(ctx context.Context, records []model.CachedRecord, ts int64, withMarker bool) error {
	if err := s.ready(); err != nil {
		return err
	}

	fields := make([]any, 0, len(records)*2)
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode asset %s: %w", r.ID, err)
		}
		fields = append(fields, r.ID, data)
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.assetsKey(), s.savedTSKey())
		if len(records) > 0 {
			pipe.HSet(ctx, s.assetsKey(), fields...)
			pipe.Set(ctx, s.savedTSKey(), records[0].SavedTimestamp, 0)
		}
		if withMarker {
			pipe.Set(ctx, s.markerKey(), ts, 0)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("store.redis.snapshot_failed", zap.Error(err))
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) getInt(ctx context.Context, key string) (int64, bool, error) {
	val, err := s.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid integer at %s: %w", key, err)
	}
	return n, true, nil
}

func (s *RedisStore) HealthCheck(ctx context.Context) error {
	if s == nil || s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if s != nil && s.redis != nil {
		return s.redis.Close()
	}
	return nil
}
