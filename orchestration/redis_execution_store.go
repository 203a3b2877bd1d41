package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/cortexkit/cortex/core"
)

// RedisExecutionStore persists audit records as per-session Redis lists,
// newest first, trimmed to a fixed size and expired after a TTL.
type RedisExecutionStore struct {
	client *redis.Client
	size   int
	ttl    time.Duration
	logger core.Logger
}

// NewRedisExecutionStore connects to Redis and verifies the connection.
func NewRedisExecutionStore(ctx context.Context, address string, size int, ttl time.Duration) (*RedisExecutionStore, error) {
	client := redis.NewClient(&redis.Options{Addr: address})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: redis at %s: %v", core.ErrConnectionFailed, address, err)
	}
	if size <= 0 {
		size = DefaultConfig().HistorySize
	}
	return &RedisExecutionStore{
		client: client,
		size:   size,
		ttl:    ttl,
		logger: &core.NoOpLogger{},
	}, nil
}

// SetLogger sets the logger provider.
func (s *RedisExecutionStore) SetLogger(logger core.Logger) {
	if logger == nil {
		s.logger = &core.NoOpLogger{}
	} else {
		s.logger = logger
	}
}

func (s *RedisExecutionStore) key(sessionID string) string {
	return "cortex:history:" + sessionID
}

func (s *RedisExecutionStore) Record(ctx context.Context, record ExecutionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to serialize execution record: %w", err)
	}

	key := s.key(record.SessionID)
	pipe := s.client.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, int64(s.size-1))
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", core.ErrRequestFailed, err)
	}
	return nil
}

func (s *RedisExecutionStore) Recent(ctx context.Context, sessionID string, limit int) ([]ExecutionRecord, error) {
	if limit <= 0 {
		limit = s.size
	}
	raw, err := s.client.LRange(ctx, s.key(sessionID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrRequestFailed, err)
	}

	records := make([]ExecutionRecord, 0, len(raw))
	for _, item := range raw {
		var record ExecutionRecord
		if err := json.Unmarshal([]byte(item), &record); err != nil {
			s.logger.Warn("Skipping corrupt execution record", map[string]interface{}{
				"operation":  "history_read",
				"session_id": sessionID,
				"error":      err.Error(),
			})
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// Close releases the Redis connection.
func (s *RedisExecutionStore) Close() error {
	return s.client.Close()
}
