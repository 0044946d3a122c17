package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"clinic-queue/models"

	"github.com/redis/go-redis/v9"
)

const (
	queueKeyPrefix = "queue:doctor:"
	auditLogKey    = "queue:audit:log"
	auditLogMax    = 10000
)

// Store is the persistence gateway boundary. Individual mutation saves
// are fire-and-forget from the caller's point of view; a full flush
// happens once, synchronously, on graceful shutdown.
type Store interface {
	SaveQueue(ctx context.Context, doctorID string, queue models.DoctorQueue) error
	LoadAllQueues(ctx context.Context) (map[string]models.DoctorQueue, error)
	SaveAuditEntry(ctx context.Context, event models.AuditEvent) error
	Close() error
}

// RedisStore persists one JSON record per doctor plus an append-only
// audit list.
type RedisStore struct {
	Redis *redis.Client
}

func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{Redis: redisClient}
}

func (s *RedisStore) SaveQueue(ctx context.Context, doctorID string, queue models.DoctorQueue) error {
	data, err := json.Marshal(queue)
	if err != nil {
		return fmt.Errorf("marshal queue for doctor %s: %w", doctorID, err)
	}

	if err := s.Redis.Set(ctx, queueKeyPrefix+doctorID, data, 0).Err(); err != nil {
		return fmt.Errorf("save queue for doctor %s: %w", doctorID, err)
	}

	return nil
}

func (s *RedisStore) LoadAllQueues(ctx context.Context) (map[string]models.DoctorQueue, error) {
	keys, err := s.Redis.Keys(ctx, queueKeyPrefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("list queue keys: %w", err)
	}

	queues := make(map[string]models.DoctorQueue, len(keys))

	for _, key := range keys {
		doctorID := strings.TrimPrefix(key, queueKeyPrefix)

		data, err := s.Redis.Get(ctx, key).Result()
		if err == redis.Nil {
			continue
		} else if err != nil {
			return nil, fmt.Errorf("load queue for doctor %s: %w", doctorID, err)
		}

		var queue models.DoctorQueue
		if err := json.Unmarshal([]byte(data), &queue); err != nil {
			return nil, fmt.Errorf("unmarshal queue for doctor %s: %w", doctorID, err)
		}

		queues[doctorID] = queue
	}

	return queues, nil
}

func (s *RedisStore) SaveAuditEntry(ctx context.Context, event models.AuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	if err := s.Redis.LPush(ctx, auditLogKey, data).Err(); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}

	// Bound the log; older entries are assumed archived elsewhere.
	return s.Redis.LTrim(ctx, auditLogKey, 0, auditLogMax-1).Err()
}

func (s *RedisStore) Close() error {
	return s.Redis.Close()
}
