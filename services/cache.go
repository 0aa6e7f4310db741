package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wastewatch/models"

	"github.com/go-redis/redis/v8"
)

var ErrCacheMiss = errors.New("cache miss")

const evaluationKeyPrefix = "wastewatch:evaluation:"

// KVStore is the small key-value surface the snapshot cache needs
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

type RedisKVStore struct {
	c *redis.Client
}

func NewRedisKVStore(c *redis.Client) *RedisKVStore { return &RedisKVStore{c: c} }

func (r *RedisKVStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.c.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrCacheMiss
		}
		return "", err
	}
	return val, nil
}

func (r *RedisKVStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.c.Set(ctx, key, value, ttl).Err()
}

// CachedEvaluation is the latest snapshot and evaluation stored for a device
type CachedEvaluation struct {
	Snapshot   *models.SensorSnapshot `json:"snapshot"`
	Evaluation models.Evaluation      `json:"evaluation"`
}

// SnapshotCache keeps the latest evaluation per device in a KVStore
type SnapshotCache struct {
	kv  KVStore
	ttl time.Duration
}

func NewSnapshotCache(kv KVStore, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{kv: kv, ttl: ttl}
}

func (c *SnapshotCache) Put(ctx context.Context, snapshot *models.SensorSnapshot, eval models.Evaluation) error {
	data, err := json.Marshal(CachedEvaluation{Snapshot: snapshot, Evaluation: eval})
	if err != nil {
		return fmt.Errorf("failed to encode cached evaluation: %w", err)
	}
	return c.kv.Set(ctx, evaluationKeyPrefix+eval.DeviceID, string(data), c.ttl)
}

// Get returns ErrCacheMiss when nothing is cached for deviceID
func (c *SnapshotCache) Get(ctx context.Context, deviceID string) (*CachedEvaluation, error) {
	raw, err := c.kv.Get(ctx, evaluationKeyPrefix+deviceID)
	if err != nil {
		return nil, err
	}

	var cached CachedEvaluation
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return nil, fmt.Errorf("failed to decode cached evaluation: %w", err)
	}
	return &cached, nil
}
