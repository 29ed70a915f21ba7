package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/adedejiosvaldo/rescuelink/backend/internal/models"
)

type RedisDB struct {
	client        *redis.Client
	eventsChannel string
}

func NewRedisDB(redisURL, eventsChannel string) (*RedisDB, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewRedisDBFromClient(client, eventsChannel), nil
}

// NewRedisDBFromClient wraps an existing client
func NewRedisDBFromClient(client *redis.Client, eventsChannel string) *RedisDB {
	return &RedisDB{client: client, eventsChannel: eventsChannel}
}

func (r *RedisDB) Close() error {
	return r.client.Close()
}

// Signal status snapshots
func (r *RedisDB) SetSignalStatus(ctx context.Context, status *models.SignalStatus, ttl time.Duration) error {
	key := fmt.Sprintf("sos:status:%s", status.SignalID)
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

// FillSignalStatus stores the snapshot only if the key is absent, so it never
// replaces one written by a transition that committed after our read
func (r *RedisDB) FillSignalStatus(ctx context.Context, status *models.SignalStatus, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("sos:status:%s", status.SignalID)
	data, err := json.Marshal(status)
	if err != nil {
		return false, err
	}
	return r.client.SetNX(ctx, key, data, ttl).Result()
}

func (r *RedisDB) GetSignalStatus(ctx context.Context, signalID uuid.UUID) (*models.SignalStatus, error) {
	key := fmt.Sprintf("sos:status:%s", signalID)
	data, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var status models.SignalStatus
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Rate limiting
func (r *RedisDB) CheckRateLimit(ctx context.Context, key string, window time.Duration, limit int) (bool, error) {
	key = fmt.Sprintf("ratelimit:%s", key)

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}

	// Set expiry on first request
	if count == 1 {
		r.client.Expire(ctx, key, window)
	}

	return count <= int64(limit), nil
}

// Publish fans the event out on the events channel for other services
func (r *RedisDB) Publish(ctx context.Context, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.eventsChannel, data).Err()
}
