// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"axonflow/deploy/shared/logger"
)

// RedisReserver tracks reservations in Redis so multiple control-plane
// instances share one quota pool. Reserved amounts live in per-resource
// counters; each job's holdings are mirrored in a hash so release can
// return exactly what was taken.
type RedisReserver struct {
	client   *redis.Client
	capacity map[ResourceType]float64
	ttl      time.Duration
	log      *logger.Logger
}

// ReservationTTL bounds how long an abandoned reservation can leak
// capacity if a control-plane instance dies between reserve and release.
const ReservationTTL = 24 * time.Hour

// NewRedisReserver connects to Redis and returns a reserver enforcing
// the given per-resource capacities.
func NewRedisReserver(redisURL string, capacity map[ResourceType]float64) (*RedisReserver, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisReserverWithClient(client, capacity), nil
}

// NewRedisReserverWithClient wraps an existing client. Used by tests
// with an in-memory Redis.
func NewRedisReserverWithClient(client *redis.Client, capacity map[ResourceType]float64) *RedisReserver {
	caps := make(map[ResourceType]float64, len(capacity))
	for resourceType, amount := range capacity {
		caps[resourceType] = amount
	}
	return &RedisReserver{
		client:   client,
		capacity: caps,
		ttl:      ReservationTTL,
		log:      logger.New("redis-reserver"),
	}
}

func reservedKey(resourceType ResourceType) string {
	return "deploy:reserved:" + string(resourceType)
}

func jobReservationKey(jobID string) string {
	return "deploy:reservation:" + jobID
}

// Reserve implements ResourceReserver. Counters are incremented one
// resource at a time; if any increment overshoots capacity, everything
// taken so far is rolled back so the reservation is all-or-nothing.
func (r *RedisReserver) Reserve(ctx context.Context, jobID string, requirements []ResourceRequirement) error {
	exists, err := r.client.Exists(ctx, jobReservationKey(jobID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check existing reservation: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: job %s already holds a reservation", ErrReservationConflict, jobID)
	}

	wanted := make(map[ResourceType]float64)
	for _, req := range requirements {
		if !req.Required || req.ResourceType == ResourceAPIKey {
			continue
		}
		wanted[req.ResourceType] += req.Amount
	}
	if len(wanted) == 0 {
		return nil
	}

	taken := make(map[ResourceType]float64)
	for resourceType, amount := range wanted {
		newTotal, err := r.client.IncrByFloat(ctx, reservedKey(resourceType), amount).Result()
		if err != nil {
			r.rollback(ctx, taken)
			return fmt.Errorf("failed to reserve %s: %w", resourceType, err)
		}
		if newTotal > r.capacity[resourceType] {
			taken[resourceType] = amount
			r.rollback(ctx, taken)
			return fmt.Errorf("%w: %s requested %.2f, free %.2f",
				ErrReservationConflict, resourceType, amount,
				r.capacity[resourceType]-(newTotal-amount))
		}
		taken[resourceType] = amount
	}

	fields := make(map[string]interface{}, len(taken))
	for resourceType, amount := range taken {
		fields[string(resourceType)] = amount
	}
	pipe := r.client.Pipeline()
	pipe.HSet(ctx, jobReservationKey(jobID), fields)
	pipe.Expire(ctx, jobReservationKey(jobID), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		r.rollback(ctx, taken)
		return fmt.Errorf("failed to record reservation: %w", err)
	}

	r.log.Info(jobID, "", "resources reserved", map[string]interface{}{
		"resources": len(taken),
	})
	return nil
}

// Release implements ResourceReserver. Releasing a job with no
// reservation is a no-op.
func (r *RedisReserver) Release(ctx context.Context, jobID string) error {
	held, err := r.client.HGetAll(ctx, jobReservationKey(jobID)).Result()
	if err != nil {
		return fmt.Errorf("failed to read reservation: %w", err)
	}
	if len(held) == 0 {
		return nil
	}

	for resource, raw := range held {
		amount, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		if err := r.client.IncrByFloat(ctx, reservedKey(ResourceType(resource)), -amount).Err(); err != nil {
			return fmt.Errorf("failed to release %s: %w", resource, err)
		}
	}

	if err := r.client.Del(ctx, jobReservationKey(jobID)).Err(); err != nil {
		return fmt.Errorf("failed to clear reservation record: %w", err)
	}
	return nil
}

// Reserved returns the currently held amount for a resource type.
func (r *RedisReserver) Reserved(ctx context.Context, resourceType ResourceType) (float64, error) {
	raw, err := r.client.Get(ctx, reservedKey(resourceType)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(raw, 64)
}

// Close releases the Redis connection.
func (r *RedisReserver) Close() error {
	return r.client.Close()
}

func (r *RedisReserver) rollback(ctx context.Context, taken map[ResourceType]float64) {
	for resourceType, amount := range taken {
		if err := r.client.IncrByFloat(ctx, reservedKey(resourceType), -amount).Err(); err != nil {
			r.log.Error("", "", "failed to roll back reservation counter", map[string]interface{}{
				"resource_type": string(resourceType),
				"error":         err.Error(),
			})
		}
	}
}
