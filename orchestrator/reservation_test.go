// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func computeReq(amount float64) []ResourceRequirement {
	return []ResourceRequirement{
		{ResourceType: ResourceCompute, Amount: amount, Unit: "cores", Required: true},
	}
}

func TestMemoryReserverReserveRelease(t *testing.T) {
	reserver := NewMemoryReserver()
	reserver.SetCapacity(ResourceCompute, 16)
	ctx := context.Background()

	require.NoError(t, reserver.Reserve(ctx, "job_1", computeReq(10)))
	assert.Equal(t, 10.0, reserver.Reserved(ResourceCompute))

	// Remaining 6 cores cannot satisfy another 10.
	err := reserver.Reserve(ctx, "job_2", computeReq(10))
	assert.ErrorIs(t, err, ErrReservationConflict)
	assert.Equal(t, 10.0, reserver.Reserved(ResourceCompute), "failed reserve holds nothing")

	require.NoError(t, reserver.Release(ctx, "job_1"))
	assert.Zero(t, reserver.Reserved(ResourceCompute))

	require.NoError(t, reserver.Reserve(ctx, "job_2", computeReq(10)))
}

func TestMemoryReserverDuplicateJob(t *testing.T) {
	reserver := NewMemoryReserver()
	reserver.SetCapacity(ResourceCompute, 16)
	ctx := context.Background()

	require.NoError(t, reserver.Reserve(ctx, "job_1", computeReq(4)))
	assert.ErrorIs(t, reserver.Reserve(ctx, "job_1", computeReq(4)), ErrReservationConflict)
}

func TestMemoryReserverSkipsOptionalAndAPIKeys(t *testing.T) {
	reserver := NewMemoryReserver()
	reserver.SetCapacity(ResourceCompute, 1)
	ctx := context.Background()

	reqs := []ResourceRequirement{
		{ResourceType: ResourceCompute, Amount: 100, Required: false},
		{ResourceType: ResourceAPIKey, Amount: 1, Unit: "anthropic", Required: true},
	}
	require.NoError(t, reserver.Reserve(ctx, "job_1", reqs))
	assert.Zero(t, reserver.Reserved(ResourceCompute))
}

func TestMemoryReserverReleaseUnknownJobIsNoop(t *testing.T) {
	reserver := NewMemoryReserver()
	assert.NoError(t, reserver.Release(context.Background(), "job_ghost"))
}

func TestMemoryReserverConcurrentContention(t *testing.T) {
	// 20 jobs race for 16 cores at 4 each; exactly 4 can win.
	reserver := NewMemoryReserver()
	reserver.SetCapacity(ResourceCompute, 16)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := reserver.Reserve(ctx, newJobID(), computeReq(4)); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 4, granted)
	assert.Equal(t, 16.0, reserver.Reserved(ResourceCompute))
}

func newMiniredisReserver(t *testing.T, capacity map[ResourceType]float64) *RedisReserver {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisReserverWithClient(client, capacity)
}

func TestRedisReserverReserveRelease(t *testing.T) {
	reserver := newMiniredisReserver(t, map[ResourceType]float64{ResourceCompute: 16})
	ctx := context.Background()

	require.NoError(t, reserver.Reserve(ctx, "job_1", computeReq(10)))

	held, err := reserver.Reserved(ctx, ResourceCompute)
	require.NoError(t, err)
	assert.Equal(t, 10.0, held)

	err = reserver.Reserve(ctx, "job_2", computeReq(10))
	assert.ErrorIs(t, err, ErrReservationConflict)

	held, err = reserver.Reserved(ctx, ResourceCompute)
	require.NoError(t, err)
	assert.Equal(t, 10.0, held, "rejected reserve rolled back its increment")

	require.NoError(t, reserver.Release(ctx, "job_1"))
	held, err = reserver.Reserved(ctx, ResourceCompute)
	require.NoError(t, err)
	assert.Zero(t, held)
}

func TestRedisReserverDuplicateJob(t *testing.T) {
	reserver := newMiniredisReserver(t, map[ResourceType]float64{ResourceCompute: 16})
	ctx := context.Background()

	require.NoError(t, reserver.Reserve(ctx, "job_1", computeReq(2)))
	assert.ErrorIs(t, reserver.Reserve(ctx, "job_1", computeReq(2)), ErrReservationConflict)
}

func TestRedisReserverMultiResourceRollback(t *testing.T) {
	reserver := newMiniredisReserver(t, map[ResourceType]float64{
		ResourceCompute: 16,
		ResourceMemory:  1024,
	})
	ctx := context.Background()

	// Memory demand exceeds capacity, so the compute increment (if it
	// happened first) must be rolled back too.
	reqs := []ResourceRequirement{
		{ResourceType: ResourceCompute, Amount: 8, Required: true},
		{ResourceType: ResourceMemory, Amount: 4096, Required: true},
	}
	err := reserver.Reserve(ctx, "job_1", reqs)
	assert.ErrorIs(t, err, ErrReservationConflict)

	compute, err := reserver.Reserved(ctx, ResourceCompute)
	require.NoError(t, err)
	assert.Zero(t, compute)

	memory, err := reserver.Reserved(ctx, ResourceMemory)
	require.NoError(t, err)
	assert.Zero(t, memory)
}

func TestRedisReserverReleaseUnknownJobIsNoop(t *testing.T) {
	reserver := newMiniredisReserver(t, map[ResourceType]float64{ResourceCompute: 16})
	assert.NoError(t, reserver.Release(context.Background(), "job_ghost"))
}

func TestRedisReserverEmptyRequirements(t *testing.T) {
	reserver := newMiniredisReserver(t, map[ResourceType]float64{ResourceCompute: 16})
	assert.NoError(t, reserver.Reserve(context.Background(), "job_1", nil))
}
