// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"context"
	"fmt"
	"sync"
)

// ResourceReserver holds resource capacity for a job between approval
// and execution. Validation alone is advisory: capacity that looked
// available can be taken by a concurrent deployment before the job
// runs. A reserver closes that gap with an explicit reserve/release
// step. Reserve is all-or-nothing: on conflict, nothing stays held.
type ResourceReserver interface {
	Reserve(ctx context.Context, jobID string, requirements []ResourceRequirement) error
	Release(ctx context.Context, jobID string) error
}

// NopReserver performs no reservation, keeping quota checks advisory.
// This matches deployments where capacity enforcement happens in the
// execution backend instead.
type NopReserver struct{}

func (NopReserver) Reserve(ctx context.Context, jobID string, requirements []ResourceRequirement) error {
	return nil
}

func (NopReserver) Release(ctx context.Context, jobID string) error {
	return nil
}

// MemoryReserver tracks reservations in process memory. Suitable for a
// single-instance control plane; use RedisReserver when multiple
// instances share a quota pool.
type MemoryReserver struct {
	mu       sync.Mutex
	capacity map[ResourceType]float64
	reserved map[ResourceType]float64
	byJob    map[string]map[ResourceType]float64
}

// NewMemoryReserver creates a reserver with no capacity registered.
func NewMemoryReserver() *MemoryReserver {
	return &MemoryReserver{
		capacity: make(map[ResourceType]float64),
		reserved: make(map[ResourceType]float64),
		byJob:    make(map[string]map[ResourceType]float64),
	}
}

// SetCapacity sets the reservable capacity for a resource type.
// Typically mirrored from the infrastructure catalog at bootstrap.
func (r *MemoryReserver) SetCapacity(resourceType ResourceType, amount float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capacity[resourceType] = amount
}

// Reserved returns the currently held amount for a resource type.
func (r *MemoryReserver) Reserved(resourceType ResourceType) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reserved[resourceType]
}

// Reserve implements ResourceReserver. Only required, quantity-bearing
// requirements reserve capacity; API-key requirements are availability
// checks, not consumable quota.
func (r *MemoryReserver) Reserve(ctx context.Context, jobID string, requirements []ResourceRequirement) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byJob[jobID]; exists {
		return fmt.Errorf("%w: job %s already holds a reservation", ErrReservationConflict, jobID)
	}

	wanted := make(map[ResourceType]float64)
	for _, req := range requirements {
		if !req.Required || req.ResourceType == ResourceAPIKey {
			continue
		}
		wanted[req.ResourceType] += req.Amount
	}

	for resourceType, amount := range wanted {
		if r.reserved[resourceType]+amount > r.capacity[resourceType] {
			return fmt.Errorf("%w: %s requested %.2f, free %.2f",
				ErrReservationConflict, resourceType, amount,
				r.capacity[resourceType]-r.reserved[resourceType])
		}
	}

	for resourceType, amount := range wanted {
		r.reserved[resourceType] += amount
	}
	r.byJob[jobID] = wanted
	return nil
}

// Release implements ResourceReserver. Releasing a job with no
// reservation is a no-op, so release is safe to call from deferred
// cleanup paths.
func (r *MemoryReserver) Release(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	held, ok := r.byJob[jobID]
	if !ok {
		return nil
	}
	for resourceType, amount := range held {
		r.reserved[resourceType] -= amount
		if r.reserved[resourceType] < 0 {
			r.reserved[resourceType] = 0
		}
	}
	delete(r.byJob, jobID)
	return nil
}
