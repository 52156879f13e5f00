// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"context"
	"sync"
)

// DeploymentStore persists job snapshots for audit and post-restart
// inspection. The in-memory registry stays authoritative for the
// process lifetime; the store is a write-behind mirror updated at each
// pipeline stage.
type DeploymentStore interface {
	SaveJob(ctx context.Context, view *JobStatusView) error
	LoadJob(ctx context.Context, jobID string) (*JobStatusView, error)
	ListJobs(ctx context.Context) ([]*JobStatusView, error)
}

// MemoryStore is a DeploymentStore backed by a map. Used in tests and
// single-process deployments with no durability requirement.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*JobStatusView
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*JobStatusView)}
}

// SaveJob implements DeploymentStore.
func (s *MemoryStore) SaveJob(ctx context.Context, view *JobStatusView) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *view
	s.jobs[view.Job.JobID] = &copied
	return nil
}

// LoadJob implements DeploymentStore. Unknown IDs return ErrJobNotFound.
func (s *MemoryStore) LoadJob(ctx context.Context, jobID string) (*JobStatusView, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	view, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	copied := *view
	return &copied, nil
}

// ListJobs implements DeploymentStore.
func (s *MemoryStore) ListJobs(ctx context.Context) ([]*JobStatusView, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make([]*JobStatusView, 0, len(s.jobs))
	for _, view := range s.jobs {
		copied := *view
		views = append(views, &copied)
	}
	return views, nil
}
