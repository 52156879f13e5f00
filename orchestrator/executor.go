// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrUnknownHandle is returned when an executor operation references a
// handle it never issued.
var ErrUnknownHandle = errors.New("unknown execution handle")

// Executor runs approved jobs. The concrete work-performing agents are
// opaque to the orchestrator: it only starts work, polls for a terminal
// status and cancels. Implementations must be safe for concurrent use.
type Executor interface {
	// Start begins execution of a job and returns an opaque handle.
	Start(ctx context.Context, job *JobDefinition) (string, error)

	// Poll reports the current status for a handle: StatusRunning while
	// in flight, StatusCompleted/StatusFailed/StatusCancelled when done.
	Poll(ctx context.Context, handle string) (JobStatus, error)

	// Cancel stops a running execution.
	Cancel(ctx context.Context, handle string) error
}

type simulatedRun struct {
	jobID     string
	startedAt time.Time
	fail      bool
	cancelled bool
}

// SimulatedExecutor is an in-process Executor for development and
// testing. Runs complete after a configurable latency; failures are
// scripted per job so retry behavior can be exercised deterministically.
type SimulatedExecutor struct {
	mu       sync.Mutex
	latency  time.Duration
	runs     map[string]*simulatedRun
	failures map[string]int
	attempts map[string]int
	startErr map[string]error
}

// NewSimulatedExecutor creates a simulated executor whose runs complete
// after the given latency.
func NewSimulatedExecutor(latency time.Duration) *SimulatedExecutor {
	return &SimulatedExecutor{
		latency:  latency,
		runs:     make(map[string]*simulatedRun),
		failures: make(map[string]int),
		attempts: make(map[string]int),
		startErr: make(map[string]error),
	}
}

// FailAttempts scripts the first n executions of a job to fail. Runs
// after the nth attempt succeed, which exercises the retry path.
func (e *SimulatedExecutor) FailAttempts(jobID string, n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[jobID] = n
}

// FailStart scripts Start itself to return an error for a job,
// simulating an unreachable execution backend.
func (e *SimulatedExecutor) FailStart(jobID string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startErr[jobID] = err
}

// Attempts returns how many times a job has been started.
func (e *SimulatedExecutor) Attempts(jobID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts[jobID]
}

// Start implements Executor.
func (e *SimulatedExecutor) Start(ctx context.Context, job *JobDefinition) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err, ok := e.startErr[job.JobID]; ok {
		return "", err
	}

	e.attempts[job.JobID]++
	handle := "exec_" + shortHex()
	e.runs[handle] = &simulatedRun{
		jobID:     job.JobID,
		startedAt: time.Now(),
		fail:      e.attempts[job.JobID] <= e.failures[job.JobID],
	}
	return handle, nil
}

// Poll implements Executor.
func (e *SimulatedExecutor) Poll(ctx context.Context, handle string) (JobStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	run, ok := e.runs[handle]
	if !ok {
		return "", ErrUnknownHandle
	}
	if run.cancelled {
		return StatusCancelled, nil
	}
	if time.Since(run.startedAt) < e.latency {
		return StatusRunning, nil
	}
	if run.fail {
		return StatusFailed, nil
	}
	return StatusCompleted, nil
}

// Cancel implements Executor.
func (e *SimulatedExecutor) Cancel(ctx context.Context, handle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	run, ok := e.runs[handle]
	if !ok {
		return ErrUnknownHandle
	}
	run.cancelled = true
	return nil
}
