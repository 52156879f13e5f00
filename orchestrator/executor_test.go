// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedExecutorLifecycle(t *testing.T) {
	executor := NewSimulatedExecutor(20 * time.Millisecond)
	job := NewJobDefinition("j", "d", CategorySpecialized, "agent")
	ctx := context.Background()

	handle, err := executor.Start(ctx, job)
	require.NoError(t, err)
	assert.NotEmpty(t, handle)

	status, err := executor.Poll(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, status)

	time.Sleep(30 * time.Millisecond)
	status, err = executor.Poll(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status)
}

func TestSimulatedExecutorScriptedFailures(t *testing.T) {
	executor := NewSimulatedExecutor(0)
	job := NewJobDefinition("j", "d", CategorySpecialized, "agent")
	executor.FailAttempts(job.JobID, 2)
	ctx := context.Background()

	for attempt := 1; attempt <= 3; attempt++ {
		handle, err := executor.Start(ctx, job)
		require.NoError(t, err)

		status, err := executor.Poll(ctx, handle)
		require.NoError(t, err)
		if attempt <= 2 {
			assert.Equal(t, StatusFailed, status, "attempt %d", attempt)
		} else {
			assert.Equal(t, StatusCompleted, status, "attempt %d", attempt)
		}
	}
	assert.Equal(t, 3, executor.Attempts(job.JobID))
}

func TestSimulatedExecutorCancel(t *testing.T) {
	executor := NewSimulatedExecutor(time.Hour)
	job := NewJobDefinition("j", "d", CategorySpecialized, "agent")
	ctx := context.Background()

	handle, err := executor.Start(ctx, job)
	require.NoError(t, err)

	require.NoError(t, executor.Cancel(ctx, handle))
	status, err := executor.Poll(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, status)
}

func TestSimulatedExecutorUnknownHandle(t *testing.T) {
	executor := NewSimulatedExecutor(0)
	ctx := context.Background()

	_, err := executor.Poll(ctx, "exec_ghost")
	assert.ErrorIs(t, err, ErrUnknownHandle)
	assert.ErrorIs(t, executor.Cancel(ctx, "exec_ghost"), ErrUnknownHandle)
}

func TestSimulatedExecutorRespectsContext(t *testing.T) {
	executor := NewSimulatedExecutor(0)
	job := NewJobDefinition("j", "d", CategorySpecialized, "agent")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := executor.Start(ctx, job)
	assert.Error(t, err)
}
