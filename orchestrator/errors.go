// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import "errors"

// Sentinel errors for the deployment pipeline. Callers distinguish them
// with errors.Is; everything else is wrapped with context via fmt.Errorf.
var (
	// ErrJobNotFound is returned when a job ID is not in the registry.
	ErrJobNotFound = errors.New("job not found")

	// ErrDuplicateJob is returned when a submitted job ID already exists.
	ErrDuplicateJob = errors.New("job already submitted")

	// ErrNilJob is returned when a nil job definition is submitted.
	ErrNilJob = errors.New("nil job definition")

	// ErrInvalidJobName is returned when a job has no name.
	ErrInvalidJobName = errors.New("job name is required")

	// ErrUnknownCategory is returned when a job's category is not one of
	// the seven fixed agent categories.
	ErrUnknownCategory = errors.New("unknown agent category")

	// ErrMissingPrimaryAgent is returned when a job names no primary agent.
	ErrMissingPrimaryAgent = errors.New("primary agent is required")

	// ErrInvalidTransition is returned when a status change would violate
	// the job state machine.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrJobNotCancelable is returned when cancellation is requested for a
	// job already in a terminal state.
	ErrJobNotCancelable = errors.New("job is not cancelable")

	// ErrReservationConflict is returned when capacity that validated as
	// available has been taken by a concurrent deployment.
	ErrReservationConflict = errors.New("resource reservation conflict")

	// ErrUnknownTool is returned when a rate limit update references a
	// tool that was never registered.
	ErrUnknownTool = errors.New("tool not registered")
)
