// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"axonflow/deploy/shared/logger"

	"axonflow/deploy/orchestrator/cost"
)

// DefaultPollInterval is how often a deployment execution is polled for
// a terminal status.
const DefaultPollInterval = 250 * time.Millisecond

// jobRecord is a registry entry. Each record has its own mutex so jobs
// make progress independently; the registry map lock is only held for
// lookup and insert.
type jobRecord struct {
	mu sync.Mutex

	job        JobDefinition
	status     JobStatus
	validation *InfrastructureValidationResult
	approval   *ApprovalResult
	estimate   *cost.Estimate
	execution  *DeploymentExecution
	history    []StatusChange

	cancelExec context.CancelFunc
	done       chan struct{}
}

// transition advances the record's status, enforcing the state machine
// and appending to the history. Caller must not hold rec.mu.
func (rec *jobRecord) transition(to JobStatus, reason string) error {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.transitionLocked(to, reason)
}

func (rec *jobRecord) transitionLocked(to JobStatus, reason string) error {
	if !rec.status.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.status, to)
	}
	rec.history = append(rec.history, StatusChange{
		From:   rec.status,
		To:     to,
		At:     time.Now().UTC(),
		Reason: reason,
	})
	rec.status = to
	if to.Terminal() {
		close(rec.done)
	}
	return nil
}

// snapshot copies the record into an independent view.
func (rec *jobRecord) snapshot() *JobStatusView {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	view := &JobStatusView{
		Job:        rec.job,
		Status:     rec.status,
		Validation: rec.validation,
		Approval:   rec.approval,
		Estimate:   rec.estimate,
	}
	if rec.execution != nil {
		exec := *rec.execution
		view.Execution = &exec
	}
	view.History = append([]StatusChange(nil), rec.history...)
	return view
}

// Options configures a DeploymentOrchestrator. Zero-valued fields fall
// back to working defaults so tests can construct minimal pipelines.
type Options struct {
	Catalog      *InfrastructureCatalog
	Estimator    *cost.Estimator
	Approval     *CategoryHeadApprovalSystem
	Executor     Executor
	Reserver     ResourceReserver
	Store        DeploymentStore
	PollInterval time.Duration
}

// DeploymentOrchestrator owns the job registry and drives the pipeline:
// validate, estimate cost, approve, reserve, execute. All collaborators
// are injected; the orchestrator holds no global state.
type DeploymentOrchestrator struct {
	catalog   *InfrastructureCatalog
	estimator *cost.Estimator
	approval  *CategoryHeadApprovalSystem
	executor  Executor
	reserver  ResourceReserver
	store     DeploymentStore

	pollInterval time.Duration

	mu   sync.RWMutex
	jobs map[string]*jobRecord

	statsMu          sync.Mutex
	totalJobs        int64
	totalDeployments int64
	approvedCount    int64
	rejectedCount    int64
	costTotalUSD     float64
	costSamples      int64

	log *logger.Logger
}

// NewDeploymentOrchestrator creates an orchestrator from options,
// filling in defaults for anything unset.
func NewDeploymentOrchestrator(opts Options) *DeploymentOrchestrator {
	if opts.Catalog == nil {
		opts.Catalog = NewInfrastructureCatalog()
	}
	if opts.Estimator == nil {
		opts.Estimator = cost.NewEstimator(cost.NewPricingTable())
	}
	if opts.Approval == nil {
		opts.Approval = NewCategoryHeadApprovalSystem()
	}
	if opts.Executor == nil {
		opts.Executor = NewSimulatedExecutor(0)
	}
	if opts.Reserver == nil {
		opts.Reserver = NopReserver{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	return &DeploymentOrchestrator{
		catalog:      opts.Catalog,
		estimator:    opts.Estimator,
		approval:     opts.Approval,
		executor:     opts.Executor,
		reserver:     opts.Reserver,
		store:        opts.Store,
		pollInterval: opts.PollInterval,
		jobs:         make(map[string]*jobRecord),
		log:          logger.New("orchestrator"),
	}
}

// Catalog returns the injected infrastructure catalog.
func (o *DeploymentOrchestrator) Catalog() *InfrastructureCatalog {
	return o.catalog
}

// SubmitJob runs a job through admission control and, if it clears
// every gate, starts an asynchronous deployment execution. The returned
// result reports which gate stopped the job, or that deployment began.
// Structural problems (nil job, invalid definition, duplicate ID) are
// returned as errors; pipeline outcomes are never errors.
func (o *DeploymentOrchestrator) SubmitJob(ctx context.Context, job *JobDefinition) (*SubmitResult, error) {
	if job == nil {
		return nil, ErrNilJob
	}
	job.ApplyDefaults()
	if err := job.Validate(); err != nil {
		return nil, err
	}

	rec := &jobRecord{
		job:    *job,
		status: StatusDraft,
		done:   make(chan struct{}),
	}

	o.mu.Lock()
	if _, exists := o.jobs[job.JobID]; exists {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateJob, job.JobID)
	}
	o.jobs[job.JobID] = rec
	o.mu.Unlock()

	o.statsMu.Lock()
	o.totalJobs++
	o.statsMu.Unlock()

	o.log.Info(job.JobID, "", "job submitted", map[string]interface{}{
		"job_name": job.JobName,
		"category": string(job.Category),
		"priority": job.Priority,
	})

	rec.transition(StatusPendingValidation, "submitted")

	// Gate 1: infrastructure validation.
	validation := o.catalog.ValidateJob(job)
	metricValidationChecks.Inc()
	rec.mu.Lock()
	rec.validation = validation
	rec.mu.Unlock()

	if !validation.IsReady {
		rec.transition(StatusValidationFailed, "infrastructure checks failed")
		o.persist(rec)
		metricJobsSubmitted.WithLabelValues(SubmitStatusValidationFailed, string(job.Category)).Inc()
		return &SubmitResult{
			Status:     SubmitStatusValidationFailed,
			JobID:      job.JobID,
			CanProceed: false,
			Details:    fmt.Sprintf("%d infrastructure checks failed", validation.ChecksFailed),
			Validation: validation,
		}, nil
	}

	// Gate 2: cost estimation and budget.
	estimate, err := o.estimator.EstimateJob(job.CostProfile())
	if err != nil {
		// No pricing means the budget cannot be proven; fail closed.
		rec.transition(StatusCostRejected, "cost estimation failed: "+err.Error())
		o.persist(rec)
		metricJobsSubmitted.WithLabelValues(SubmitStatusCostRejected, string(job.Category)).Inc()
		return &SubmitResult{
			Status:     SubmitStatusCostRejected,
			JobID:      job.JobID,
			CanProceed: false,
			Details:    "cost estimation failed: " + err.Error(),
			Validation: validation,
		}, nil
	}

	rec.mu.Lock()
	rec.estimate = &estimate
	rec.mu.Unlock()

	o.statsMu.Lock()
	o.costTotalUSD += estimate.CostUSD
	o.costSamples++
	o.statsMu.Unlock()
	metricEstimatedCost.Observe(estimate.CostUSD)

	if estimate.CostUSD > job.MaxBudgetUSD {
		rec.transition(StatusCostRejected, fmt.Sprintf(
			"estimated cost $%.4f exceeds budget $%.4f", estimate.CostUSD, job.MaxBudgetUSD))
		o.persist(rec)
		metricJobsSubmitted.WithLabelValues(SubmitStatusCostRejected, string(job.Category)).Inc()
		return &SubmitResult{
			Status:     SubmitStatusCostRejected,
			JobID:      job.JobID,
			CanProceed: false,
			Details: fmt.Sprintf("estimated cost $%.4f exceeds budget $%.4f",
				estimate.CostUSD, job.MaxBudgetUSD),
			Validation: validation,
			Estimate:   &estimate,
		}, nil
	}

	// Gate 3: category-head approval.
	rec.transition(StatusPendingApproval, "within budget")
	approvalResult := o.approval.RequestApproval(job, validation, &estimate)
	rec.mu.Lock()
	rec.approval = approvalResult
	rec.mu.Unlock()
	metricApprovalDecisions.WithLabelValues(string(approvalResult.FinalDecision)).Inc()

	if approvalResult.FinalDecision != ApprovalApproved {
		o.statsMu.Lock()
		o.rejectedCount++
		o.statsMu.Unlock()

		rec.transition(StatusRejected, "approval denied")
		o.persist(rec)
		metricJobsSubmitted.WithLabelValues(SubmitStatusApprovalRejected, string(job.Category)).Inc()
		return &SubmitResult{
			Status:     SubmitStatusApprovalRejected,
			JobID:      job.JobID,
			CanProceed: false,
			Details:    approvalResult.ConsensusReasoning,
			Validation: validation,
			Estimate:   &estimate,
			Approval:   approvalResult,
		}, nil
	}

	o.statsMu.Lock()
	o.approvedCount++
	o.statsMu.Unlock()
	rec.transition(StatusApproved, "consensus approved")

	// Gate 4: resource reservation. Validation was advisory; this
	// actually holds the capacity until the execution finishes.
	if err := o.reserver.Reserve(ctx, job.JobID, job.RequiredResources); err != nil {
		rec.transition(StatusValidationFailed, "reservation failed: "+err.Error())
		o.persist(rec)
		metricJobsSubmitted.WithLabelValues(SubmitStatusValidationFailed, string(job.Category)).Inc()
		return &SubmitResult{
			Status:     SubmitStatusValidationFailed,
			JobID:      job.JobID,
			CanProceed: false,
			Details:    "resource reservation failed: " + err.Error(),
			Validation: validation,
			Estimate:   &estimate,
			Approval:   approvalResult,
		}, nil
	}

	// All gates cleared: create the execution and run it asynchronously.
	execCtx, cancel := context.WithCancel(context.Background())
	exec := NewDeploymentExecution(job.JobID)

	rec.mu.Lock()
	rec.execution = exec
	rec.cancelExec = cancel
	rec.mu.Unlock()

	o.statsMu.Lock()
	o.totalDeployments++
	o.statsMu.Unlock()

	rec.transition(StatusDeploying, "execution created")
	o.persist(rec)
	metricJobsSubmitted.WithLabelValues(SubmitStatusDeploying, string(job.Category)).Inc()
	metricJobsInFlight.Inc()

	go o.runExecution(execCtx, rec)

	return &SubmitResult{
		Status:     SubmitStatusDeploying,
		JobID:      job.JobID,
		CanProceed: true,
		Details:    "deployment " + exec.DeploymentID + " started",
		Validation: validation,
		Estimate:   &estimate,
		Approval:   approvalResult,
	}, nil
}

// runExecution drives one deployment to a terminal state, retrying
// failed attempts on the same deployment identity up to max_retries.
func (o *DeploymentOrchestrator) runExecution(ctx context.Context, rec *jobRecord) {
	defer metricJobsInFlight.Dec()

	rec.mu.Lock()
	job := rec.job
	exec := rec.execution
	rec.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, job.MaxExecutionTime())
	defer cancel()

	started := time.Now()
	defer func() {
		metricExecutionDuration.Observe(time.Since(started).Seconds())
		o.persist(rec)
	}()

	for attempt := 0; attempt <= job.MaxRetries; attempt++ {
		if attempt > 0 {
			metricExecutionRetries.Inc()
			rec.mu.Lock()
			exec.RetryCount = attempt
			rec.mu.Unlock()
			o.log.Warn(job.JobID, exec.DeploymentID, "retrying failed execution", map[string]interface{}{
				"attempt":     attempt,
				"max_retries": job.MaxRetries,
			})
		}

		status, execErr := o.runAttempt(ctx, rec, &job, exec)
		switch {
		case status == StatusCompleted:
			o.finishExecution(rec, exec, StatusCompleted, "")
			o.log.InfoWithDuration(job.JobID, exec.DeploymentID, "deployment completed",
				float64(time.Since(started).Milliseconds()), nil)
			return

		case status == StatusCancelled:
			o.finishExecution(rec, exec, StatusCancelled, "cancelled")
			return

		case ctx.Err() == context.Canceled:
			o.finishExecution(rec, exec, StatusCancelled, "cancelled")
			return

		case ctx.Err() != nil:
			o.finishExecution(rec, exec, StatusFailed, "execution timed out after "+job.MaxExecutionTime().String())
			return

		default:
			// Failed attempt; loop retries until attempts are exhausted.
			if execErr != nil {
				o.log.ErrorWithErr(job.JobID, exec.DeploymentID, "execution attempt failed", execErr, map[string]interface{}{
					"attempt": attempt,
				})
			}
		}
	}

	o.finishExecution(rec, exec, StatusFailed,
		fmt.Sprintf("failed after %d retries", job.MaxRetries))
}

// runAttempt starts the executor once and polls until the attempt
// reaches a terminal status, the context expires, or the job is
// cancelled externally.
func (o *DeploymentOrchestrator) runAttempt(ctx context.Context, rec *jobRecord, job *JobDefinition, exec *DeploymentExecution) (JobStatus, error) {
	handle, err := o.executor.Start(ctx, job)
	if err != nil {
		return StatusFailed, err
	}

	// First attempt moves the job to running; later attempts find it
	// already there.
	rec.mu.Lock()
	if rec.status == StatusDeploying {
		rec.transitionLocked(StatusRunning, "executor accepted work")
		exec.Status = StatusRunning
	}
	cancelled := rec.status == StatusCancelled
	rec.mu.Unlock()
	if cancelled {
		_ = o.executor.Cancel(context.Background(), handle)
		return StatusCancelled, nil
	}

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		status, err := o.executor.Poll(ctx, handle)
		if err != nil {
			if ctx.Err() != nil {
				_ = o.executor.Cancel(context.Background(), handle)
				return StatusFailed, ctx.Err()
			}
			return StatusFailed, err
		}
		if status != StatusRunning {
			return status, nil
		}

		rec.mu.Lock()
		cancelled := rec.status == StatusCancelled
		rec.mu.Unlock()
		if cancelled {
			_ = o.executor.Cancel(context.Background(), handle)
			return StatusCancelled, nil
		}

		select {
		case <-ctx.Done():
			_ = o.executor.Cancel(context.Background(), handle)
			return StatusFailed, ctx.Err()
		case <-ticker.C:
		}
	}
}

// finishExecution records the terminal status on both the execution and
// the job. The job transition is skipped when cancellation already won
// the race.
func (o *DeploymentOrchestrator) finishExecution(rec *jobRecord, exec *DeploymentExecution, status JobStatus, errMsg string) {
	// Return held capacity before the terminal transition is visible, so
	// anyone observing the terminal state sees the quota already freed.
	if err := o.reserver.Release(context.Background(), exec.JobID); err != nil {
		o.log.ErrorWithErr(exec.JobID, exec.DeploymentID, "failed to release reservation", err, nil)
	}

	now := time.Now().UTC()

	rec.mu.Lock()
	exec.Status = status
	exec.CompletedAt = &now
	exec.Error = errMsg
	if rec.status != status {
		if err := rec.transitionLocked(status, errMsg); err != nil {
			// Terminal race (e.g. cancelled while finishing); keep the
			// earlier terminal status.
			exec.Status = rec.status
		}
	}
	final := rec.status
	rec.mu.Unlock()

	metricDeployments.WithLabelValues(string(final)).Inc()
}

// GetJobStatus returns a composite snapshot of a job, or nil if the ID
// is unknown.
func (o *DeploymentOrchestrator) GetJobStatus(jobID string) *JobStatusView {
	o.mu.RLock()
	rec, ok := o.jobs[jobID]
	o.mu.RUnlock()
	if !ok {
		return nil
	}
	return rec.snapshot()
}

// WaitForJob blocks until the job reaches a terminal state or the
// context expires, then returns the final snapshot.
func (o *DeploymentOrchestrator) WaitForJob(ctx context.Context, jobID string) (*JobStatusView, error) {
	o.mu.RLock()
	rec, ok := o.jobs[jobID]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	select {
	case <-rec.done:
		return rec.snapshot(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CancelJob cancels an active job. Terminal jobs return
// ErrJobNotCancelable; unknown jobs return ErrJobNotFound.
func (o *DeploymentOrchestrator) CancelJob(ctx context.Context, jobID string) error {
	o.mu.RLock()
	rec, ok := o.jobs[jobID]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	rec.mu.Lock()
	if rec.status.Terminal() {
		rec.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrJobNotCancelable, jobID, rec.status)
	}
	if err := rec.transitionLocked(StatusCancelled, "cancelled by caller"); err != nil {
		rec.mu.Unlock()
		return err
	}
	if rec.execution != nil {
		rec.execution.Status = StatusCancelled
	}
	cancel := rec.cancelExec
	rec.mu.Unlock()

	if cancel != nil {
		cancel()
	} else {
		// Never reached execution, so nothing holds the reservation open.
		if err := o.reserver.Release(ctx, jobID); err != nil {
			o.log.ErrorWithErr(jobID, "", "failed to release reservation on cancel", err, nil)
		}
	}

	o.persist(rec)
	o.log.Info(jobID, "", "job cancelled", nil)
	return nil
}

// GetStatistics returns the orchestrator's aggregate counters. The read
// has no side effects: repeated calls with no intervening submissions
// return identical values.
func (o *DeploymentOrchestrator) GetStatistics() Statistics {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()

	stats := Statistics{
		TotalJobs:            o.totalJobs,
		TotalDeployments:     o.totalDeployments,
		InfrastructureChecks: o.catalog.ValidationCount(),
		ApprovalStats: ApprovalStats{
			Approved: o.approvedCount,
			Rejected: o.rejectedCount,
		},
		CostStats: CostStats{TotalUSD: o.costTotalUSD},
	}
	if o.costSamples > 0 {
		stats.CostStats.AverageUSD = o.costTotalUSD / float64(o.costSamples)
	}
	return stats
}

// persist writes the job snapshot to the durable store, if configured.
// Persistence is best-effort audit: failures are logged, never
// propagated into the pipeline.
func (o *DeploymentOrchestrator) persist(rec *jobRecord) {
	if o.store == nil {
		return
	}
	view := rec.snapshot()
	if err := o.store.SaveJob(context.Background(), view); err != nil {
		o.log.ErrorWithErr(view.Job.JobID, "", "failed to persist job snapshot", err, nil)
	}
}
