// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"axonflow/deploy/orchestrator/cost"
)

// AgentCategory routes approval authority. There are exactly seven
// categories; adding one requires extending the category head table in
// approval.go, which the compiler will surface via AllCategories.
type AgentCategory string

const (
	CategoryCoreSecurity    AgentCategory = "core_security"
	CategoryAIIntelligence  AgentCategory = "ai_intelligence"
	CategoryEcommerce       AgentCategory = "ecommerce"
	CategoryMarketingBrand  AgentCategory = "marketing_brand"
	CategoryWordPressCMS    AgentCategory = "wordpress_cms"
	CategoryCustomerService AgentCategory = "customer_service"
	CategorySpecialized     AgentCategory = "specialized"
)

// AllCategories returns the seven fixed agent categories.
func AllCategories() []AgentCategory {
	return []AgentCategory{
		CategoryCoreSecurity,
		CategoryAIIntelligence,
		CategoryEcommerce,
		CategoryMarketingBrand,
		CategoryWordPressCMS,
		CategoryCustomerService,
		CategorySpecialized,
	}
}

// Valid reports whether c is one of the fixed categories.
func (c AgentCategory) Valid() bool {
	switch c {
	case CategoryCoreSecurity, CategoryAIIntelligence, CategoryEcommerce,
		CategoryMarketingBrand, CategoryWordPressCMS, CategoryCustomerService,
		CategorySpecialized:
		return true
	}
	return false
}

// ResourceType identifies a class of infrastructure capacity.
type ResourceType string

const (
	ResourceAPIKey   ResourceType = "api_key"
	ResourceDatabase ResourceType = "database"
	ResourceCompute  ResourceType = "compute"
	ResourceMemory   ResourceType = "memory"
	ResourceStorage  ResourceType = "storage"
	ResourceAPIQuota ResourceType = "api_quota"
	ResourceNetwork  ResourceType = "network"
)

// JobStatus is the lifecycle state of a job in the registry.
type JobStatus string

const (
	StatusDraft             JobStatus = "draft"
	StatusPendingValidation JobStatus = "pending_validation"
	StatusValidationFailed  JobStatus = "validation_failed"
	StatusCostRejected      JobStatus = "cost_rejected"
	StatusPendingApproval   JobStatus = "pending_approval"
	StatusRejected          JobStatus = "rejected"
	StatusApproved          JobStatus = "approved"
	StatusDeploying         JobStatus = "deploying"
	StatusRunning           JobStatus = "running"
	StatusCompleted         JobStatus = "completed"
	StatusFailed            JobStatus = "failed"
	StatusCancelled         JobStatus = "cancelled"
)

// Terminal reports whether the status is terminal. Terminal states never
// transition again.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusValidationFailed, StatusCostRejected, StatusRejected,
		StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// validTransitions encodes the job state machine. Transitions are
// monotonic: nothing leaves a terminal state.
var validTransitions = map[JobStatus][]JobStatus{
	StatusDraft:             {StatusPendingValidation, StatusCancelled},
	StatusPendingValidation: {StatusValidationFailed, StatusCostRejected, StatusPendingApproval, StatusCancelled},
	StatusPendingApproval:   {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:          {StatusDeploying, StatusValidationFailed, StatusCancelled},
	StatusDeploying:         {StatusRunning, StatusFailed, StatusCancelled},
	StatusRunning:           {StatusCompleted, StatusFailed, StatusCancelled},
}

// CanTransitionTo reports whether s -> next is a legal state change.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ApprovalStatus is the outcome of the category-head consensus.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ToolRequirement declares what a job needs from the tool catalog.
type ToolRequirement struct {
	ToolName       string   `json:"tool_name"`
	ToolType       string   `json:"tool_type"`
	Required       bool     `json:"required"`
	MinRateLimit   int      `json:"min_rate_limit,omitempty"`
	EstimatedCalls int      `json:"estimated_calls,omitempty"`
	Alternatives   []string `json:"alternatives,omitempty"`
}

// ResourceRequirement declares a quantity of infrastructure capacity a
// job needs. For ResourceAPIKey requirements, Unit names the provider
// whose key must be available.
type ResourceRequirement struct {
	ResourceType ResourceType `json:"resource_type"`
	Amount       float64      `json:"amount"`
	Unit         string       `json:"unit"`
	Required     bool         `json:"required"`
}

// Job defaults applied by NewJobDefinition / ApplyDefaults.
const (
	DefaultMaxExecutionTimeSeconds = 300
	DefaultMaxRetries              = 3
	DefaultPriority                = 5
	DefaultMaxBudgetUSD            = 1.0
)

// JobDefinition describes a unit of automation work submitted for
// execution. Definitions are immutable after submission: the orchestrator
// copies them into the registry and never writes back.
type JobDefinition struct {
	JobID             string                `json:"job_id"`
	JobName           string                `json:"job_name"`
	JobDescription    string                `json:"job_description"`
	Category          AgentCategory         `json:"category"`
	PrimaryAgent      string                `json:"primary_agent"`
	SupportingAgents  []string              `json:"supporting_agents,omitempty"`
	RequiredTools     []ToolRequirement     `json:"required_tools,omitempty"`
	RequiredResources []ResourceRequirement `json:"required_resources,omitempty"`

	// Model selects the pricing row for cost estimation; empty means the
	// estimator's default model.
	Model string `json:"model,omitempty"`

	MaxExecutionTimeSeconds int     `json:"max_execution_time_seconds"`
	MaxRetries              int     `json:"max_retries"`
	Priority                int     `json:"priority"`
	MaxBudgetUSD            float64 `json:"max_budget_usd"`
	EstimatedTokens         int     `json:"estimated_tokens,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewJobDefinition creates a job definition with a generated job ID and
// the standard defaults applied.
func NewJobDefinition(name, description string, category AgentCategory, primaryAgent string) *JobDefinition {
	job := &JobDefinition{
		JobID:          newJobID(),
		JobName:        name,
		JobDescription: description,
		Category:       category,
		PrimaryAgent:   primaryAgent,
		CreatedAt:      time.Now().UTC(),
	}
	job.ApplyDefaults()
	return job
}

// ApplyDefaults fills zero-valued tunables with the standard defaults
// and generates a job ID if none is set.
func (j *JobDefinition) ApplyDefaults() {
	if j.JobID == "" {
		j.JobID = newJobID()
	}
	if j.MaxExecutionTimeSeconds <= 0 {
		j.MaxExecutionTimeSeconds = DefaultMaxExecutionTimeSeconds
	}
	if j.MaxRetries <= 0 {
		j.MaxRetries = DefaultMaxRetries
	}
	if j.Priority <= 0 {
		j.Priority = DefaultPriority
	}
	if j.MaxBudgetUSD <= 0 {
		j.MaxBudgetUSD = DefaultMaxBudgetUSD
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
}

// Validate checks the definition for structural problems.
func (j *JobDefinition) Validate() error {
	if j.JobName == "" {
		return ErrInvalidJobName
	}
	if !j.Category.Valid() {
		return ErrUnknownCategory
	}
	if j.PrimaryAgent == "" {
		return ErrMissingPrimaryAgent
	}
	return nil
}

// MaxExecutionTime returns the execution bound as a duration.
func (j *JobDefinition) MaxExecutionTime() time.Duration {
	return time.Duration(j.MaxExecutionTimeSeconds) * time.Second
}

// TotalToolCalls sums estimated calls across all required tools.
func (j *JobDefinition) TotalToolCalls() int {
	total := 0
	for _, tool := range j.RequiredTools {
		total += tool.EstimatedCalls
	}
	return total
}

// CostProfile maps the job onto the estimator's input.
func (j *JobDefinition) CostProfile() cost.JobProfile {
	return cost.JobProfile{
		TotalToolCalls:   j.TotalToolCalls(),
		SupportingAgents: len(j.SupportingAgents),
		Model:            j.Model,
	}
}

// ResourceShortfall records a resource requirement the catalog could not
// satisfy at validation time.
type ResourceShortfall struct {
	ResourceType ResourceType `json:"resource_type"`
	Requested    float64      `json:"requested"`
	Available    float64      `json:"available"`
	Unit         string       `json:"unit,omitempty"`
}

// InfrastructureValidationResult is the outcome of checking a job's
// declared needs against the catalog. It is a point-in-time check, not a
// reservation: capacity seen here can be taken by the time the job runs.
type InfrastructureValidationResult struct {
	IsReady             bool                `json:"is_ready"`
	ValidationTimestamp time.Time           `json:"validation_timestamp"`
	ChecksPassed        int                 `json:"checks_passed"`
	ChecksFailed        int                 `json:"checks_failed"`
	MissingTools        []string            `json:"missing_tools,omitempty"`
	MissingResources    []ResourceShortfall `json:"missing_resources,omitempty"`
	Warnings            []string            `json:"warnings,omitempty"`
}

// ApprovalVote is a single category head's decision on a job.
type ApprovalVote struct {
	ReviewerCategory AgentCategory  `json:"reviewer_category"`
	Reviewer         string         `json:"reviewer"`
	Decision         ApprovalStatus `json:"decision"`
	Reasoning        string         `json:"reasoning"`
}

// ApprovalResult is the reduced consensus over all solicited votes.
type ApprovalResult struct {
	Approvals          []ApprovalVote `json:"approvals"`
	ApprovedCount      int            `json:"approved_count"`
	RejectedCount      int            `json:"rejected_count"`
	FinalDecision      ApprovalStatus `json:"final_decision"`
	ConsensusReasoning string         `json:"consensus_reasoning"`
}

// DeploymentExecution tracks one execution of an approved job. Retries
// reuse the same deployment identity and bump RetryCount.
type DeploymentExecution struct {
	DeploymentID string     `json:"deployment_id"`
	JobID        string     `json:"job_id"`
	Status       JobStatus  `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Error        string     `json:"error,omitempty"`
	RetryCount   int        `json:"retry_count"`
}

// NewDeploymentExecution creates an execution record in the deploying
// state with a generated deployment ID.
func NewDeploymentExecution(jobID string) *DeploymentExecution {
	return &DeploymentExecution{
		DeploymentID: newDeploymentID(),
		JobID:        jobID,
		Status:       StatusDeploying,
		StartedAt:    time.Now().UTC(),
	}
}

// StatusChange is one entry in a job's append-only status history.
type StatusChange struct {
	From   JobStatus `json:"from"`
	To     JobStatus `json:"to"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// JobStatusView is the composite snapshot returned by GetJobStatus.
type JobStatusView struct {
	Job        JobDefinition                   `json:"job"`
	Status     JobStatus                       `json:"status"`
	Validation *InfrastructureValidationResult `json:"validation_result,omitempty"`
	Approval   *ApprovalResult                 `json:"approval_result,omitempty"`
	Estimate   *cost.Estimate                  `json:"cost_estimate,omitempty"`
	Execution  *DeploymentExecution            `json:"execution,omitempty"`
	History    []StatusChange                  `json:"history,omitempty"`
}

// Submission outcome statuses returned by SubmitJob.
const (
	SubmitStatusValidationFailed = "validation_failed"
	SubmitStatusCostRejected     = "cost_rejected"
	SubmitStatusApprovalRejected = "approval_rejected"
	SubmitStatusDeploying        = "deploying"
)

// SubmitResult is the structured outcome of a job submission. SubmitJob
// always returns one of these; failures never escape as panics.
type SubmitResult struct {
	Status     string                          `json:"status"`
	JobID      string                          `json:"job_id"`
	CanProceed bool                            `json:"can_proceed"`
	Details    string                          `json:"details,omitempty"`
	Validation *InfrastructureValidationResult `json:"validation_result,omitempty"`
	Estimate   *cost.Estimate                  `json:"cost_estimate,omitempty"`
	Approval   *ApprovalResult                 `json:"approval_result,omitempty"`
}

// ApprovalStats counts consensus outcomes.
type ApprovalStats struct {
	Approved int64 `json:"approved"`
	Rejected int64 `json:"rejected"`
}

// CostStats aggregates estimated spend across submitted jobs.
type CostStats struct {
	TotalUSD   float64 `json:"total"`
	AverageUSD float64 `json:"average"`
}

// Statistics is the orchestrator's metrics snapshot. Reading it has no
// side effects: two reads with no intervening submissions are identical.
type Statistics struct {
	TotalJobs            int64         `json:"total_jobs"`
	TotalDeployments     int64         `json:"total_deployments"`
	InfrastructureChecks int64         `json:"infrastructure_checks"`
	ApprovalStats        ApprovalStats `json:"approval_stats"`
	CostStats            CostStats     `json:"cost_stats"`
}

func newJobID() string {
	return "job_" + shortHex()
}

func newDeploymentID() string {
	return "deploy_" + shortHex()
}

func shortHex() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])[:12]
}
