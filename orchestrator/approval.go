// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"axonflow/deploy/shared/logger"

	"axonflow/deploy/orchestrator/cost"
)

// HeadPolicy produces one category head's vote on a job. Policies must
// be deterministic over the job attributes and the cost estimate; swap
// in a different policy to replace the simulated reviewers with a real
// review integration without touching the orchestrator.
type HeadPolicy func(head AgentCategory, job *JobDefinition, estimate *cost.Estimate) ApprovalVote

// Thresholds that widen the reviewer set beyond the primary head.
const (
	// HighRiskPriority is the priority at or above which the security
	// head is always solicited.
	HighRiskPriority = 8

	// DefaultHighRiskCostUSD is the estimated cost at or above which the
	// security head is always solicited.
	DefaultHighRiskCostUSD = 5.0

	// CrossCategoryAgentThreshold is the supporting-agent count at or
	// above which the AI intelligence head joins the review.
	CrossCategoryAgentThreshold = 2
)

// CategoryHeadApprovalSystem solicits votes from category heads and
// reduces them to a single consensus decision. One head exists per
// agent category; which heads review a given job depends on its primary
// category, its supporting-agent fan-out and its risk profile.
type CategoryHeadApprovalSystem struct {
	heads           map[AgentCategory]string
	policy          HeadPolicy
	highRiskCostUSD float64

	log *logger.Logger
}

// NewCategoryHeadApprovalSystem creates an approval system with the
// default simulated heads and the default policy.
func NewCategoryHeadApprovalSystem() *CategoryHeadApprovalSystem {
	return &CategoryHeadApprovalSystem{
		heads: map[AgentCategory]string{
			CategoryCoreSecurity:    "security-head",
			CategoryAIIntelligence:  "ai-head",
			CategoryEcommerce:       "commerce-head",
			CategoryMarketingBrand:  "marketing-head",
			CategoryWordPressCMS:    "cms-head",
			CategoryCustomerService: "support-head",
			CategorySpecialized:     "specialist-head",
		},
		policy:          DefaultHeadPolicy,
		highRiskCostUSD: DefaultHighRiskCostUSD,
		log:             logger.New("approval"),
	}
}

// SetPolicy replaces the per-head vote rule.
func (s *CategoryHeadApprovalSystem) SetPolicy(policy HeadPolicy) {
	if policy != nil {
		s.policy = policy
	}
}

// SetHighRiskCost overrides the cost threshold that pulls the security
// head into a review.
func (s *CategoryHeadApprovalSystem) SetHighRiskCost(usd float64) {
	if usd > 0 {
		s.highRiskCostUSD = usd
	}
}

// RequestApproval runs the review for a validated job. It never
// panics: any internal failure fails closed to a REJECTED result with
// an explanatory reasoning string.
func (s *CategoryHeadApprovalSystem) RequestApproval(job *JobDefinition, validation *InfrastructureValidationResult, estimate *cost.Estimate) (result *ApprovalResult) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error(job.JobID, "", "approval review panicked, failing closed", map[string]interface{}{
				"panic": fmt.Sprint(r),
			})
			result = &ApprovalResult{
				RejectedCount:      1,
				FinalDecision:      ApprovalRejected,
				ConsensusReasoning: fmt.Sprintf("internal review error, rejected for safety: %v", r),
			}
		}
	}()

	// Unvalidated jobs never reach a head.
	if validation == nil || !validation.IsReady {
		vote := ApprovalVote{
			ReviewerCategory: job.Category,
			Reviewer:         s.heads[job.Category],
			Decision:         ApprovalRejected,
			Reasoning:        rejectionForValidation(validation),
		}
		return reduceVotes([]ApprovalVote{vote})
	}

	votes := make([]ApprovalVote, 0, 3)
	for _, head := range s.reviewersFor(job, estimate) {
		votes = append(votes, s.policy(head, job, estimate))
	}

	result = reduceVotes(votes)
	s.log.Info(job.JobID, "", "approval consensus reached", map[string]interface{}{
		"final_decision": string(result.FinalDecision),
		"approved_count": result.ApprovedCount,
		"rejected_count": result.RejectedCount,
		"reviewers":      len(votes),
	})
	return result
}

// reviewersFor selects which category heads vote on a job: always the
// primary category's head, plus the AI intelligence head for jobs with
// wide agent fan-out and the security head for high-risk jobs.
func (s *CategoryHeadApprovalSystem) reviewersFor(job *JobDefinition, estimate *cost.Estimate) []AgentCategory {
	selected := map[AgentCategory]bool{job.Category: true}

	if len(job.SupportingAgents) >= CrossCategoryAgentThreshold {
		selected[CategoryAIIntelligence] = true
	}

	highRisk := job.Priority >= HighRiskPriority
	if estimate != nil && estimate.CostUSD >= s.highRiskCostUSD {
		highRisk = true
	}
	if highRisk {
		selected[CategoryCoreSecurity] = true
	}

	heads := make([]AgentCategory, 0, len(selected))
	for head := range selected {
		heads = append(heads, head)
	}
	// Stable order so consensus reasoning is deterministic.
	sort.Slice(heads, func(i, j int) bool { return heads[i] < heads[j] })
	return heads
}

func rejectionForValidation(validation *InfrastructureValidationResult) string {
	if validation == nil {
		return "infrastructure validation was never run"
	}
	parts := []string{fmt.Sprintf("infrastructure not ready: %d checks failed", validation.ChecksFailed)}
	if len(validation.MissingTools) > 0 {
		parts = append(parts, "missing tools: "+strings.Join(validation.MissingTools, ", "))
	}
	for _, miss := range validation.MissingResources {
		parts = append(parts, fmt.Sprintf("insufficient %s (requested %.2f, available %.2f)",
			miss.ResourceType, miss.Requested, miss.Available))
	}
	return strings.Join(parts, "; ")
}

// reduceVotes collapses individual votes to one consensus decision. Any
// rejecting vote rejects the job; otherwise at least one approval
// approves it; an empty vote set stays pending.
func reduceVotes(votes []ApprovalVote) *ApprovalResult {
	result := &ApprovalResult{Approvals: votes}

	reasons := make([]string, 0, len(votes))
	for _, vote := range votes {
		switch vote.Decision {
		case ApprovalApproved:
			result.ApprovedCount++
		case ApprovalRejected:
			result.RejectedCount++
		}
		reasons = append(reasons, fmt.Sprintf("[%s %s] %s", vote.ReviewerCategory, vote.Reviewer, vote.Reasoning))
	}

	switch {
	case result.RejectedCount > 0:
		result.FinalDecision = ApprovalRejected
	case result.ApprovedCount > 0:
		result.FinalDecision = ApprovalApproved
	default:
		result.FinalDecision = ApprovalPending
	}

	result.ConsensusReasoning = strings.Join(reasons, "; ")
	return result
}

// DefaultHeadPolicy is the built-in deterministic vote rule. Each head
// approves jobs whose estimated cost fits the declared budget and whose
// priority is in range, and rejects everything else with the concrete
// reason.
func DefaultHeadPolicy(head AgentCategory, job *JobDefinition, estimate *cost.Estimate) ApprovalVote {
	vote := ApprovalVote{
		ReviewerCategory: head,
		Reviewer:         string(head) + "-head",
	}

	if job.Priority < 1 || job.Priority > 10 {
		vote.Decision = ApprovalRejected
		vote.Reasoning = fmt.Sprintf("priority %d outside valid range 1-10", job.Priority)
		return vote
	}

	if estimate != nil && estimate.CostUSD > job.MaxBudgetUSD {
		vote.Decision = ApprovalRejected
		vote.Reasoning = fmt.Sprintf("estimated cost $%.4f exceeds budget $%.4f", estimate.CostUSD, job.MaxBudgetUSD)
		return vote
	}

	vote.Decision = ApprovalApproved
	if estimate != nil {
		vote.Reasoning = fmt.Sprintf("estimated cost $%.4f within budget $%.4f", estimate.CostUSD, job.MaxBudgetUSD)
	} else {
		vote.Reasoning = "no cost estimate available, approved on job attributes"
	}
	return vote
}
