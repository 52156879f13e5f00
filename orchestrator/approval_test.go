// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axonflow/deploy/orchestrator/cost"
)

func readyValidation() *InfrastructureValidationResult {
	return &InfrastructureValidationResult{IsReady: true, ChecksPassed: 3}
}

func smallEstimate() *cost.Estimate {
	return &cost.Estimate{Tokens: 1500, CostUSD: 0.0135, Model: "claude-sonnet-4", PricePer1K: 0.009}
}

func TestRequestApprovalHappyPath(t *testing.T) {
	system := NewCategoryHeadApprovalSystem()
	job := NewJobDefinition("sync", "catalog sync", CategoryEcommerce, "sync-agent")

	result := system.RequestApproval(job, readyValidation(), smallEstimate())

	assert.Equal(t, ApprovalApproved, result.FinalDecision)
	assert.Equal(t, 1, result.ApprovedCount)
	assert.Equal(t, 0, result.RejectedCount)
	require.Len(t, result.Approvals, 1)
	assert.Equal(t, CategoryEcommerce, result.Approvals[0].ReviewerCategory)
	assert.NotEmpty(t, result.ConsensusReasoning)
}

func TestRequestApprovalShortCircuitsOnFailedValidation(t *testing.T) {
	system := NewCategoryHeadApprovalSystem()
	solicited := 0
	system.SetPolicy(func(head AgentCategory, job *JobDefinition, estimate *cost.Estimate) ApprovalVote {
		solicited++
		return ApprovalVote{ReviewerCategory: head, Decision: ApprovalApproved}
	})

	job := NewJobDefinition("broken", "missing deps", CategoryWordPressCMS, "cms-agent")
	validation := &InfrastructureValidationResult{
		IsReady:      false,
		ChecksFailed: 2,
		MissingTools: []string{"wp_cli"},
		MissingResources: []ResourceShortfall{
			{ResourceType: ResourceCompute, Requested: 64, Available: 16},
		},
	}

	result := system.RequestApproval(job, validation, smallEstimate())

	assert.Equal(t, ApprovalRejected, result.FinalDecision)
	assert.Zero(t, solicited, "no heads solicited after failed validation")
	require.Len(t, result.Approvals, 1)
	assert.Contains(t, result.Approvals[0].Reasoning, "wp_cli")
	assert.Contains(t, result.Approvals[0].Reasoning, "2 checks failed")
}

func TestRequestApprovalNilValidation(t *testing.T) {
	system := NewCategoryHeadApprovalSystem()
	job := NewJobDefinition("j", "d", CategorySpecialized, "agent")

	result := system.RequestApproval(job, nil, smallEstimate())

	assert.Equal(t, ApprovalRejected, result.FinalDecision)
}

func TestReviewerSelection(t *testing.T) {
	system := NewCategoryHeadApprovalSystem()

	tests := []struct {
		name      string
		configure func(job *JobDefinition)
		estimate  *cost.Estimate
		want      []AgentCategory
	}{
		{
			name:      "primary head only",
			configure: func(job *JobDefinition) {},
			estimate:  smallEstimate(),
			want:      []AgentCategory{CategoryEcommerce},
		},
		{
			name: "wide agent fan-out adds AI head",
			configure: func(job *JobDefinition) {
				job.SupportingAgents = []string{"a", "b"}
			},
			estimate: smallEstimate(),
			want:     []AgentCategory{CategoryAIIntelligence, CategoryEcommerce},
		},
		{
			name: "high priority adds security head",
			configure: func(job *JobDefinition) {
				job.Priority = 9
			},
			estimate: smallEstimate(),
			want:     []AgentCategory{CategoryCoreSecurity, CategoryEcommerce},
		},
		{
			name:      "high estimated cost adds security head",
			configure: func(job *JobDefinition) {},
			estimate:  &cost.Estimate{CostUSD: 12.0},
			want:      []AgentCategory{CategoryCoreSecurity, CategoryEcommerce},
		},
		{
			name: "all triggers combined",
			configure: func(job *JobDefinition) {
				job.SupportingAgents = []string{"a", "b", "c"}
				job.Priority = 10
			},
			estimate: smallEstimate(),
			want:     []AgentCategory{CategoryAIIntelligence, CategoryCoreSecurity, CategoryEcommerce},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewJobDefinition("j", "d", CategoryEcommerce, "agent")
			tt.configure(job)
			assert.Equal(t, tt.want, system.reviewersFor(job, tt.estimate))
		})
	}
}

func TestConsensusMonotonicity(t *testing.T) {
	approve := ApprovalVote{ReviewerCategory: CategoryEcommerce, Decision: ApprovalApproved, Reasoning: "ok"}
	reject := ApprovalVote{ReviewerCategory: CategoryCoreSecurity, Decision: ApprovalRejected, Reasoning: "no"}

	approved := reduceVotes([]ApprovalVote{approve, approve})
	assert.Equal(t, ApprovalApproved, approved.FinalDecision)

	// Adding a rejection to an approved set flips the decision.
	flipped := reduceVotes([]ApprovalVote{approve, approve, reject})
	assert.Equal(t, ApprovalRejected, flipped.FinalDecision)

	// More approvals after a rejection never flip it back.
	stillRejected := reduceVotes([]ApprovalVote{reject, approve, approve, approve, approve})
	assert.Equal(t, ApprovalRejected, stillRejected.FinalDecision)
	assert.Equal(t, 4, stillRejected.ApprovedCount)
	assert.Equal(t, 1, stillRejected.RejectedCount)
}

func TestReduceVotesEmptySetStaysPending(t *testing.T) {
	result := reduceVotes(nil)
	assert.Equal(t, ApprovalPending, result.FinalDecision)
	assert.Zero(t, result.ApprovedCount)
	assert.Zero(t, result.RejectedCount)
}

func TestRequestApprovalPanickingPolicyFailsClosed(t *testing.T) {
	system := NewCategoryHeadApprovalSystem()
	system.SetPolicy(func(head AgentCategory, job *JobDefinition, estimate *cost.Estimate) ApprovalVote {
		panic("reviewer backend unreachable")
	})

	job := NewJobDefinition("j", "d", CategoryCustomerService, "agent")
	result := system.RequestApproval(job, readyValidation(), smallEstimate())

	assert.Equal(t, ApprovalRejected, result.FinalDecision)
	assert.Contains(t, result.ConsensusReasoning, "reviewer backend unreachable")
}

func TestDefaultHeadPolicy(t *testing.T) {
	tests := []struct {
		name     string
		priority int
		budget   float64
		costUSD  float64
		want     ApprovalStatus
	}{
		{"within budget", 5, 1.0, 0.5, ApprovalApproved},
		{"over budget", 5, 0.01, 0.5, ApprovalRejected},
		{"exactly at budget", 5, 0.5, 0.5, ApprovalApproved},
		{"priority too high", 11, 1.0, 0.5, ApprovalRejected},
		{"priority too low", 0, 1.0, 0.5, ApprovalRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &JobDefinition{Priority: tt.priority, MaxBudgetUSD: tt.budget}
			vote := DefaultHeadPolicy(CategorySpecialized, job, &cost.Estimate{CostUSD: tt.costUSD})
			assert.Equal(t, tt.want, vote.Decision)
			assert.NotEmpty(t, vote.Reasoning)
		})
	}
}

func TestSwappablePolicy(t *testing.T) {
	system := NewCategoryHeadApprovalSystem()
	system.SetPolicy(func(head AgentCategory, job *JobDefinition, estimate *cost.Estimate) ApprovalVote {
		return ApprovalVote{
			ReviewerCategory: head,
			Reviewer:         "external-review-bridge",
			Decision:         ApprovalRejected,
			Reasoning:        "manual review required",
		}
	})

	job := NewJobDefinition("j", "d", CategoryMarketingBrand, "agent")
	result := system.RequestApproval(job, readyValidation(), smallEstimate())

	assert.Equal(t, ApprovalRejected, result.FinalDecision)
	assert.Equal(t, "external-review-bridge", result.Approvals[0].Reviewer)
}
