// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package cost provides token and budget estimation for deployment jobs.
// Estimation is pure and deterministic: no I/O, no side effects, so the
// same job profile always produces the same estimate and re-estimation
// is always safe.
package cost

import "errors"

// Token weights for the estimation formula. The exact weights are not an
// exact science; they are tuned so that a typical single-agent job with a
// handful of tool calls lands well under the default $1 budget. All three
// are overridable through EstimatorConfig.
const (
	// DefaultBaseOverheadTokens covers prompt assembly, system context and
	// result summarization for any job regardless of tooling.
	DefaultBaseOverheadTokens = 1000

	// DefaultTokensPerToolCall is the projected token weight of a single
	// tool invocation (request framing plus tool output fed back).
	DefaultTokensPerToolCall = 150

	// DefaultCoordinationTokensPerAgent is the overhead of keeping one
	// supporting agent in the loop (handoffs, shared context).
	DefaultCoordinationTokensPerAgent = 500

	// DefaultModel is the model priced when a job does not name one.
	DefaultModel = "claude-sonnet-4"
)

// ErrNoPricing is returned when neither the requested model nor the
// wildcard entry has a price.
var ErrNoPricing = errors.New("no pricing available for model")

// JobProfile is the estimator's view of a job: just the attributes the
// token formula depends on. The orchestrator maps its job definition onto
// this so the cost package stays independent of the deployment types.
type JobProfile struct {
	// TotalToolCalls is the sum of estimated calls across all required tools.
	TotalToolCalls int

	// SupportingAgents is the number of agents beyond the primary.
	SupportingAgents int

	// Model selects the pricing row; empty means the configured default.
	Model string
}

// Estimate is the projected token usage and cost for a job.
type Estimate struct {
	Tokens         int     `json:"estimated_tokens"`
	CostUSD        float64 `json:"estimated_cost_usd"`
	Model          string  `json:"model"`
	PricePer1K     float64 `json:"price_per_1k"`
	PricingVersion string  `json:"pricing_version"`
}

// EstimatorConfig carries the tunable weights of the token formula.
type EstimatorConfig struct {
	BaseOverheadTokens         int
	TokensPerToolCall          int
	CoordinationTokensPerAgent int
	DefaultModel               string
}

// DefaultEstimatorConfig returns the default weights.
func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		BaseOverheadTokens:         DefaultBaseOverheadTokens,
		TokensPerToolCall:          DefaultTokensPerToolCall,
		CoordinationTokensPerAgent: DefaultCoordinationTokensPerAgent,
		DefaultModel:               DefaultModel,
	}
}

// Estimator projects token usage and USD cost for deployment jobs.
type Estimator struct {
	config  EstimatorConfig
	pricing *PricingTable
}

// NewEstimator creates an estimator with the given pricing table. A nil
// table gets the defaults.
func NewEstimator(pricing *PricingTable) *Estimator {
	return NewEstimatorWithConfig(pricing, DefaultEstimatorConfig())
}

// NewEstimatorWithConfig creates an estimator with custom formula weights.
// Zero-valued fields fall back to the defaults.
func NewEstimatorWithConfig(pricing *PricingTable, config EstimatorConfig) *Estimator {
	if pricing == nil {
		pricing = NewPricingTable()
	}
	defaults := DefaultEstimatorConfig()
	if config.BaseOverheadTokens <= 0 {
		config.BaseOverheadTokens = defaults.BaseOverheadTokens
	}
	if config.TokensPerToolCall <= 0 {
		config.TokensPerToolCall = defaults.TokensPerToolCall
	}
	if config.CoordinationTokensPerAgent <= 0 {
		config.CoordinationTokensPerAgent = defaults.CoordinationTokensPerAgent
	}
	if config.DefaultModel == "" {
		config.DefaultModel = defaults.DefaultModel
	}
	return &Estimator{config: config, pricing: pricing}
}

// EstimateJob projects tokens and cost for a job profile:
//
//	tokens = base overhead
//	       + total tool calls x per-call weight
//	       + supporting agents x coordination weight
//	cost   = tokens / 1000 x price(model)
func (e *Estimator) EstimateJob(profile JobProfile) (Estimate, error) {
	model := profile.Model
	if model == "" {
		model = e.config.DefaultModel
	}

	tokens := e.config.BaseOverheadTokens
	if profile.TotalToolCalls > 0 {
		tokens += profile.TotalToolCalls * e.config.TokensPerToolCall
	}
	if profile.SupportingAgents > 0 {
		tokens += profile.SupportingAgents * e.config.CoordinationTokensPerAgent
	}

	price, ok := e.pricing.PricePer1K(model)
	if !ok {
		return Estimate{}, ErrNoPricing
	}

	return Estimate{
		Tokens:         tokens,
		CostUSD:        float64(tokens) / 1000.0 * price,
		Model:          model,
		PricePer1K:     price,
		PricingVersion: e.pricing.TableVersion(),
	}, nil
}

// Pricing returns the estimator's pricing table.
func (e *Estimator) Pricing() *PricingTable {
	return e.pricing
}
