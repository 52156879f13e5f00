// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package cost

import (
	"encoding/json"
	"os"
	"strings"
	"sync"
)

// PricingTable holds per-model token pricing. Prices are USD per 1K tokens
// (blended input/output). The table carries a version stamp so callers can
// tell which revision of the pricing data produced an estimate.
type PricingTable struct {
	Version string             `json:"version"`
	Models  map[string]float64 `json:"models"`
	mu      sync.RWMutex
}

// DefaultPricing contains default blended pricing for common models.
// Prices are USD per 1K tokens (as of January 2025).
var DefaultPricing = &PricingTable{
	Version: "2025-01",
	Models: map[string]float64{
		// Anthropic
		"claude-opus-4":     0.045,
		"claude-sonnet-4":   0.009,
		"claude-3-5-sonnet": 0.009,
		"claude-3-5-haiku":  0.0024,
		"claude-3-haiku":    0.00075,
		// OpenAI
		"gpt-4o":        0.00625,
		"gpt-4o-mini":   0.000375,
		"gpt-4-turbo":   0.02,
		"gpt-4":         0.045,
		"gpt-3.5-turbo": 0.001,
		"o1-mini":       0.0075,
		// Google
		"gemini-1.5-pro":   0.003125,
		"gemini-1.5-flash": 0.0001875,
		// Self-hosted models are free (compute cost not tracked here)
		"ollama": 0,
		// Fallback for unknown models
		"*": 0.01,
	},
}

// NewPricingTable creates a pricing table seeded with the defaults.
func NewPricingTable() *PricingTable {
	return &PricingTable{
		Version: DefaultPricing.Version,
		Models:  copyModels(DefaultPricing.Models),
	}
}

// LoadPricingFromEnv loads custom pricing from the DEPLOY_PRICING_CONFIG
// environment variable (JSON, merged over the defaults).
func LoadPricingFromEnv() *PricingTable {
	table := NewPricingTable()

	pricingJSON := os.Getenv("DEPLOY_PRICING_CONFIG")
	if pricingJSON != "" {
		var custom PricingTable
		if err := json.Unmarshal([]byte(pricingJSON), &custom); err == nil {
			table.merge(&custom)
		}
	}

	return table
}

// LoadPricingFromFile loads pricing from a JSON file, merged over the
// defaults. The pricing source is refreshable independently of the rest of
// the configuration: load a new table and swap it in via Refresh.
func LoadPricingFromFile(path string) (*PricingTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var custom PricingTable
	if err := json.Unmarshal(data, &custom); err != nil {
		return nil, err
	}

	table := NewPricingTable()
	table.merge(&custom)
	return table, nil
}

func (p *PricingTable) merge(custom *PricingTable) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if custom.Version != "" {
		p.Version = custom.Version
	}
	for model, price := range custom.Models {
		p.Models[model] = price
	}
}

// Refresh replaces this table's contents with another table's.
func (p *PricingTable) Refresh(from *PricingTable) {
	from.mu.RLock()
	version := from.Version
	models := copyModels(from.Models)
	from.mu.RUnlock()

	p.mu.Lock()
	p.Version = version
	p.Models = models
	p.mu.Unlock()
}

// PricePer1K returns the USD price per 1K tokens for a model. Unknown
// models fall back to the wildcard entry; the second return reports
// whether any price (wildcard included) was found.
func (p *PricingTable) PricePer1K(model string) (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	price, ok := p.Models[model]
	if !ok {
		price, ok = p.Models[strings.ToLower(model)]
		if !ok {
			price, ok = p.Models["*"]
		}
	}
	return price, ok
}

// CostUSD computes the cost of a token count against a model's price.
func (p *PricingTable) CostUSD(model string, tokens int) float64 {
	price, ok := p.PricePer1K(model)
	if !ok {
		return 0
	}
	return float64(tokens) / 1000.0 * price
}

// SetModelPrice sets the per-1K price for a model.
func (p *PricingTable) SetModelPrice(model string, pricePer1K float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Models[model] = pricePer1K
}

// ListModels returns all priced models, excluding the wildcard.
func (p *PricingTable) ListModels() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	models := make([]string, 0, len(p.Models))
	for model := range p.Models {
		if model != "*" {
			models = append(models, model)
		}
	}
	return models
}

// TableVersion returns the version stamp of the pricing data.
func (p *PricingTable) TableVersion() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Version
}

func copyModels(src map[string]float64) map[string]float64 {
	dst := make(map[string]float64, len(src))
	for model, price := range src {
		dst[model] = price
	}
	return dst
}
