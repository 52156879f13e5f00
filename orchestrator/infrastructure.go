// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"axonflow/deploy/shared/logger"
)

// ToolEntry is a tool registered in the infrastructure catalog.
type ToolEntry struct {
	Name      string                 `json:"name"`
	Type      string                 `json:"type"`
	RateLimit int                    `json:"rate_limit"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// InfrastructureCatalog tracks available tools, resource capacity and
// API-key availability, and validates a job's declared needs against
// them. Catalogs are explicitly constructed and injected; there is no
// package-level singleton, so tests can build isolated catalogs per run.
//
// Registration is expected from a bootstrap process at startup; the
// deployment pipeline only reads. Validation is a point-in-time check,
// not a reservation: use a ResourceReserver to actually hold capacity.
type InfrastructureCatalog struct {
	mu        sync.RWMutex
	tools     map[string]*ToolEntry
	resources map[ResourceType]float64
	apiKeys   map[string]bool

	checks int64

	log *logger.Logger
}

// NewInfrastructureCatalog creates an empty catalog.
func NewInfrastructureCatalog() *InfrastructureCatalog {
	return &InfrastructureCatalog{
		tools:     make(map[string]*ToolEntry),
		resources: make(map[ResourceType]float64),
		apiKeys:   make(map[string]bool),
		log:       logger.New("catalog"),
	}
}

// RegisterTool adds or replaces a tool in the catalog.
func (c *InfrastructureCatalog) RegisterTool(toolName, toolType string, rateLimit int, metadata map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tools[toolName] = &ToolEntry{
		Name:      toolName,
		Type:      toolType,
		RateLimit: rateLimit,
		Metadata:  metadata,
	}
	c.log.Debug("", "", "tool registered", map[string]interface{}{
		"tool_name":  toolName,
		"tool_type":  toolType,
		"rate_limit": rateLimit,
	})
}

// UpdateToolRateLimit changes the rate limit of an already registered
// tool. Returns ErrUnknownTool if the tool was never registered.
func (c *InfrastructureCatalog) UpdateToolRateLimit(toolName string, rateLimit int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.tools[toolName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, toolName)
	}
	entry.RateLimit = rateLimit
	return nil
}

// RegisterResource sets the available capacity for a resource type.
func (c *InfrastructureCatalog) RegisterResource(resourceType ResourceType, amount float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resources[resourceType] = amount
	c.log.Debug("", "", "resource registered", map[string]interface{}{
		"resource_type": string(resourceType),
		"amount":        amount,
	})
}

// RegisterAPIKey records whether a provider's API key is available.
func (c *InfrastructureCatalog) RegisterAPIKey(provider string, available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.apiKeys[provider] = available
	c.log.Debug("", "", "api key registered", map[string]interface{}{
		"provider":  provider,
		"available": available,
	})
}

// Tool returns the registered entry for a tool name.
func (c *InfrastructureCatalog) Tool(name string) (*ToolEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.tools[name]
	if !ok {
		return nil, false
	}
	copied := *entry
	return &copied, true
}

// Capacity returns the registered capacity for a resource type.
func (c *InfrastructureCatalog) Capacity(resourceType ResourceType) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resources[resourceType]
}

// HasAPIKey reports whether a provider's key is registered and available.
func (c *InfrastructureCatalog) HasAPIKey(provider string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKeys[provider]
}

// ValidationCount returns how many validations this catalog has run.
func (c *InfrastructureCatalog) ValidationCount() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.checks
}

// ValidateJob checks a job's required tools and resources against the
// catalog. Missing required dependencies fail the check; missing
// optional dependencies only produce warnings, so a job can proceed in
// degraded mode rather than block on non-critical dependencies.
func (c *InfrastructureCatalog) ValidateJob(job *JobDefinition) *InfrastructureValidationResult {
	c.mu.Lock()
	c.checks++
	c.mu.Unlock()

	c.mu.RLock()
	defer c.mu.RUnlock()

	result := &InfrastructureValidationResult{
		ValidationTimestamp: time.Now().UTC(),
	}

	for _, req := range job.RequiredTools {
		c.checkTool(req, result)
	}
	for _, req := range job.RequiredResources {
		c.checkResource(req, result)
	}

	result.IsReady = result.ChecksFailed == 0

	c.log.Info(job.JobID, "", "infrastructure validation completed", map[string]interface{}{
		"is_ready":      result.IsReady,
		"checks_passed": result.ChecksPassed,
		"checks_failed": result.ChecksFailed,
	})
	return result
}

func (c *InfrastructureCatalog) checkTool(req ToolRequirement, result *InfrastructureValidationResult) {
	entry, ok := c.tools[req.ToolName]
	if ok {
		result.ChecksPassed++
		if req.MinRateLimit > 0 && entry.RateLimit < req.MinRateLimit {
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"tool %s rate limit %d below requested %d, throttling possible",
				req.ToolName, entry.RateLimit, req.MinRateLimit))
		}
		return
	}

	for _, alt := range req.Alternatives {
		if _, ok := c.tools[alt]; ok {
			result.ChecksPassed++
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"tool %s not available, alternative %s will be used", req.ToolName, alt))
			return
		}
	}

	if req.Required {
		result.ChecksFailed++
		result.MissingTools = append(result.MissingTools, req.ToolName)
		return
	}

	result.ChecksPassed++
	result.Warnings = append(result.Warnings, fmt.Sprintf(
		"optional tool %s not available", req.ToolName))
}

func (c *InfrastructureCatalog) checkResource(req ResourceRequirement, result *InfrastructureValidationResult) {
	var available float64
	if req.ResourceType == ResourceAPIKey {
		// API-key requirements name the provider in Unit; availability
		// is boolean, modeled as capacity 1.
		if c.apiKeys[req.Unit] {
			available = 1
		}
		if req.Amount == 0 {
			req.Amount = 1
		}
	} else {
		available = c.resources[req.ResourceType]
	}

	if available >= req.Amount {
		result.ChecksPassed++
		return
	}

	if req.Required {
		result.ChecksFailed++
		result.MissingResources = append(result.MissingResources, ResourceShortfall{
			ResourceType: req.ResourceType,
			Requested:    req.Amount,
			Available:    available,
			Unit:         req.Unit,
		})
		return
	}

	result.ChecksPassed++
	result.Warnings = append(result.Warnings, fmt.Sprintf(
		"insufficient %s: requested %.2f, available %.2f",
		req.ResourceType, req.Amount, available))
}
