// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Expected manifest coordinates for a deployment config.
const (
	ConfigAPIVersion = "deploy.axonflow.io/v1"
	ConfigKind       = "DeploymentConfig"
)

// Config is the bootstrap manifest for the control plane. It populates
// the infrastructure catalog, the pricing table and the server settings
// once at startup; after bootstrap the pipeline only reads the catalog.
type Config struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`
	Metadata   struct {
		Name string `yaml:"name"`
	} `yaml:"metadata"`
	Spec ConfigSpec `yaml:"spec"`
}

// ConfigSpec holds the actual settings.
type ConfigSpec struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`

	Pricing struct {
		Version string             `yaml:"version"`
		Models  map[string]float64 `yaml:"models"`
	} `yaml:"pricing"`

	Executor struct {
		LatencyMS int `yaml:"latency_ms"`
	} `yaml:"executor"`

	HighRiskCostUSD float64 `yaml:"high_risk_cost_usd"`

	Tools []struct {
		Name      string                 `yaml:"name"`
		Type      string                 `yaml:"type"`
		RateLimit int                    `yaml:"rate_limit"`
		Metadata  map[string]interface{} `yaml:"metadata"`
	} `yaml:"tools"`

	Resources []struct {
		Type   string  `yaml:"type"`
		Amount float64 `yaml:"amount"`
	} `yaml:"resources"`

	APIKeys []struct {
		Provider  string `yaml:"provider"`
		Available bool   `yaml:"available"`
	} `yaml:"api_keys"`
}

// LoadConfig reads and validates a deployment config manifest.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if cfg.APIVersion != ConfigAPIVersion {
		return nil, fmt.Errorf("unsupported apiVersion %q, want %q", cfg.APIVersion, ConfigAPIVersion)
	}
	if cfg.Kind != ConfigKind {
		return nil, fmt.Errorf("unsupported kind %q, want %q", cfg.Kind, ConfigKind)
	}

	// Environment overrides for containerized deployments.
	if port := os.Getenv("PORT"); port != "" {
		cfg.Spec.Port = port
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Spec.DatabaseURL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Spec.RedisURL = redisURL
	}
	if cfg.Spec.Port == "" {
		cfg.Spec.Port = "8082"
	}
	return &cfg, nil
}

// Bootstrap populates a catalog from the manifest.
func (c *Config) Bootstrap(catalog *InfrastructureCatalog) {
	for _, tool := range c.Spec.Tools {
		catalog.RegisterTool(tool.Name, tool.Type, tool.RateLimit, tool.Metadata)
	}
	for _, resource := range c.Spec.Resources {
		catalog.RegisterResource(ResourceType(resource.Type), resource.Amount)
	}
	for _, key := range c.Spec.APIKeys {
		catalog.RegisterAPIKey(key.Provider, key.Available)
	}
}

// Capacities returns the reservable resource capacities declared in the
// manifest, for seeding a ResourceReserver.
func (c *Config) Capacities() map[ResourceType]float64 {
	caps := make(map[ResourceType]float64, len(c.Spec.Resources))
	for _, resource := range c.Spec.Resources {
		caps[ResourceType(resource.Type)] = resource.Amount
	}
	return caps
}
