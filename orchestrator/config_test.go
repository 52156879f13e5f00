// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `apiVersion: deploy.axonflow.io/v1
kind: DeploymentConfig
metadata:
  name: staging
spec:
  port: "9090"
  redis_url: redis://localhost:6379/0
  high_risk_cost_usd: 2.5
  pricing:
    version: "2025-06"
    models:
      claude-sonnet-4: 0.009
      gpt-4o: 0.00625
  executor:
    latency_ms: 500
  tools:
    - name: code_analyzer
      type: analysis
      rate_limit: 50
    - name: web_scraper
      type: scraping
      rate_limit: 100
      metadata:
        region: us-east-1
  resources:
    - type: compute
      amount: 16
    - type: memory
      amount: 32768
  api_keys:
    - provider: anthropic
      available: true
    - provider: openai
      available: false
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deploy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeManifest(t, sampleManifest))
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Metadata.Name)
	assert.Equal(t, "9090", cfg.Spec.Port)
	assert.Equal(t, "2025-06", cfg.Spec.Pricing.Version)
	assert.Equal(t, 0.009, cfg.Spec.Pricing.Models["claude-sonnet-4"])
	assert.Equal(t, 500, cfg.Spec.Executor.LatencyMS)
	assert.Equal(t, 2.5, cfg.Spec.HighRiskCostUSD)
	assert.Len(t, cfg.Spec.Tools, 2)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	os.Setenv("PORT", "7070")
	defer os.Unsetenv("PORT")

	cfg, err := LoadConfig(writeManifest(t, sampleManifest))
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Spec.Port)
}

func TestLoadConfigRejectsWrongManifest(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "wrong apiVersion",
			content: "apiVersion: v1\nkind: DeploymentConfig\n",
		},
		{
			name:    "wrong kind",
			content: "apiVersion: deploy.axonflow.io/v1\nkind: ConfigMap\n",
		},
		{
			name:    "not yaml",
			content: "{{{",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeManifest(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/deploy.yaml")
	assert.Error(t, err)
}

func TestConfigBootstrap(t *testing.T) {
	cfg, err := LoadConfig(writeManifest(t, sampleManifest))
	require.NoError(t, err)

	catalog := NewInfrastructureCatalog()
	cfg.Bootstrap(catalog)

	entry, ok := catalog.Tool("web_scraper")
	require.True(t, ok)
	assert.Equal(t, 100, entry.RateLimit)
	assert.Equal(t, "us-east-1", entry.Metadata["region"])

	assert.Equal(t, 16.0, catalog.Capacity(ResourceCompute))
	assert.Equal(t, 32768.0, catalog.Capacity(ResourceMemory))
	assert.True(t, catalog.HasAPIKey("anthropic"))
	assert.False(t, catalog.HasAPIKey("openai"))
}

func TestConfigCapacities(t *testing.T) {
	cfg, err := LoadConfig(writeManifest(t, sampleManifest))
	require.NoError(t, err)

	caps := cfg.Capacities()
	assert.Equal(t, map[ResourceType]float64{
		ResourceCompute: 16,
		ResourceMemory:  32768,
	}, caps)
}
