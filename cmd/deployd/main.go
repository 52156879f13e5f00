// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"axonflow/deploy/orchestrator"
	"axonflow/deploy/orchestrator/cost"
)

func main() {
	configPath := flag.String("config", envOr("DEPLOY_CONFIG", "deploy.yaml"), "path to the DeploymentConfig manifest")
	flag.Parse()

	cfg, err := orchestrator.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	catalog := orchestrator.NewInfrastructureCatalog()
	cfg.Bootstrap(catalog)

	// Defaults, then DEPLOY_PRICING_CONFIG overrides, then the manifest's
	// models on top.
	pricing := cost.LoadPricingFromEnv()
	for model, price := range cfg.Spec.Pricing.Models {
		pricing.SetModelPrice(model, price)
	}

	approval := orchestrator.NewCategoryHeadApprovalSystem()
	if cfg.Spec.HighRiskCostUSD > 0 {
		approval.SetHighRiskCost(cfg.Spec.HighRiskCostUSD)
	}

	var reserver orchestrator.ResourceReserver = orchestrator.NopReserver{}
	if cfg.Spec.RedisURL != "" {
		redisReserver, err := orchestrator.NewRedisReserver(cfg.Spec.RedisURL, cfg.Capacities())
		if err != nil {
			log.Fatalf("failed to connect reserver to Redis: %v", err)
		}
		defer redisReserver.Close()
		reserver = redisReserver
	} else if len(cfg.Capacities()) > 0 {
		memReserver := orchestrator.NewMemoryReserver()
		for resourceType, amount := range cfg.Capacities() {
			memReserver.SetCapacity(resourceType, amount)
		}
		reserver = memReserver
	}

	var store orchestrator.DeploymentStore
	if cfg.Spec.DatabaseURL != "" {
		pgStore, err := orchestrator.NewPostgresStore(cfg.Spec.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		defer pgStore.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			cancel()
			log.Fatalf("failed to ensure schema: %v", err)
		}
		cancel()
		store = pgStore
	}

	orch := orchestrator.NewDeploymentOrchestrator(orchestrator.Options{
		Catalog:   catalog,
		Estimator: cost.NewEstimator(pricing),
		Approval:  approval,
		Executor:  orchestrator.NewSimulatedExecutor(time.Duration(cfg.Spec.Executor.LatencyMS) * time.Millisecond),
		Reserver:  reserver,
		Store:     store,
	})

	server := orchestrator.NewServer(orch)
	log.Fatal(server.ListenAndServe(cfg.Spec.Port))
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
