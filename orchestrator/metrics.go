// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics for the deployment pipeline. Registered once at
// package init; scraped via the /prometheus endpoint on the HTTP server.
var (
	metricJobsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deploy_orchestrator_jobs_submitted_total",
			Help: "Jobs submitted, by pipeline outcome",
		},
		[]string{"outcome", "category"},
	)

	metricDeployments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deploy_orchestrator_deployments_total",
			Help: "Deployment executions reaching a terminal status",
		},
		[]string{"status"},
	)

	metricValidationChecks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "deploy_orchestrator_infrastructure_checks_total",
			Help: "Infrastructure validations run",
		},
	)

	metricApprovalDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deploy_orchestrator_approval_decisions_total",
			Help: "Consensus decisions, by final decision",
		},
		[]string{"decision"},
	)

	metricEstimatedCost = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deploy_orchestrator_estimated_cost_usd",
			Help:    "Estimated USD cost per submitted job",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50},
		},
	)

	metricExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deploy_orchestrator_execution_duration_seconds",
			Help:    "Wall-clock duration of deployment executions",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	metricExecutionRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "deploy_orchestrator_execution_retries_total",
			Help: "Execution attempts beyond the first",
		},
	)

	metricJobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "deploy_orchestrator_jobs_in_flight",
			Help: "Jobs currently deploying or running",
		},
	)
)

func init() {
	prometheus.MustRegister(
		metricJobsSubmitted,
		metricDeployments,
		metricValidationChecks,
		metricApprovalDecisions,
		metricEstimatedCost,
		metricExecutionDuration,
		metricExecutionRetries,
		metricJobsInFlight,
	)
}
