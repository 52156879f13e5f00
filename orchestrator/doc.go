// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Package orchestrator implements the agent deployment control plane: the
admission pipeline that every job clears before any agent runs, and the
registry that tracks it afterwards.

# Pipeline

A submitted job moves through four gates in order:

 1. Infrastructure validation: the job's declared tools, resource
    quantities and API keys are checked against the injected
    InfrastructureCatalog. Missing required dependencies stop the job;
    missing optional ones only record warnings.
 2. Cost estimation: a deterministic token/cost projection from the
    job's tool-call volume and agent fan-out. Jobs whose estimated cost
    exceeds their own max_budget_usd are rejected before any reviewer
    sees them.
 3. Category-head approval: one simulated reviewer per agent category
    votes; the primary category's head always reviews, joined by the AI
    head for wide agent fan-out and the security head for high-risk
    jobs. Any rejecting vote rejects the job.
 4. Resource reservation: the capacities that validation observed are
    actually held through a ResourceReserver, closing the gap between
    advisory checks and execution.

Jobs clearing all gates get a DeploymentExecution and run asynchronously
through the injected Executor, with failed attempts retried on the same
deployment identity up to max_retries.

# State machine

	draft -> pending_validation -> {validation_failed}
	                            -> {cost_rejected}
	                            -> pending_approval -> {rejected}
	                            -> approved -> deploying -> running
	                            -> {completed | failed | cancelled}

Transitions are monotonic: a job never leaves a terminal state. Every
transition is appended to the job's status history.

# Construction

All collaborators are injected through Options; the package holds no
global state, so tests build isolated pipelines per run:

	catalog := orchestrator.NewInfrastructureCatalog()
	catalog.RegisterTool("code_analyzer", "analysis", 50, nil)
	catalog.RegisterResource(orchestrator.ResourceCompute, 16)

	orch := orchestrator.NewDeploymentOrchestrator(orchestrator.Options{
	    Catalog: catalog,
	})
	result, err := orch.SubmitJob(ctx, job)

The HTTP façade in server.go exposes the same operations over REST
(POST /api/v1/jobs, GET/DELETE /api/v1/jobs/{id}, GET
/api/v1/statistics) plus /health and /prometheus.
*/
package orchestrator
