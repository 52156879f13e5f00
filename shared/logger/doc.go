// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Package logger provides structured JSON logging for the deployment
control plane.

Each log entry is a single JSON line on stdout, ready for CloudWatch,
ELK or any other aggregation system, and includes:

  - Timestamp (RFC3339Nano format)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (orchestrator, catalog, executor, ...)
  - Instance ID and container name (for distributed tracing)
  - Job ID and deployment ID (for pipeline correlation)
  - Custom fields

# Usage

Create a logger for your component:

	log := logger.New("orchestrator")

Log messages with job context:

	log.Info(job.JobID, exec.DeploymentID, "execution started", map[string]interface{}{
	    "attempt": exec.RetryCount + 1,
	})

# Environment Variables

  - INSTANCE_ID: Deployment instance identifier
  - HOSTNAME: Container hostname (auto-detected)

# Thread Safety

Logger instances are safe for concurrent use from multiple goroutines.
*/
package logger
