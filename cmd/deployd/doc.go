// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Deployd is the agent deployment control plane daemon.

It loads a DeploymentConfig manifest, bootstraps the infrastructure
catalog and pricing table from it, and serves the deployment API over
HTTP.

Usage:

	deployd -config deploy.yaml

Environment variables:

  - DEPLOY_CONFIG: manifest path (overridden by -config)
  - PORT: listen port (overrides the manifest)
  - DATABASE_URL: PostgreSQL URL for durable job snapshots
  - REDIS_URL: Redis URL for the shared resource reserver
  - DEPLOY_PRICING_CONFIG: JSON pricing overrides
  - INSTANCE_ID: instance identifier stamped on every log line

With no DATABASE_URL the registry is memory-only; with no REDIS_URL
reservations are tracked in process memory.
*/
package main
