// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"axonflow/deploy/orchestrator/cost"
)

// PostgresStore is a DeploymentStore backed by PostgreSQL. Structured
// sub-results (validation, approval, estimate, history) are stored as
// JSONB alongside the indexed scalar columns used for querying.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool and verifies connectivity.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreWithDB wraps an existing handle. Used by tests with a
// mock driver.
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the deployment_jobs table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS deployment_jobs (
			job_id        TEXT PRIMARY KEY,
			job_name      TEXT NOT NULL,
			category      TEXT NOT NULL,
			status        TEXT NOT NULL,
			deployment_id TEXT,
			job           JSONB NOT NULL,
			validation    JSONB,
			approval      JSONB,
			estimate      JSONB,
			execution     JSONB,
			history       JSONB,
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveJob implements DeploymentStore with an upsert keyed by job_id.
func (s *PostgresStore) SaveJob(ctx context.Context, view *JobStatusView) error {
	jobJSON, err := json.Marshal(view.Job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	deploymentID := sql.NullString{}
	if view.Execution != nil {
		deploymentID = sql.NullString{String: view.Execution.DeploymentID, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO deployment_jobs
			(job_id, job_name, category, status, deployment_id,
			 job, validation, approval, estimate, execution, history, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		ON CONFLICT (job_id) DO UPDATE SET
			status        = EXCLUDED.status,
			deployment_id = EXCLUDED.deployment_id,
			validation    = EXCLUDED.validation,
			approval      = EXCLUDED.approval,
			estimate      = EXCLUDED.estimate,
			execution     = EXCLUDED.execution,
			history       = EXCLUDED.history,
			updated_at    = now()`,
		view.Job.JobID,
		view.Job.JobName,
		string(view.Job.Category),
		string(view.Status),
		deploymentID,
		jobJSON,
		nullJSON(view.Validation),
		nullJSON(view.Approval),
		nullJSON(view.Estimate),
		nullJSON(view.Execution),
		nullJSON(view.History),
	)
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", view.Job.JobID, err)
	}
	return nil
}

// LoadJob implements DeploymentStore.
func (s *PostgresStore) LoadJob(ctx context.Context, jobID string) (*JobStatusView, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT status, job, validation, approval, estimate, execution, history
		FROM deployment_jobs
		WHERE job_id = $1`, jobID)

	view, err := scanJobRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	return view, nil
}

// ListJobs implements DeploymentStore, newest first.
func (s *PostgresStore) ListJobs(ctx context.Context) ([]*JobStatusView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, job, validation, approval, estimate, execution, history
		FROM deployment_jobs
		ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var views []*JobStatusView
	for rows.Next() {
		view, err := scanJobRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		views = append(views, view)
	}
	return views, rows.Err()
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJobRow(row rowScanner) (*JobStatusView, error) {
	var (
		status     string
		jobJSON    []byte
		validation []byte
		approval   []byte
		estimate   []byte
		execution  []byte
		history    []byte
	)
	if err := row.Scan(&status, &jobJSON, &validation, &approval, &estimate, &execution, &history); err != nil {
		return nil, err
	}

	view := &JobStatusView{Status: JobStatus(status)}
	if err := json.Unmarshal(jobJSON, &view.Job); err != nil {
		return nil, fmt.Errorf("corrupt job column: %w", err)
	}
	if err := unmarshalIfPresent(validation, &view.Validation); err != nil {
		return nil, err
	}
	if err := unmarshalIfPresent(approval, &view.Approval); err != nil {
		return nil, err
	}
	if err := unmarshalIfPresent(estimate, &view.Estimate); err != nil {
		return nil, err
	}
	if err := unmarshalIfPresent(execution, &view.Execution); err != nil {
		return nil, err
	}
	if err := unmarshalIfPresent(history, &view.History); err != nil {
		return nil, err
	}
	return view, nil
}

func nullJSON(v interface{}) interface{} {
	if isNilValue(v) {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func isNilValue(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case *InfrastructureValidationResult:
		return val == nil
	case *ApprovalResult:
		return val == nil
	case *cost.Estimate:
		return val == nil
	case *DeploymentExecution:
		return val == nil
	case []StatusChange:
		return val == nil
	default:
		return false
	}
}

func unmarshalIfPresent(data []byte, target interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("corrupt stored column: %w", err)
	}
	return nil
}
