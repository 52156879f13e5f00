// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package logger

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

// Logger provides structured logging for the deployment control plane.
// Every entry carries the job and deployment identifiers so a job's full
// pipeline history can be reassembled from aggregated logs.
type Logger struct {
	Component  string
	InstanceID string
	Container  string
}

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp    string                 `json:"timestamp"`
	Level        LogLevel               `json:"level"`
	Component    string                 `json:"component"`
	InstanceID   string                 `json:"instance_id"`
	Container    string                 `json:"container"`
	JobID        string                 `json:"job_id,omitempty"`
	DeploymentID string                 `json:"deployment_id,omitempty"`
	Message      string                 `json:"message"`
	Fields       map[string]interface{} `json:"fields,omitempty"`
}

// New creates a new Logger for the specified component
func New(component string) *Logger {
	// Instance ID is set during deployment
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = "unknown"
	}

	container, err := os.Hostname()
	if err != nil {
		container = "unknown"
	}

	return &Logger{
		Component:  component,
		InstanceID: instanceID,
		Container:  container,
	}
}

// Log creates a structured log entry and writes it to stdout
func (l *Logger) Log(level LogLevel, jobID, deploymentID, message string, fields map[string]interface{}) {
	entry := LogEntry{
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
		Level:        level,
		Component:    l.Component,
		InstanceID:   l.InstanceID,
		Container:    l.Container,
		JobID:        jobID,
		DeploymentID: deploymentID,
		Message:      message,
		Fields:       fields,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		log.Printf("ERROR: Failed to marshal log entry: %v", err)
		return
	}

	log.Println(string(jsonBytes))
}

// Info logs an informational message
func (l *Logger) Info(jobID, deploymentID, message string, fields map[string]interface{}) {
	l.Log(INFO, jobID, deploymentID, message, fields)
}

// Error logs an error message
func (l *Logger) Error(jobID, deploymentID, message string, fields map[string]interface{}) {
	l.Log(ERROR, jobID, deploymentID, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(jobID, deploymentID, message string, fields map[string]interface{}) {
	l.Log(WARN, jobID, deploymentID, message, fields)
}

// Debug logs a debug message
func (l *Logger) Debug(jobID, deploymentID, message string, fields map[string]interface{}) {
	l.Log(DEBUG, jobID, deploymentID, message, fields)
}

// ErrorWithErr logs an error message with the error recorded as a field
func (l *Logger) ErrorWithErr(jobID, deploymentID, message string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(jobID, deploymentID, message, fields)
}

// InfoWithDuration logs an info message with a duration field
func (l *Logger) InfoWithDuration(jobID, deploymentID, message string, durationMS float64, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = durationMS
	l.Info(jobID, deploymentID, message, fields)
}
