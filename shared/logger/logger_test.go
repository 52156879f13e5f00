// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name           string
		component      string
		instanceID     string
		expectedComp   string
		expectedInstID string
	}{
		{
			name:           "with instance ID set",
			component:      "orchestrator",
			instanceID:     "instance-123",
			expectedComp:   "orchestrator",
			expectedInstID: "instance-123",
		},
		{
			name:           "without instance ID",
			component:      "catalog",
			instanceID:     "",
			expectedComp:   "catalog",
			expectedInstID: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.instanceID != "" {
				os.Setenv("INSTANCE_ID", tt.instanceID)
				defer os.Unsetenv("INSTANCE_ID")
			} else {
				os.Unsetenv("INSTANCE_ID")
			}

			l := New(tt.component)

			if l.Component != tt.expectedComp {
				t.Errorf("Expected component %s, got %s", tt.expectedComp, l.Component)
			}
			if l.InstanceID != tt.expectedInstID {
				t.Errorf("Expected instance ID %s, got %s", tt.expectedInstID, l.InstanceID)
			}
			if l.Container == "" {
				t.Error("Expected container to be set from hostname")
			}
		})
	}
}

func captureEntry(t *testing.T, emit func(l *Logger)) LogEntry {
	t.Helper()

	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	emit(New("test-component"))

	output := buf.String()
	jsonStart := strings.Index(output, "{")
	if jsonStart == -1 {
		t.Fatalf("no JSON found in log output: %s", output)
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(output[jsonStart:])), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\noutput: %s", err, output)
	}
	return entry
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		name    string
		logFunc func(*Logger, string, string, string, map[string]interface{})
		level   LogLevel
	}{
		{"Info log", (*Logger).Info, INFO},
		{"Error log", (*Logger).Error, ERROR},
		{"Warn log", (*Logger).Warn, WARN},
		{"Debug log", (*Logger).Debug, DEBUG},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := captureEntry(t, func(l *Logger) {
				tt.logFunc(l, "job_abc123", "deploy_def456", "test message", map[string]interface{}{"key": "value"})
			})

			if entry.Level != tt.level {
				t.Errorf("Expected level %s, got %s", tt.level, entry.Level)
			}
			if entry.JobID != "job_abc123" {
				t.Errorf("Expected job ID job_abc123, got %s", entry.JobID)
			}
			if entry.DeploymentID != "deploy_def456" {
				t.Errorf("Expected deployment ID deploy_def456, got %s", entry.DeploymentID)
			}
			if entry.Message != "test message" {
				t.Errorf("Expected message 'test message', got %s", entry.Message)
			}
			if entry.Fields["key"] != "value" {
				t.Errorf("Expected field key=value, got %v", entry.Fields["key"])
			}
			if _, err := time.Parse(time.RFC3339Nano, entry.Timestamp); err != nil {
				t.Errorf("Invalid timestamp format: %s", entry.Timestamp)
			}
		})
	}
}

func TestErrorWithErr(t *testing.T) {
	entry := captureEntry(t, func(l *Logger) {
		l.ErrorWithErr("job_1", "", "execution failed", errors.New("executor unreachable"), nil)
	})

	if entry.Level != ERROR {
		t.Errorf("Expected ERROR level, got %s", entry.Level)
	}
	if entry.Fields["error"] != "executor unreachable" {
		t.Errorf("Expected error field, got %v", entry.Fields["error"])
	}
}

func TestInfoWithDuration(t *testing.T) {
	entry := captureEntry(t, func(l *Logger) {
		l.InfoWithDuration("job_1", "deploy_1", "execution completed", 123.45, map[string]interface{}{
			"attempt": 2,
		})
	})

	if entry.Fields["duration_ms"] != 123.45 {
		t.Errorf("Expected duration_ms 123.45, got %v", entry.Fields["duration_ms"])
	}
	if entry.Fields["attempt"] != float64(2) {
		t.Errorf("Expected attempt field preserved, got %v", entry.Fields["attempt"])
	}
}

func TestJSONMarshalError(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	l := New("test-component")

	// Channels cannot be marshaled to JSON
	l.Info("job_1", "", "bad fields", map[string]interface{}{"ch": make(chan int)})

	if !strings.Contains(buf.String(), "Failed to marshal log entry") {
		t.Error("Expected error message about JSON marshaling failure")
	}
}
