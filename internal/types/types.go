// Package types defines the core data model shared across the audit
// pipeline: findings, runs, and their enumerated states.
package types

import (
	"fmt"
	"time"
)

// Severity classifies how serious a finding is.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// IsValid returns true if the severity is a known value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// RunStatus tracks the lifecycle of an audit run.
// A run starts RUNNING and makes exactly one transition to a terminal
// status (OK, FAILED, or CANCELLED). There are no further transitions.
type RunStatus string

const (
	StatusRunning   RunStatus = "RUNNING"
	StatusOK        RunStatus = "OK"
	StatusFailed    RunStatus = "FAILED"
	StatusCancelled RunStatus = "CANCELLED"
)

// IsValid returns true if the status is a known value.
func (s RunStatus) IsValid() bool {
	switch s {
	case StatusRunning, StatusOK, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal returns true if the status ends a run's lifecycle.
func (s RunStatus) IsTerminal() bool {
	return s == StatusOK || s == StatusFailed || s == StatusCancelled
}

// Finding is an immutable record of one issue detected in one file.
// Agents create findings during analysis; the session store persists them
// by value. Duplicate findings across agents are permitted and accumulate.
type Finding struct {
	// Path is the absolute path of the file within the audited root.
	Path string `json:"path"`

	// Rule is a short identifier for the check that fired,
	// e.g. "TODO_PRESENT" or "FILE_TOO_LARGE".
	Rule string `json:"rule"`

	// Severity is LOW, MEDIUM, or HIGH.
	Severity Severity `json:"severity"`

	// Message is a human-readable description of the issue.
	Message string `json:"message"`
}

// Validate checks that the finding is well-formed.
func (f *Finding) Validate() error {
	if f.Path == "" {
		return fmt.Errorf("finding path is required")
	}
	if f.Rule == "" {
		return fmt.Errorf("finding rule is required")
	}
	if !f.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %s", f.Severity)
	}
	return nil
}

// AuditRun is one execution of the pipeline over a root directory.
type AuditRun struct {
	// ID is a collision-resistant identifier generated at start.
	ID string `json:"id"`

	// Root is the audited directory.
	Root string `json:"root"`

	StartedAt time.Time `json:"started_at"`

	// FinishedAt is nil until the run reaches a terminal status.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	Status RunStatus `json:"status"`
}
