// Package storage defines the session repository interface for audit run
// bookkeeping and finding persistence.
package storage

import (
	"context"

	"github.com/fsaudit/fsaudit/internal/types"
)

// Storage is the durable store for audit runs and findings.
// Implementations must be safe for concurrent short-lived callers.
type Storage interface {
	// StartRun inserts a RUNNING run row for root and returns its
	// generated identifier. Safe to call concurrently without collision.
	StartRun(ctx context.Context, root string) (string, error)

	// SaveFindings persists findings for a run in one batched statement.
	// A no-op on empty input. Findings are copied, never referenced.
	SaveFindings(ctx context.Context, runID string, findings []types.Finding) error

	// EndRun records the terminal status and finish time for a run.
	// Last write wins; the orchestrator calls it exactly once per run.
	EndRun(ctx context.Context, runID string, status types.RunStatus) error

	// GetRun returns a run by ID, or nil if it doesn't exist.
	GetRun(ctx context.Context, id string) (*types.AuditRun, error)

	// ListRuns returns the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]*types.AuditRun, error)

	// GetFindings returns a run's findings in insertion order.
	GetFindings(ctx context.Context, runID string) ([]types.Finding, error)

	// Close releases the underlying store.
	Close() error
}

// Config holds session store configuration.
type Config struct {
	// Path is the SQLite database file path.
	// Default: ".fsaudit/audit.db" under the audited root.
	// Special value ":memory:" creates an in-memory database (tests).
	Path string
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Path: ".fsaudit/audit.db",
	}
}
