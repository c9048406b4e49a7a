// Package auditor composes the planner, file repository, session store,
// and agents into one audit run. The orchestrator guarantees that every
// RUNNING run row reaches exactly one terminal status, even when a file's
// analysis fails or the caller cancels.
package auditor

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fsaudit/fsaudit/internal/agents"
	"github.com/fsaudit/fsaudit/internal/planner"
	"github.com/fsaudit/fsaudit/internal/repo"
	"github.com/fsaudit/fsaudit/internal/retry"
	"github.com/fsaudit/fsaudit/internal/storage"
	"github.com/fsaudit/fsaudit/internal/types"
)

// endRunTimeout bounds the terminal-status write when the caller's
// context is already dead.
const endRunTimeout = 5 * time.Second

// Auditor orchestrates one audit pipeline: scan, plan, analyze, persist.
type Auditor struct {
	root        string
	files       *repo.FileRepository
	store       storage.Storage
	plan        planner.Planner
	agents      []agents.Agent
	patterns    []string
	retryPolicy retry.Policy
	workers     int
}

// NewAuditor wires an auditor from already-constructed collaborators.
// Most callers should use New (the composition root) instead.
func NewAuditor(
	files *repo.FileRepository,
	store storage.Storage,
	plan planner.Planner,
	agentList []agents.Agent,
	patterns []string,
	retryPolicy retry.Policy,
	workers int,
) *Auditor {
	if plan == nil {
		plan = planner.Identity{}
	}
	if workers < 1 {
		workers = 1
	}
	return &Auditor{
		root:        files.Root(),
		files:       files,
		store:       store,
		plan:        plan,
		agents:      agentList,
		patterns:    patterns,
		retryPolicy: retryPolicy,
		workers:     workers,
	}
}

// Root returns the audited root directory.
func (a *Auditor) Root() string {
	return a.root
}

// Store exposes the session store for read-side consumers (CLI history).
func (a *Auditor) Store() storage.Storage {
	return a.store
}

// Close releases the session store.
func (a *Auditor) Close() error {
	return a.store.Close()
}

// Run executes one audit over the root. When explicit targets are given
// they replace the scan step. On success it returns every finding in
// file-then-agent order; on failure the run is marked FAILED (or
// CANCELLED when the caller's context was canceled) and the original
// error is returned. Findings persisted before the failure point are not
// rolled back.
func (a *Auditor) Run(ctx context.Context, targets ...string) ([]types.Finding, error) {
	runID, err := a.store.StartRun(ctx, a.root)
	if err != nil {
		return nil, fmt.Errorf("starting run: %w", err)
	}
	log.Info().Str("run_id", runID).Str("root", a.root).Msg("audit run started")

	findings, runErr := a.analyze(ctx, runID, targets)

	status := types.StatusOK
	if runErr != nil {
		status = types.StatusFailed
		// CANCELLED is reserved for the caller giving up. An agent error
		// that merely wraps a context sentinel (an HTTP client's request
		// timeout, say) is an ordinary failure.
		if ctx.Err() != nil {
			status = types.StatusCancelled
		}
	}

	// The terminal transition must land even if ctx is already dead.
	endCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		endCtx, cancel = context.WithTimeout(context.Background(), endRunTimeout)
		defer cancel()
	}
	if endErr := a.store.EndRun(endCtx, runID, status); endErr != nil {
		if runErr == nil {
			return nil, fmt.Errorf("ending run %s: %w", runID, endErr)
		}
		log.Warn().Err(endErr).Str("run_id", runID).Msg("failed to record terminal run status")
	}

	if runErr != nil {
		log.Error().Err(runErr).Str("run_id", runID).Str("status", string(status)).Msg("audit run failed")
		return nil, runErr
	}
	log.Info().Str("run_id", runID).Int("findings", len(findings)).Msg("audit run completed")
	return findings, nil
}

// analyze performs discovery, planning, and per-file analysis.
func (a *Auditor) analyze(ctx context.Context, runID string, targets []string) ([]types.Finding, error) {
	candidates := targets
	if len(candidates) == 0 {
		var err error
		candidates, err = a.files.Scan(ctx, a.patterns)
		if err != nil {
			return nil, err
		}
	}

	selected := a.plan.SelectTargets(candidates)
	log.Debug().Int("candidates", len(candidates)).Int("selected", len(selected)).Msg("targets planned")

	if a.workers > 1 {
		return a.analyzeParallel(ctx, runID, selected)
	}
	return a.analyzeSequential(ctx, runID, selected)
}

// analyzeSequential processes files one at a time, in order.
func (a *Auditor) analyzeSequential(ctx context.Context, runID string, selected []string) ([]types.Finding, error) {
	findings := []types.Finding{}
	for _, path := range selected {
		if err := ctx.Err(); err != nil {
			return findings, err
		}
		fileFindings, err := a.analyzeFile(ctx, runID, path)
		if err != nil {
			return findings, err
		}
		findings = append(findings, fileFindings...)
	}
	return findings, nil
}

// analyzeParallel fans file analysis out over a bounded worker pool.
// Agents on any single file stay sequential so that file's findings are
// persisted in a stable order; results are concatenated by file position,
// so the returned list matches the sequential order.
func (a *Auditor) analyzeParallel(ctx context.Context, runID string, selected []string) ([]types.Finding, error) {
	results := make([][]types.Finding, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, path := range selected {
		i, path := i, path
		g.Go(func() error {
			fileFindings, err := a.analyzeFile(gctx, runID, path)
			if err != nil {
				return err
			}
			results[i] = fileFindings
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	findings := []types.Finding{}
	for _, fileFindings := range results {
		findings = append(findings, fileFindings...)
	}
	return findings, nil
}

// analyzeFile reads one file and runs every agent over it. Each agent
// invocation is wrapped in the retry policy; findings are persisted
// immediately per agent call so partial progress survives a later fatal
// failure.
func (a *Auditor) analyzeFile(ctx context.Context, runID, path string) ([]types.Finding, error) {
	content, err := a.files.ReadText(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var fileFindings []types.Finding
	for _, agent := range a.agents {
		operation := fmt.Sprintf("agent %s on %s", agent.Name(), filepath.Base(path))

		var found []types.Finding
		err := retry.Do(ctx, a.retryPolicy, operation, func(ctx context.Context) error {
			result, analyzeErr := agent.Analyze(ctx, path, content)
			if analyzeErr != nil {
				return analyzeErr
			}
			found = result
			return nil
		})
		if err != nil {
			return fileFindings, fmt.Errorf("analyzing %s: %w", path, err)
		}

		if len(found) > 0 {
			if err := a.store.SaveFindings(ctx, runID, found); err != nil {
				return fileFindings, fmt.Errorf("saving findings for %s: %w", path, err)
			}
			fileFindings = append(fileFindings, found...)
		}
	}
	return fileFindings, nil
}
