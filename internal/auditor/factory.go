package auditor

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/fsaudit/fsaudit/internal/agents"
	"github.com/fsaudit/fsaudit/internal/config"
	"github.com/fsaudit/fsaudit/internal/planner"
	"github.com/fsaudit/fsaudit/internal/repo"
	"github.com/fsaudit/fsaudit/internal/retry"
	"github.com/fsaudit/fsaudit/internal/storage/sqlite"
)

// New is the composition root: it wires the file repository, session
// store, planner, and agents into one Auditor for the given project root.
// This is the sole integration point for external callers.
func New(root string, cfg *config.Config) (*Auditor, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	files, err := repo.New(root, cfg.ExcludePatterns)
	if err != nil {
		return nil, err
	}

	dbPath := cfg.DBPath
	if dbPath != ":memory:" && !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(files.Root(), dbPath)
	}
	store, err := sqlite.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}

	registry := buildRegistry(cfg)
	agentNames := slices.Clone(cfg.Agents)
	if cfg.AIAgentEnabled && !slices.Contains(agentNames, "claude") {
		agentNames = append(agentNames, "claude")
	}
	agentList, err := registry.Build(agentNames)
	if err != nil {
		store.Close()
		return nil, err
	}

	retryPolicy := retry.Policy{
		Attempts:  cfg.RetryAttempts,
		BaseDelay: cfg.RetryBaseDelay,
		MaxDelay:  cfg.RetryMaxDelay,
	}

	return NewAuditor(files, store, buildPlanner(cfg), agentList, cfg.Patterns, retryPolicy, cfg.Workers), nil
}

// buildRegistry assembles the agent capability registry. Optional agents
// are registered only when configuration enables them; availability is
// never a hidden runtime branch.
func buildRegistry(cfg *config.Config) *agents.Registry {
	registry := agents.NewRegistry()
	_ = registry.Register("rules", func() (agents.Agent, error) {
		return agents.NewRulesAgent(), nil
	})
	if cfg.AIAgentEnabled {
		_ = registry.Register("claude", func() (agents.Agent, error) {
			return agents.NewAIAgent(cfg.AIModel)
		})
	}
	return registry
}

// buildPlanner chains the configured selection strategies; with no bounds
// configured this degenerates to the identity planner.
func buildPlanner(cfg *config.Config) planner.Planner {
	chain := planner.Chain{}
	if cfg.MaxFileBytes > 0 {
		chain = append(chain, planner.SizeBounded{MaxBytes: cfg.MaxFileBytes})
	}
	if cfg.MaxFiles > 0 {
		chain = append(chain, planner.MaxFiles{N: cfg.MaxFiles})
	}
	if len(chain) == 0 {
		return planner.Identity{}
	}
	return chain
}
