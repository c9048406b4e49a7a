package auditor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsaudit/fsaudit/internal/agents"
	"github.com/fsaudit/fsaudit/internal/config"
	"github.com/fsaudit/fsaudit/internal/pathsec"
	"github.com/fsaudit/fsaudit/internal/planner"
	"github.com/fsaudit/fsaudit/internal/repo"
	"github.com/fsaudit/fsaudit/internal/retry"
	"github.com/fsaudit/fsaudit/internal/storage/sqlite"
	"github.com/fsaudit/fsaudit/internal/types"
)

func fastRetry() retry.Policy {
	return retry.Policy{
		Attempts:  3,
		BaseDelay: time.Millisecond,
		MaxDelay:  5 * time.Millisecond,
	}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newTestAuditor(t *testing.T, root string, agentList []agents.Agent, workers int) *Auditor {
	t.Helper()
	files, err := repo.New(root, nil)
	require.NoError(t, err)
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return NewAuditor(files, store, planner.Identity{}, agentList, []string{"*.go"}, fastRetry(), workers)
}

// markerAgent emits one finding per file, tagged with the agent's name,
// so tests can assert file-then-agent ordering.
type markerAgent struct {
	name string
}

func (m *markerAgent) Name() string { return m.name }

func (m *markerAgent) Analyze(ctx context.Context, path, content string) ([]types.Finding, error) {
	return []types.Finding{{
		Path:     path,
		Rule:     "MARK_" + m.name,
		Severity: types.SeverityLow,
		Message:  m.name,
	}}, nil
}

// failingAgent fails on files whose path contains failOn, counting calls.
type failingAgent struct {
	failOn string
	err    error
	calls  int
}

func (f *failingAgent) Name() string { return "failing" }

func (f *failingAgent) Analyze(ctx context.Context, path, content string) ([]types.Finding, error) {
	if f.failOn == "" || strings.Contains(path, f.failOn) {
		f.calls++
		return nil, f.err
	}
	return nil, nil
}

func TestRunTODOScenario(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n// TODO: clean this up\n")

	a := newTestAuditor(t, root, []agents.Agent{agents.NewRulesAgent()}, 1)
	findings, err := a.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, findings, 1)
	assert.Equal(t, "TODO_PRESENT", findings[0].Rule)
	assert.Equal(t, types.SeverityLow, findings[0].Severity)

	runs, err := a.Store().ListRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, types.StatusOK, runs[0].Status)

	persisted, err := a.Store().GetFindings(context.Background(), runs[0].ID)
	require.NoError(t, err)
	assert.Len(t, persisted, 1)
}

func TestRunFileTooLargeScenario(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "big.go", strings.Repeat("a", agents.DefaultSizeThreshold+1))

	a := newTestAuditor(t, root, []agents.Agent{agents.NewRulesAgent()}, 1)
	findings, err := a.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, findings, 1)
	assert.Equal(t, "FILE_TOO_LARGE", findings[0].Rule)
	assert.Equal(t, types.SeverityMedium, findings[0].Severity)
}

func TestRunEmptyRoot(t *testing.T) {
	root := t.TempDir()

	a := newTestAuditor(t, root, []agents.Agent{agents.NewRulesAgent()}, 1)
	findings, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, findings)

	runs, err := a.Store().ListRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, types.StatusOK, runs[0].Status)
}

func TestRunFileThenAgentOrder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a")
	writeFile(t, root, "b.go", "package b")

	agentList := []agents.Agent{&markerAgent{name: "one"}, &markerAgent{name: "two"}}
	a := newTestAuditor(t, root, agentList, 1)

	findings, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, findings, 4)

	// Files in lexicographic order, agents in configured order per file.
	assert.Equal(t, "a.go", filepath.Base(findings[0].Path))
	assert.Equal(t, "MARK_one", findings[0].Rule)
	assert.Equal(t, "a.go", filepath.Base(findings[1].Path))
	assert.Equal(t, "MARK_two", findings[1].Rule)
	assert.Equal(t, "b.go", filepath.Base(findings[2].Path))
	assert.Equal(t, "MARK_one", findings[2].Rule)
	assert.Equal(t, "b.go", filepath.Base(findings[3].Path))
	assert.Equal(t, "MARK_two", findings[3].Rule)
}

func TestRunReturnedFindingsMatchPersisted(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "// TODO a")
	writeFile(t, root, "b.go", "// TODO b")

	a := newTestAuditor(t, root, []agents.Agent{agents.NewRulesAgent()}, 1)
	findings, err := a.Run(context.Background())
	require.NoError(t, err)

	runs, err := a.Store().ListRuns(context.Background(), 1)
	require.NoError(t, err)
	persisted, err := a.Store().GetFindings(context.Background(), runs[0].ID)
	require.NoError(t, err)

	assert.Equal(t, findings, persisted)
}

func TestRunExplicitTargets(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "// TODO a")
	writeFile(t, root, "b.go", "// TODO b")

	a := newTestAuditor(t, root, []agents.Agent{agents.NewRulesAgent()}, 1)
	findings, err := a.Run(context.Background(), filepath.Join(root, "b.go"))
	require.NoError(t, err)

	require.Len(t, findings, 1)
	assert.Equal(t, "b.go", filepath.Base(findings[0].Path))
}

func TestRunRetriesExhaustedMarksFailed(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a")

	failing := &failingAgent{err: errors.New("flaky analyzer")}
	a := newTestAuditor(t, root, []agents.Agent{failing}, 1)

	_, err := a.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, failing.calls, "retryable failure consumes every attempt")

	runs, listErr := a.Store().ListRuns(context.Background(), 1)
	require.NoError(t, listErr)
	require.Len(t, runs, 1)
	assert.Equal(t, types.StatusFailed, runs[0].Status)
	assert.NotNil(t, runs[0].FinishedAt, "run must not be left dangling")
}

func TestRunNonRetryableFailsFast(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a")

	failing := &failingAgent{err: &pathsec.ContainmentError{Base: root, Candidate: "../x", Resolved: "/x"}}
	a := newTestAuditor(t, root, []agents.Agent{failing}, 1)

	_, err := a.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, failing.calls, "non-retryable failure must not be retried")
}

func TestRunAgentTimeoutMarksFailedNotCancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a")

	// An agent-internal timeout wraps the context sentinel without the
	// run context ever being canceled.
	failing := &failingAgent{err: fmt.Errorf("api call timed out: %w", context.DeadlineExceeded)}
	a := newTestAuditor(t, root, []agents.Agent{failing}, 1)

	_, err := a.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, failing.calls, "an internal timeout is transient and consumes every attempt")

	runs, listErr := a.Store().ListRuns(context.Background(), 1)
	require.NoError(t, listErr)
	require.Len(t, runs, 1)
	assert.Equal(t, types.StatusFailed, runs[0].Status)
}

func TestRunPersistedFindingsSurviveFailure(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "// TODO a")
	writeFile(t, root, "z.go", "package z")

	agentList := []agents.Agent{
		agents.NewRulesAgent(),
		&failingAgent{failOn: "z.go", err: errors.New("boom")},
	}
	a := newTestAuditor(t, root, agentList, 1)

	_, err := a.Run(context.Background())
	require.Error(t, err)

	runs, listErr := a.Store().ListRuns(context.Background(), 1)
	require.NoError(t, listErr)
	require.Len(t, runs, 1)
	assert.Equal(t, types.StatusFailed, runs[0].Status)

	persisted, findErr := a.Store().GetFindings(context.Background(), runs[0].ID)
	require.NoError(t, findErr)
	require.Len(t, persisted, 1, "findings persisted before the failure are kept")
	assert.Equal(t, "TODO_PRESENT", persisted[0].Rule)
}

func TestRunCancelledBetweenFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a")
	writeFile(t, root, "b.go", "package b")

	ctx, cancel := context.WithCancel(context.Background())

	// Cancel after the first file's analysis completes.
	seen := 0
	cancelling := &cancellingAgent{onAnalyze: func() {
		seen++
		if seen == 1 {
			cancel()
		}
	}}
	a := newTestAuditor(t, root, []agents.Agent{cancelling}, 1)

	_, err := a.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	runs, listErr := a.Store().ListRuns(context.Background(), 1)
	require.NoError(t, listErr)
	require.Len(t, runs, 1)
	assert.Equal(t, types.StatusCancelled, runs[0].Status)
	assert.NotNil(t, runs[0].FinishedAt)
}

type cancellingAgent struct {
	onAnalyze func()
}

func (c *cancellingAgent) Name() string { return "cancelling" }

func (c *cancellingAgent) Analyze(ctx context.Context, path, content string) ([]types.Finding, error) {
	c.onAnalyze()
	return nil, nil
}

func TestRunParallelPreservesOrder(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.go", "b.go", "c.go", "d.go", "e.go"} {
		writeFile(t, root, name, "// TODO in "+name)
	}

	sequential := newTestAuditor(t, root, []agents.Agent{agents.NewRulesAgent()}, 1)
	seqFindings, err := sequential.Run(context.Background())
	require.NoError(t, err)

	parallel := newTestAuditor(t, root, []agents.Agent{agents.NewRulesAgent()}, 4)
	parFindings, err := parallel.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, seqFindings, parFindings)
}

func TestNewCompositionRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "// TODO wired end to end")

	cfg := config.DefaultConfig()
	cfg.DBPath = ":memory:"

	a, err := New(root, cfg)
	require.NoError(t, err)
	defer a.Close()

	findings, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "TODO_PRESENT", findings[0].Rule)
}

func TestNewRejectsUnknownAgent(t *testing.T) {
	root := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DBPath = ":memory:"
	cfg.Agents = []string{"does-not-exist"}

	_, err := New(root, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does-not-exist")
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Workers = -1

	_, err := New(t.TempDir(), cfg)
	assert.Error(t, err)
}

func TestNewDefaultDBPathUnderRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a")

	a, err := New(root, nil)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Run(context.Background())
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(root, ".fsaudit", "audit.db"))
	assert.NoError(t, statErr, "store lives in a dotfile-prefixed path under the root")
}
