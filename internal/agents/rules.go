package agents

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fsaudit/fsaudit/internal/types"
)

// Rule identifiers emitted by the rules agent.
const (
	RuleTODOPresent  = "TODO_PRESENT"
	RuleFileTooLarge = "FILE_TOO_LARGE"
)

// DefaultSizeThreshold is the character count above which a file is
// flagged as oversized.
const DefaultSizeThreshold = 200_000

// DefaultMarkers are the technical-debt markers the rules agent looks for.
func DefaultMarkers() []string {
	return []string{"TODO", "FIXME", "HACK"}
}

// RulesAgent is the built-in rule-based analyzer. It flags files that
// contain technical-debt markers and files whose content exceeds a size
// threshold. Pure string inspection, no I/O.
type RulesAgent struct {
	// Markers are the substrings that trigger a TODO_PRESENT finding.
	Markers []string

	// SizeThreshold is the character (rune) count above which
	// FILE_TOO_LARGE fires.
	SizeThreshold int
}

// NewRulesAgent creates a rules agent with the default markers and size
// threshold.
func NewRulesAgent() *RulesAgent {
	return &RulesAgent{
		Markers:       DefaultMarkers(),
		SizeThreshold: DefaultSizeThreshold,
	}
}

// Name implements Agent.
func (a *RulesAgent) Name() string {
	return "rules"
}

// Analyze implements Agent.
func (a *RulesAgent) Analyze(ctx context.Context, path, content string) ([]types.Finding, error) {
	var findings []types.Finding

	var matched []string
	for _, marker := range a.Markers {
		if strings.Contains(content, marker) {
			matched = append(matched, marker)
		}
	}
	if len(matched) > 0 {
		findings = append(findings, types.Finding{
			Path:     path,
			Rule:     RuleTODOPresent,
			Severity: types.SeverityLow,
			Message:  fmt.Sprintf("file contains debt markers: %s", strings.Join(matched, ", ")),
		})
	}

	if a.SizeThreshold > 0 {
		if n := utf8.RuneCountInString(content); n > a.SizeThreshold {
			findings = append(findings, types.Finding{
				Path:     path,
				Rule:     RuleFileTooLarge,
				Severity: types.SeverityMedium,
				Message:  fmt.Sprintf("file is %d characters (threshold %d)", n, a.SizeThreshold),
			})
		}
	}

	return findings, nil
}
