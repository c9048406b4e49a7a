// Package planner reduces a candidate file list to the subset that an
// audit run should actually analyze. Planners are pure functions over
// their input, so strategies can be swapped without touching the
// orchestrator.
package planner

import "os"

// Planner selects the files to analyze out of an ordered candidate list.
type Planner interface {
	SelectTargets(candidates []string) []string
}

// Identity selects every candidate. This is the default strategy.
type Identity struct{}

// SelectTargets implements Planner.
func (Identity) SelectTargets(candidates []string) []string {
	return candidates
}

// MaxFiles selects at most N candidates, preserving order. Useful for
// bounding run cost on very large trees.
type MaxFiles struct {
	N int
}

// SelectTargets implements Planner.
func (p MaxFiles) SelectTargets(candidates []string) []string {
	if p.N <= 0 || len(candidates) <= p.N {
		return candidates
	}
	return candidates[:p.N]
}

// SizeBounded skips candidates whose on-disk size exceeds MaxBytes.
// A candidate that cannot be stat'd stays selected; the read path will
// surface the real error instead of the planner guessing at it.
type SizeBounded struct {
	MaxBytes int64
}

// SelectTargets implements Planner.
func (p SizeBounded) SelectTargets(candidates []string) []string {
	if p.MaxBytes <= 0 {
		return candidates
	}
	selected := make([]string, 0, len(candidates))
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && info.Size() > p.MaxBytes {
			continue
		}
		selected = append(selected, path)
	}
	return selected
}

// Chain applies planners left to right, feeding each one's selection into
// the next.
type Chain []Planner

// SelectTargets implements Planner.
func (c Chain) SelectTargets(candidates []string) []string {
	for _, p := range c {
		candidates = p.SelectTargets(candidates)
	}
	return candidates
}
