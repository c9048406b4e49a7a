// Package repo implements the file repository: pattern-based enumeration
// and contained reads/writes under a single root directory.
package repo

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/IGLOU-EU/go-wildcard/v2"
	"github.com/rs/zerolog/log"

	"github.com/fsaudit/fsaudit/internal/pathsec"
)

// FileRepository enumerates and accesses files under a root, enforcing
// the containment invariant on every operation.
type FileRepository struct {
	root string

	// excludePatterns are glob-style patterns matched against
	// root-relative paths; matching files are skipped during Scan.
	excludePatterns []string
}

// DefaultExcludePatterns skips version control metadata, vendored code,
// and the audit pipeline's own state directory.
func DefaultExcludePatterns() []string {
	return []string{
		".git/*",
		".fsaudit/*",
		"vendor/*",
		"node_modules/*",
	}
}

// New creates a file repository rooted at root. The root must exist; it
// is resolved to an absolute path so that every returned path is absolute
// within it.
func New(root string, excludePatterns []string) (*FileRepository, error) {
	resolved, err := pathsec.Join(root, ".")
	if err != nil {
		return nil, fmt.Errorf("invalid root %q: %w", root, err)
	}
	if excludePatterns == nil {
		excludePatterns = DefaultExcludePatterns()
	}
	return &FileRepository{root: resolved, excludePatterns: excludePatterns}, nil
}

// Root returns the resolved root directory.
func (r *FileRepository) Root() string {
	return r.root
}

// Scan walks the root and returns the regular files whose root-relative
// path matches at least one of the glob-style patterns. Results are
// deduplicated and lexicographically sorted so repeated audits over an
// unchanged tree see the same order. Entries that fail the containment
// check (e.g. symlinks escaping the root) are excluded, not fatal.
func (r *FileRepository) Scan(ctx context.Context, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return nil, nil
	}

	seen := make(map[string]struct{})
	err := filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, relErr := filepath.Rel(r.root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if r.excluded(rel + "/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if r.excluded(rel) {
			return nil
		}

		matched := false
		for _, pattern := range patterns {
			if wildcard.Match(pattern, rel) {
				matched = true
				break
			}
		}
		if !matched {
			return nil
		}

		resolved, joinErr := pathsec.Join(r.root, rel)
		if joinErr != nil {
			if pathsec.IsContainmentError(joinErr) {
				log.Debug().Str("path", path).Msg("excluding entry outside root")
				return nil
			}
			return joinErr
		}
		seen[resolved] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", r.root, err)
	}

	files := make([]string, 0, len(seen))
	for path := range seen {
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}

// excluded reports whether a root-relative path matches an exclude pattern.
// Directory paths carry a trailing slash so "dir/*" patterns prune the
// whole subtree.
func (r *FileRepository) excluded(rel string) bool {
	for _, pattern := range r.excludePatterns {
		if wildcard.Match(pattern, rel) {
			return true
		}
	}
	return false
}

// ReadText reads a file through the containment check and returns its
// content as a string.
func (r *FileRepository) ReadText(path string) (string, error) {
	f, err := pathsec.Open(r.root, path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

// WriteText writes a file through the containment check using an atomic,
// backed-up write.
func (r *FileRepository) WriteText(path, data string) (pathsec.WriteResult, error) {
	return pathsec.AtomicWrite(r.root, path, []byte(data), true)
}
