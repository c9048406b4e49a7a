// Package pathsec provides containment-checked path resolution and
// crash-safe file writes. Every file operation in the audit pipeline
// funnels through Join, which guarantees the resolved path stays inside
// a configured base directory.
package pathsec

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// ContainmentError reports a path that resolves outside its base directory.
type ContainmentError struct {
	Base      string
	Candidate string
	Resolved  string
}

func (e *ContainmentError) Error() string {
	return fmt.Sprintf("path %q resolves to %q, outside base %q", e.Candidate, e.Resolved, e.Base)
}

// IsContainmentError reports whether err is (or wraps) a ContainmentError.
func IsContainmentError(err error) bool {
	var ce *ContainmentError
	return errors.As(err, &ce)
}

// Join resolves candidate relative to base and returns the absolute path.
// Symlinks and ".." segments are resolved before the check, so this is a
// whitelist-by-containment guarantee, not a substring blacklist. If the
// resolved path is not base itself or a descendant of base, Join fails
// with a ContainmentError.
func Join(base, candidate string) (string, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("resolving base %q: %w", base, err)
	}
	resolvedBase, err := filepath.EvalSymlinks(absBase)
	if err != nil {
		return "", fmt.Errorf("resolving base %q: %w", base, err)
	}

	target := candidate
	if !filepath.IsAbs(target) {
		target = filepath.Join(resolvedBase, target)
	}
	resolved, err := resolveExisting(filepath.Clean(target))
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", candidate, err)
	}

	if resolved != resolvedBase && !strings.HasPrefix(resolved, resolvedBase+string(filepath.Separator)) {
		return "", &ContainmentError{Base: resolvedBase, Candidate: candidate, Resolved: resolved}
	}
	return resolved, nil
}

// resolveExisting resolves symlinks in the deepest existing ancestor of
// path and re-appends the remaining (not yet created) components. This
// lets Join validate write destinations that do not exist yet.
func resolveExisting(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	parent := filepath.Dir(path)
	if parent == path {
		// Filesystem root doesn't exist; nothing more to resolve.
		return path, nil
	}
	resolvedParent, err := resolveExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(path)), nil
}

// Open validates candidate against base via Join, then opens the file
// read-only. The caller owns the handle and must close it.
func Open(base, candidate string) (*os.File, error) {
	return OpenFile(base, candidate, os.O_RDONLY, 0)
}

// OpenFile is Open with explicit flags and permissions.
func OpenFile(base, candidate string, flag int, perm os.FileMode) (*os.File, error) {
	path, err := Join(base, candidate)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, nil
}

// WriteResult describes a completed atomic write.
type WriteResult struct {
	// Path is the resolved destination path.
	Path string

	// BytesWritten is the length of the data written.
	BytesWritten int

	// BackupPath is the path of the pre-write backup, or empty if no
	// backup was taken (destination didn't exist, backups disabled, or
	// the best-effort backup failed).
	BackupPath string
}

// AtomicWrite writes data to candidate (validated against base) such that
// the destination is never observed in a partially written state. The data
// goes to a temporary file in the destination's directory, is fsynced, and
// is then renamed over the destination; the rename is atomic because both
// paths share a filesystem.
//
// If the destination already exists and createBackup is true, the existing
// file is first renamed to a sibling ".bak" path. The backup is best
// effort: a failure is logged and the write proceeds without one.
func AtomicWrite(base, candidate string, data []byte, createBackup bool) (WriteResult, error) {
	path, err := Join(base, candidate)
	if err != nil {
		return WriteResult{}, err
	}

	result := WriteResult{Path: path}

	// Rewriting an existing file must not change its mode; only new
	// files get the default.
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
		if createBackup {
			backupPath := path + ".bak"
			if err := os.Rename(path, backupPath); err != nil {
				log.Warn().Err(err).Str("path", path).Msg("backup failed, writing without one")
			} else {
				result.BackupPath = backupPath
			}
		}
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".fsaudit-write-*")
	if err != nil {
		return WriteResult{}, fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	n, err := tmp.Write(data)
	if err != nil {
		cleanup()
		return WriteResult{}, fmt.Errorf("writing temp file: %w", err)
	}
	// Force the data to stable storage before the rename makes it visible.
	if err := tmp.Sync(); err != nil {
		cleanup()
		return WriteResult{}, fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return WriteResult{}, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		os.Remove(tmpName)
		return WriteResult{}, fmt.Errorf("setting permissions: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return WriteResult{}, fmt.Errorf("renaming temp file over %s: %w", path, err)
	}
	result.BytesWritten = n

	// Best-effort: persist the directory entry so the rename survives
	// a crash. Not all filesystems support fsync on directories.
	if d, err := os.Open(dir); err == nil {
		if err := d.Sync(); err != nil {
			log.Debug().Err(err).Str("dir", dir).Msg("directory sync failed")
		}
		d.Close()
	}

	return result, nil
}
