// Package security guards the files the analysis tools write.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideDirectory is returned for paths that resolve outside the
// permitted directory.
var ErrOutsideDirectory = errors.New("path escapes output directory")

// maxFilenameLen bounds SanitizeFilename results.
const maxFilenameLen = 96

// canonical returns the absolute form of path with symlinks resolved in
// its longest existing prefix. The remainder need not exist yet.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	existing, rest := abs, ""
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			return filepath.Join(resolved, rest), nil
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(existing), rest)
		existing = parent
	}
}

// CheckWithin returns ErrOutsideDirectory unless path, after symlink
// resolution, lies inside dir. dir must exist.
func CheckWithin(path, dir string) error {
	root, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return fmt.Errorf("output directory: %w", err)
	}
	if root, err = filepath.Abs(root); err != nil {
		return err
	}
	target, err := canonical(path)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s not under %s", ErrOutsideDirectory, path, dir)
	}
	return nil
}

// CheckExportPath accepts paths under the working directory or the
// system temp directory.
func CheckExportPath(path string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	for _, dir := range []string{cwd, os.TempDir()} {
		if CheckWithin(path, dir) == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must be under the working or temp directory", ErrOutsideDirectory, path)
}

// SanitizeFilename maps s onto letters, digits, dot, dash and underscore,
// collapsing other runs to one underscore. The result is never empty.
func SanitizeFilename(s string) string {
	var b strings.Builder
	under := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
			under = r == '_'
		case !under:
			b.WriteByte('_')
			under = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
