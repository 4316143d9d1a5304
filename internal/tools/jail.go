package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	skerrors "github.com/abdul-hamid-achik/skillpanes/internal/errors"
)

// Jail confines file tools to one directory tree. It holds only the
// resolved root, so concurrent checks from different panels never interact.
type Jail struct {
	root string
}

// NewJail resolves root (following symlinks) and returns a jail over it.
func NewJail(root string) (*Jail, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve jail root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve jail root: %w", err)
	}
	return &Jail{root: resolved}, nil
}

// Root returns the resolved jail directory
func (j *Jail) Root() string {
	return j.root
}

// Resolve maps a user path (relative to the root, or absolute) to an absolute
// path inside the jail. Symlinked components are resolved before the check.
func (j *Jail) Resolve(path string) (string, error) {
	if path == "" {
		path = "."
	}
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(j.root, path)
	}

	resolved, err := resolveExistingPath(filepath.Clean(path))
	if err != nil {
		return "", skerrors.PathOutsideWorkspace(path)
	}
	if !isWithinRoot(resolved, j.root) {
		return "", skerrors.PathOutsideWorkspace(path)
	}
	return resolved, nil
}

// ResolveForWrite is Resolve plus a refusal to write through an existing symlink.
func (j *Jail) ResolveForWrite(path string) (string, error) {
	resolved, err := j.Resolve(path)
	if err != nil {
		return "", err
	}
	unresolved := path
	if !filepath.IsAbs(unresolved) {
		unresolved = filepath.Join(j.root, unresolved)
	}
	if info, err := os.Lstat(unresolved); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return "", fmt.Errorf("refusing to write through symlink %q", path)
	}
	return resolved, nil
}

// Rel returns path relative to the root for display, or path itself.
func (j *Jail) Rel(path string) string {
	if rel, err := filepath.Rel(j.root, path); err == nil {
		return rel
	}
	return path
}

// resolveExistingPath resolves the deepest existing ancestor via EvalSymlinks
// and re-appends the components that do not exist yet.
func resolveExistingPath(path string) (string, error) {
	current := path
	var tail []string

	for {
		_, err := os.Lstat(current)
		if err == nil {
			resolved, err := filepath.EvalSymlinks(current)
			if err != nil {
				return "", err
			}
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return filepath.Clean(resolved), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}

		parent := filepath.Dir(current)
		if parent == current {
			return filepath.Clean(path), nil
		}
		tail = append(tail, filepath.Base(current))
		current = parent
	}
}

// isWithinRoot checks if path is within or equal to root.
func isWithinRoot(path, root string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
