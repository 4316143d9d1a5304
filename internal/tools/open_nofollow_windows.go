//go:build windows

package tools

import (
	"fmt"
	"os"
	"path/filepath"
)

// openNoFollow has no O_NOFOLLOW on Windows; the post-open check still
// catches a swapped symlink.
func (j *Jail) openNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}
	realPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("post-open path resolution failed: %w", err)
	}
	if !isWithinRoot(realPath, j.root) {
		_ = f.Close()
		return nil, fmt.Errorf("file %q resolved outside the workspace after open", path)
	}
	return f, nil
}
