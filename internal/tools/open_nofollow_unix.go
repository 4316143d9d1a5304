//go:build !windows

package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// openNoFollow opens path refusing symlinks, then re-checks that the opened
// file still lies inside the jail.
func (j *Jail) openNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	f, err := os.OpenFile(path, flag|syscall.O_NOFOLLOW, perm)
	if err != nil {
		return nil, err
	}
	return j.verifyOpened(f, path)
}

func (j *Jail) verifyOpened(f *os.File, path string) (*os.File, error) {
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
