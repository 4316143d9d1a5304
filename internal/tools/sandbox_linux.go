//go:build linux

package tools

import "os/exec"

// bwrapSandbox runs commands under bubblewrap with the system read-only and
// only the working directory and /tmp writable.
type bwrapSandbox struct{}

func (bwrapSandbox) Wrap(command string, dir string) (string, []string) {
	args := []string{"--unshare-pid", "--die-with-parent"}
	for _, ro := range []string{"/usr", "/bin", "/lib", "/etc"} {
		args = append(args, "--ro-bind", ro, ro)
	}
	args = append(args,
		"--symlink", "usr/lib64", "/lib64",
		"--proc", "/proc",
		"--dev", "/dev",
		"--tmpfs", "/tmp",
		"--bind", dir, dir,
		"--chdir", dir,
		"bash", "-c", command,
	)
	return "bwrap", args
}

func (bwrapSandbox) Available() bool {
	_, err := exec.LookPath("bwrap")
	return err == nil
}

func (bwrapSandbox) Name() string { return "bwrap" }

func init() {
	registerPlatformSandbox(bwrapSandbox{})
}
