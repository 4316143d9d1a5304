package tools

import "os"

// Sandbox wraps a shell command with OS-level confinement to one directory
type Sandbox interface {
	Wrap(command string, dir string) (string, []string)
	Available() bool
	Name() string
}

var platformSandboxes []Sandbox

func registerPlatformSandbox(s Sandbox) {
	platformSandboxes = append(platformSandboxes, s)
}

// DetectSandbox returns the first available platform sandbox, or a
// pass-through shell when none is installed.
func DetectSandbox() Sandbox {
	for _, s := range platformSandboxes {
		if s.Available() {
			return s
		}
	}
	return plainShell{}
}

type plainShell struct{}

func (plainShell) Wrap(command string, dir string) (string, []string) {
	return "bash", []string{"-c", command}
}
func (plainShell) Available() bool { return true }
func (plainShell) Name() string    { return "none" }

// commandEnv is the allowlisted environment handed to commands.
func commandEnv() []string {
	var env []string
	for _, key := range []string{"PATH", "HOME", "TERM", "LANG", "GOPATH", "GOROOT", "TMPDIR"} {
		if val, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+val)
		}
	}
	return env
}
