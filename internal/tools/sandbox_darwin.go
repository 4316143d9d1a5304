//go:build darwin

package tools

import (
	"fmt"
	"os"
	"os/exec"
)

// seatbeltSandbox runs commands under sandbox-exec with writes limited to
// the working directory and temp dirs.
type seatbeltSandbox struct{}

func (seatbeltSandbox) Wrap(command string, dir string) (string, []string) {
	home, _ := os.UserHomeDir()
	return "sandbox-exec", []string{"-D", "HOME=" + home, "-p", seatbeltProfile(dir), "bash", "-c", command}
}

func (seatbeltSandbox) Available() bool {
	_, err := exec.LookPath("sandbox-exec")
	return err == nil
}

func (seatbeltSandbox) Name() string { return "seatbelt" }

func seatbeltProfile(dir string) string {
	return fmt.Sprintf(`(version 1)
(deny default)
(allow process-exec)
(allow process-fork)
(allow sysctl-read)
(allow signal)
(allow mach-lookup)
(allow system-socket)
(allow file-read*)
(allow file-write* (subpath %q))
(allow file-write* (subpath "/tmp"))
(allow file-write* (subpath "/private/tmp"))
(allow file-write* (subpath "/private/var/folders"))
(deny file-read* (subpath (string-append (param "HOME") "/.ssh")))
(deny file-read* (subpath (string-append (param "HOME") "/.aws")))
`, dir)
}

func init() {
	registerPlatformSandbox(seatbeltSandbox{})
}
