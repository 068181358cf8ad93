//go:build unix

package process

import (
	"os/exec"
	"syscall"
)

// configureProcess puts the engine in its own process group so a timeout
// kills anything it forked as well.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
