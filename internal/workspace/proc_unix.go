//go:build !windows

package workspace

import (
	"os/exec"
	"syscall"
)

// setProcAttr configures the command to run in its own process group so
// the whole tree can be killed together.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup kills the process group rooted at pid.
func killProcessGroup(pid int) error {
	if pid <= 0 {
		return nil
	}
	return syscall.Kill(-pid, syscall.SIGKILL)
}
