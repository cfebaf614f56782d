//go:build windows

package workspace

import "os/exec"

// setProcAttr is a no-op on Windows; process groups work differently
// and exec.CommandContext kills the direct child on cancellation.
func setProcAttr(cmd *exec.Cmd) {}

// killProcessGroup is a no-op on Windows.
func killProcessGroup(pid int) error {
	return nil
}
