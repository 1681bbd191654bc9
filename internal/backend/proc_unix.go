//go:build !windows

package backend

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the backend in its own process group so a timeout
// kill reaches its whole process tree, not just the direct child.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessTree signals the backend's process group. ESRCH means the group
// is already gone, which is not an error here.
func killProcessTree(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if err == syscall.ESRCH {
		return nil
	}
	return err
}
