//go:build windows

package backend

import "os/exec"

// setProcessGroup is a no-op on Windows; only the direct child is killed.
func setProcessGroup(cmd *exec.Cmd) {}

// killProcessTree kills the direct backend process
func killProcessTree(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
