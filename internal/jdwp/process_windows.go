//go:build windows

package jdwp

import (
	"os/exec"
)

// killProcessGroup kills a process on Windows.
// Windows doesn't have Unix-style process groups, so we kill the process
// directly. The child JVM owns any grandchildren it spawned.
func killProcessGroup(pid int, cmd *exec.Cmd) error {
	if cmd != nil && cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil {
			if err.Error() != "os: process already finished" {
				return err
			}
		}
	}
	return nil
}

// setProcAttr sets platform-specific process attributes.
// No-op on Windows.
func setProcAttr(cmd *exec.Cmd) {
}
