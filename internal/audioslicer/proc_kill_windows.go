//go:build windows
// +build windows

package audioslicer

import (
	"os"
	"os/exec"
)

// setProcessGroup is a no-op on Windows; there is no portable
// process-group equivalent wired up here.
func setProcessGroup(cmd *exec.Cmd) {}

// killProcessTree attempts to kill the process. Windows lacks a simple
// process group SIGKILL equivalent; callers may need a more robust tree kill.
func killProcessTree(p *os.Process) error {
	return p.Kill()
}
