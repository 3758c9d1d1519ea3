//go:build darwin
// +build darwin

package audioslicer

import (
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup puts ffmpeg in its own process group so
// killProcessTree can take down any children it spawns too.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessTree sends SIGKILL to the entire process group on macOS.
func killProcessTree(p *os.Process) error {
	return syscall.Kill(-p.Pid, syscall.SIGKILL)
}
