//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// detachProcess places the engine in its own session so it survives the
// terminal and process group of the invocation that launched it.
func detachProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
