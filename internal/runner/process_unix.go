//go:build !windows

package runner

import (
	"os/exec"
	"syscall"
)

// configureDetached puts the child in its own process group so it
// survives the manager's exit and can be signaled independently.
func configureDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
