package pipeline

import (
	"os/exec"
	"syscall"
)

// setupProcessGroup puts the command in its own process group so a
// cancel can take down ffmpeg together with anything it forked.
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup signals the command's whole process group, falling
// back to the single process when the group signal is refused.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		_ = cmd.Process.Kill()
	}
}
