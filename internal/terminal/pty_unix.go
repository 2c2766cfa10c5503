//go:build unix

package terminal

import (
	"os"
	"os/exec"
	"syscall"
)

// setupPTYCommand configures the command to use the PTY as controlling
// terminal. Required for job control and for shells like fish.
func setupPTYCommand(cmd *exec.Cmd) {
	// Ctty is the FD number in the child process (0 = stdin).
	// xpty.Start() sets stdin to the PTY slave.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
		Ctty:    0,
	}
}

// signalProcess targets the child's process group. The child leads its own
// group (Setsid above), so the negative pid covers anything it spawned.
func signalProcess(cmd *exec.Cmd, sig os.Signal) error {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return cmd.Process.Signal(sig)
	}
	if err := syscall.Kill(-cmd.Process.Pid, s); err != nil {
		return cmd.Process.Signal(sig)
	}
	return nil
}
