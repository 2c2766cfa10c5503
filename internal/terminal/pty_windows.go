//go:build windows

package terminal

import (
	"os"
	"os/exec"
)

func setupPTYCommand(_ *exec.Cmd) {}

func signalProcess(cmd *exec.Cmd, sig os.Signal) error {
	return cmd.Process.Signal(sig)
}

func setPTYSlaveWinsizeBestEffort(_ any, _, _ int) {}

func signalWINCH(_ int) {}
