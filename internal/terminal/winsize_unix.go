//go:build unix

package terminal

import (
	"context"
	"log/slog"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/northslopetech/agent-station/internal/logging"
)

var ioctlSetWinsize = func(fd int, cols, rows int) error {
	return unix.IoctlSetWinsize(fd, unix.TIOCSWINSZ, &unix.Winsize{
		Row: uint16(rows), //nolint:gosec
		Col: uint16(cols), //nolint:gosec
	})
}

// setPTYSlaveWinsizeBestEffort also applies the winsize on the slave fd.
// Some platforms only propagate the master-side ioctl lazily; full-screen
// programs read the slave size immediately after SIGWINCH.
func setPTYSlaveWinsizeBestEffort(pty any, cols, rows int) {
	if cols <= 0 || rows <= 0 || pty == nil {
		return
	}
	slave, ok := pty.(interface{ Slave() *os.File })
	if !ok {
		return
	}
	f := slave.Slave()
	if f == nil {
		return
	}
	if err := ioctlSetWinsize(int(f.Fd()), cols, rows); err != nil {
		logging.LogEvery(
			context.Background(),
			"terminal.pty.resize.slave",
			2*time.Second,
			slog.LevelDebug,
			"terminal: pty slave winsize set failed",
			slog.Any("err", err),
			slog.Int("cols", cols),
			slog.Int("rows", rows),
		)
	}
}

func signalWINCH(pid int) {
	if pid <= 0 {
		return
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	_ = proc.Signal(syscall.SIGWINCH)
}
