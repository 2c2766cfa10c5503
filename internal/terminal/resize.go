package terminal

import (
	"context"
	"log/slog"
	"time"

	"github.com/northslopetech/agent-station/internal/logging"
)

// Resize applies new PTY dimensions. Best-effort: a dead or closed proc
// silently ignores the call since there is nothing left to resize. Repeated
// calls with the current dimensions are no-ops.
func (p *Proc) Resize(cols, rows int) {
	if p == nil || cols <= 0 || rows <= 0 {
		return
	}
	if p.closed.Load() || p.exited.Load() {
		return
	}

	p.resizeMu.Lock()
	if cols == p.cols && rows == p.rows {
		p.resizeMu.Unlock()
		return
	}
	p.cols, p.rows = cols, rows
	p.resizeMu.Unlock()

	p.ptyMu.Lock()
	pty := p.pty
	p.ptyMu.Unlock()
	if pty == nil {
		return
	}
	if err := pty.Resize(cols, rows); err != nil {
		logging.LogEvery(
			context.Background(),
			"terminal.pty.resize",
			2*time.Second,
			slog.LevelDebug,
			"terminal: pty resize failed",
			slog.Any("err", err),
			slog.Int("cols", cols),
			slog.Int("rows", rows),
		)
		return
	}
	setPTYSlaveWinsizeBestEffort(pty, cols, rows)
	signalWINCH(p.PID())
}
