package terminal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
)

// Write sends raw bytes to the PTY input side.
func (p *Proc) Write(input []byte) error {
	if p == nil {
		return errors.New("terminal: nil proc")
	}
	if len(input) == 0 {
		return nil
	}
	if p.closed.Load() {
		return &ProcClosedError{Reason: ProcClosedShutdown}
	}
	if p.exited.Load() {
		return &ProcClosedError{Reason: ProcClosedProcessExited}
	}
	if p.inputClosed.Load() {
		return &ProcClosedError{Reason: ProcClosedPTYClosed}
	}
	p.ptyMu.Lock()
	pty := p.pty
	p.ptyMu.Unlock()
	if pty == nil {
		return &ProcClosedError{Reason: ProcClosedPTYClosed}
	}

	p.writeMu.Lock()
	n, err := pty.Write(input)
	p.writeMu.Unlock()
	if err != nil {
		if isPTYClosedWriteError(err) {
			p.inputClosed.Store(true)
			return &ProcClosedError{Reason: ProcClosedPTYClosed, Cause: err}
		}
		return fmt.Errorf("terminal: pty write: %w", err)
	}
	if n != len(input) {
		return fmt.Errorf("terminal: partial write: wrote %d of %d", n, len(input))
	}
	return nil
}

func isPTYClosedWriteError(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, syscall.EIO):
		return true
	case errors.Is(err, syscall.EPIPE):
		return true
	case errors.Is(err, syscall.EBADF):
		return true
	case errors.Is(err, os.ErrClosed):
		return true
	case errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}
