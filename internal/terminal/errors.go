package terminal

import "errors"

// ErrProcClosed indicates the process can no longer accept input.
var ErrProcClosed = errors.New("terminal process closed")

// ProcClosedReason describes why a terminal stopped accepting input.
type ProcClosedReason int32

const (
	ProcClosedUnknown ProcClosedReason = iota
	ProcClosedProcessExited
	ProcClosedPTYClosed
	ProcClosedShutdown
)

// ProcClosedError reports a closed-process condition without exposing
// low-level I/O details.
type ProcClosedError struct {
	Reason ProcClosedReason
	Cause  error
}

func (e *ProcClosedError) Error() string {
	switch e.Reason {
	case ProcClosedProcessExited:
		return "terminal process closed (process exited)"
	case ProcClosedPTYClosed:
		return "terminal process closed (pty disconnected)"
	default:
		return "terminal process closed"
	}
}

func (e *ProcClosedError) Unwrap() error { return e.Cause }

func (e *ProcClosedError) Is(target error) bool { return target == ErrProcClosed }
