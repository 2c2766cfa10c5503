package terminal

import (
	"errors"
	"io"
	"os"
	"syscall"
	"testing"
)

func TestProcClosedErrorMessages(t *testing.T) {
	cases := []struct {
		reason ProcClosedReason
		want   string
	}{
		{ProcClosedUnknown, "terminal process closed"},
		{ProcClosedProcessExited, "terminal process closed (process exited)"},
		{ProcClosedPTYClosed, "terminal process closed (pty disconnected)"},
		{ProcClosedShutdown, "terminal process closed"},
	}
	for _, tc := range cases {
		err := &ProcClosedError{Reason: tc.reason}
		if err.Error() != tc.want {
			t.Fatalf("reason %v error=%q want %q", tc.reason, err.Error(), tc.want)
		}
		if !errors.Is(err, ErrProcClosed) {
			t.Fatalf("reason %v should match ErrProcClosed", tc.reason)
		}
	}
}

func TestProcClosedErrorUnwrapsCause(t *testing.T) {
	err := &ProcClosedError{Reason: ProcClosedPTYClosed, Cause: io.EOF}
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected unwrap cause")
	}
}

func TestIsPTYClosedWriteError(t *testing.T) {
	cases := []error{
		syscall.EIO,
		syscall.EPIPE,
		syscall.EBADF,
		os.ErrClosed,
		io.ErrClosedPipe,
	}
	for _, err := range cases {
		if !isPTYClosedWriteError(err) {
			t.Fatalf("expected true for %v", err)
		}
	}
	if isPTYClosedWriteError(errors.New("other")) {
		t.Fatalf("expected false for other error")
	}
	if isPTYClosedWriteError(nil) {
		t.Fatalf("expected false for nil")
	}
}
