package stationd

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/northslopetech/agent-station/internal/session"
)

// ErrorCode classifies request failures across the wire so clients can make
// decisions without parsing error strings.
type ErrorCode string

const (
	CodeNone            ErrorCode = ""
	CodeUnknownSession  ErrorCode = "unknown_session"
	CodeSpawnFailed     ErrorCode = "spawn_failed"
	CodeInvalidRequest  ErrorCode = "invalid_request"
	CodeVersionMismatch ErrorCode = "version_mismatch"
	CodeInternal        ErrorCode = "internal"
)

var (
	// ErrClientClosed is returned by client calls after Close.
	ErrClientClosed = errors.New("stationd: client closed")

	// ErrVersionMismatch is returned by Dial when the daemon speaks an
	// incompatible protocol version.
	ErrVersionMismatch = errors.New("stationd: daemon version mismatch")
)

// RequestError is a failure reported by the daemon for a single request.
type RequestError struct {
	Op      Op
	Code    ErrorCode
	Message string
}

func (e *RequestError) Error() string {
	if e == nil {
		return "stationd: request error"
	}
	return fmt.Sprintf("stationd: %s: %s", e.Op, e.Message)
}

// Is maps wire error codes back onto the local error taxonomy, so callers
// can keep using errors.Is(err, session.ErrUnknownSession) against remote
// failures.
func (e *RequestError) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case session.ErrUnknownSession:
		return e.Code == CodeUnknownSession
	case ErrVersionMismatch:
		return e.Code == CodeVersionMismatch
	}
	return false
}

func codeForError(err error) ErrorCode {
	switch {
	case err == nil:
		return CodeNone
	case errors.Is(err, session.ErrUnknownSession):
		return CodeUnknownSession
	default:
		var se *session.SpawnError
		if errors.As(err, &se) {
			return CodeSpawnFailed
		}
		return CodeInternal
	}
}

// IsConnectionError reports whether err indicates the peer went away rather
// than a request-level failure.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "connection reset by peer")
}
