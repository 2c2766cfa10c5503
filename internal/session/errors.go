package session

import (
	"errors"
	"fmt"
)

// ErrUnknownSession indicates an operation referenced a retired or
// nonexistent session id. Callers should drop their reference.
var ErrUnknownSession = errors.New("session: unknown session")

// SpawnError reports that the shell process could not be started. Fatal to
// the create call only, never to the registry.
type SpawnError struct {
	ProjectID string
	Dir       string
	Cause     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("session: spawn shell for project %q in %q: %v", e.ProjectID, e.Dir, e.Cause)
}

func (e *SpawnError) Unwrap() error { return e.Cause }
