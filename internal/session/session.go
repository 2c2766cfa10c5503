package session

import (
	"sync"
	"time"

	"github.com/northslopetech/agent-station/internal/terminal"
)

// State is the session lifecycle state.
// Starting -> Running -> (Exited | Closed); both terminal states are final.
type State uint8

const (
	StateStarting State = iota + 1
	StateRunning
	StateExited
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool { return s == StateExited || s == StateClosed }

// Descriptor is the registry's public view of a session.
type Descriptor struct {
	ID          string
	ProjectID   string
	DisplayName string
	Slot        int
	PID         int
	Running     bool
	CreatedAt   time.Time
}

// Session wraps one terminal process, its output feed, and lifecycle state.
// The PTY handle is owned exclusively by the session and released exactly
// once when the session reaches a terminal state.
type Session struct {
	id        string
	projectID string
	slot      int
	createdAt time.Time

	proc *terminal.Proc
	feed *feed

	mu          sync.Mutex
	displayName string
	state       State

	closeRequested bool
	finalized      bool
}

func (s *Session) ID() string        { return s.id }
func (s *Session) ProjectID() string { return s.projectID }
func (s *Session) Slot() int         { return s.slot }

func (s *Session) DisplayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayName
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Running reports whether the session's process is still alive.
func (s *Session) Running() bool {
	return s.State() == StateRunning
}

func (s *Session) descriptor() Descriptor {
	s.mu.Lock()
	state := s.state
	name := s.displayName
	s.mu.Unlock()
	return Descriptor{
		ID:          s.id,
		ProjectID:   s.projectID,
		DisplayName: name,
		Slot:        s.slot,
		PID:         s.proc.PID(),
		Running:     state == StateRunning,
		CreatedAt:   s.createdAt,
	}
}

// markFinal flips the session into a terminal state. Returns false if the
// session was already final; the first caller wins and owns the exit
// notification and resource release.
func (s *Session) markFinal(state State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return false
	}
	s.finalized = true
	s.state = state
	return true
}

func (s *Session) requestClose() {
	s.mu.Lock()
	s.closeRequested = true
	s.mu.Unlock()
}

func (s *Session) closeWasRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeRequested
}
