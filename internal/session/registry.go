// Package session manages PTY-backed shell sessions for Agent Station
// projects: creation, enumeration, output fan-out to attached UI panes,
// geometry synchronization, and teardown.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	shellquote "github.com/kballard/go-shellquote"

	"github.com/northslopetech/agent-station/internal/limits"
	"github.com/northslopetech/agent-station/internal/terminal"
)

// ctrlC is written to the PTY on explicit close so an agent process gets a
// chance to interrupt cleanly before the PTY goes away.
var ctrlC = []byte{0x03}

// closeGrace bounds how long an explicit close waits for the process to act
// on the interrupt/terminate before it is hard-killed with the PTY teardown.
const closeGrace = 2 * time.Second

// EventType identifies registry lifecycle events.
type EventType uint8

const (
	EventCreated EventType = iota + 1
	EventExited
	EventClosed
)

// Event signals a session lifecycle change to the registry's consumer.
type Event struct {
	Type       EventType
	SessionID  string
	ProjectID  string
	ExitStatus int
}

// Options configures a Registry.
type Options struct {
	// DisplayName resolves the persisted cosmetic name for a project's
	// session slot; return "" to use the default ordinal name.
	DisplayName func(projectID string, slot int) string

	// Command overrides the spawned shell (used by tests and agent
	// profiles); empty means the user's login shell.
	Command string

	// Env is appended to every session's environment.
	Env []string
}

// Registry is the single source of truth for live sessions across all
// projects and the only component that constructs terminal processes.
type Registry struct {
	opts Options

	mu       sync.RWMutex
	sessions map[string]*Session
	slots    map[string]int // projectID -> sessions ever created

	events chan Event
	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:     opts,
		sessions: make(map[string]*Session),
		slots:    make(map[string]int),
		events:   make(chan Event, 128),
	}
}

// Events returns lifecycle events. Delivery is best-effort (non-blocking
// sends); consumers that need complete state use List.
func (r *Registry) Events() <-chan Event {
	if r == nil {
		return nil
	}
	return r.events
}

// Create spawns a shell bound to a fresh PTY rooted at workingDirectory and
// registers the session. A spawn failure is returned as *SpawnError and
// leaves the registry untouched.
func (r *Registry) Create(ctx context.Context, projectID, workingDirectory string) (Descriptor, error) {
	if r == nil {
		return Descriptor{}, errors.New("session: registry is nil")
	}
	if r.closed.Load() {
		return Descriptor{}, errors.New("session: registry is closed")
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return Descriptor{}, errors.New("session: project id is required")
	}
	if err := checkContext(ctx); err != nil {
		return Descriptor{}, err
	}
	dir := strings.TrimSpace(workingDirectory)
	if err := validatePath(dir); err != nil {
		return Descriptor{}, &SpawnError{ProjectID: projectID, Dir: dir, Cause: err}
	}

	id := uuid.NewString()
	f := newFeed()

	cmdName, args, err := splitCommand(r.opts.Command)
	if err != nil {
		return Descriptor{}, &SpawnError{ProjectID: projectID, Dir: dir, Cause: err}
	}

	env := append([]string(nil), r.opts.Env...)
	env = append(env, "CLAUDE_CODE_TASK_LIST_ID="+projectID)

	proc, err := terminal.Start(terminal.Options{
		ID:      id,
		Command: cmdName,
		Args:    args,
		Dir:     dir,
		Env:     env,
		OnChunk: f.publish,
	})
	if err != nil {
		return Descriptor{}, &SpawnError{ProjectID: projectID, Dir: dir, Cause: err}
	}

	r.mu.Lock()
	if r.closed.Load() {
		r.mu.Unlock()
		_ = proc.Close()
		return Descriptor{}, errors.New("session: registry is closed")
	}
	slot := r.slots[projectID] + 1
	r.slots[projectID] = slot
	s := &Session{
		id:          id,
		projectID:   projectID,
		slot:        slot,
		createdAt:   time.Now(),
		proc:        proc,
		feed:        f,
		displayName: r.displayNameFor(projectID, slot),
		state:       StateRunning,
	}
	r.sessions[id] = s
	r.mu.Unlock()

	r.wg.Add(1)
	go r.watchExit(s)

	r.notify(Event{Type: EventCreated, SessionID: id, ProjectID: projectID})
	slog.Debug("session: created",
		slog.String("session_id", id),
		slog.String("project_id", projectID),
		slog.Int("pid", proc.PID()),
	)
	return s.descriptor(), nil
}

func (r *Registry) displayNameFor(projectID string, slot int) string {
	if r.opts.DisplayName != nil {
		if name := strings.TrimSpace(r.opts.DisplayName(projectID, slot)); name != "" {
			return name
		}
	}
	return fmt.Sprintf("Agent %d", slot)
}

// List returns descriptors, optionally filtered by project. A just-exited
// session still appears until its exit has been observed by the registry.
func (r *Registry) List(projectID string) []Descriptor {
	if r == nil {
		return nil
	}
	projectID = strings.TrimSpace(projectID)
	r.mu.RLock()
	out := make([]Descriptor, 0, len(r.sessions))
	for _, s := range r.sessions {
		if projectID != "" && s.projectID != projectID {
			continue
		}
		out = append(out, s.descriptor())
	}
	r.mu.RUnlock()
	sortDescriptors(out)
	return out
}

// Get returns the descriptor for one session.
func (r *Registry) Get(sessionID string) (Descriptor, error) {
	s := r.lookup(sessionID)
	if s == nil {
		return Descriptor{}, ErrUnknownSession
	}
	return s.descriptor(), nil
}

// Write forwards raw bytes to the session's PTY input. A write against a
// broken pipe marks the session exited and returns the terminal error.
func (r *Registry) Write(sessionID string, data []byte) error {
	s := r.lookup(sessionID)
	if s == nil {
		return ErrUnknownSession
	}
	err := s.proc.Write(data)
	if err != nil && errors.Is(err, terminal.ErrProcClosed) {
		// Broken pipe under a live write is an implicit exit signal.
		r.finalize(s, StateExited)
		return err
	}
	return err
}

// Resize applies new PTY dimensions. Only the latest dimensions matter;
// resizing a dead-but-listed session is dropped silently. Dimensions are
// clamped to sane bounds so a misbehaving client cannot request absurd
// geometry.
func (r *Registry) Resize(sessionID string, cols, rows int) error {
	s := r.lookup(sessionID)
	if s == nil {
		return ErrUnknownSession
	}
	cols, rows = limits.Clamp(cols, rows)
	s.proc.Resize(cols, rows)
	return nil
}

// Geometry returns the last applied dimensions for a session.
func (r *Registry) Geometry(sessionID string) (cols, rows int, err error) {
	s := r.lookup(sessionID)
	if s == nil {
		return 0, 0, ErrUnknownSession
	}
	cols, rows = s.proc.Geometry()
	return cols, rows, nil
}

// Attach subscribes a consumer to the session's output from this moment
// forward; there is no history replay. Attaching to a dead session fails
// with ErrUnknownSession.
func (r *Registry) Attach(sessionID string, buffer int) (*Subscription, error) {
	s := r.lookup(sessionID)
	if s == nil {
		return nil, ErrUnknownSession
	}
	return s.feed.subscribe(buffer)
}

// Rename updates a session's cosmetic display name and returns the updated
// descriptor so callers can persist the name by slot.
func (r *Registry) Rename(sessionID, displayName string) (Descriptor, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return Descriptor{}, errors.New("session: display name is required")
	}
	s := r.lookup(sessionID)
	if s == nil {
		return Descriptor{}, ErrUnknownSession
	}
	s.mu.Lock()
	s.displayName = displayName
	s.mu.Unlock()
	return s.descriptor(), nil
}

// Close terminates a session: interrupt, terminate, then kill. Closing an
// already-closed, already-exited, or unknown session is a no-op.
func (r *Registry) Close(sessionID string) error {
	s := r.lookup(sessionID)
	if s == nil {
		return nil
	}
	s.requestClose()
	// Interrupt first so the foreground process can act on it, then ask the
	// whole group to terminate. The PTY stays open through the grace window
	// so a trap handler's final output still reaches subscribers.
	_ = s.proc.Write(ctrlC)
	_ = s.proc.Signal(syscall.SIGTERM)
	select {
	case <-s.proc.Done():
	case <-time.After(closeGrace):
	}
	r.finalize(s, StateClosed)
	return nil
}

// Shutdown closes every session and stops the registry.
func (r *Registry) Shutdown() {
	if r == nil || r.closed.Swap(true) {
		return
	}
	r.mu.RLock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()
	for _, s := range all {
		s.requestClose()
		r.finalize(s, StateClosed)
	}
	r.wg.Wait()
	close(r.events)
}

func (r *Registry) lookup(sessionID string) *Session {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[strings.TrimSpace(sessionID)]
}

// watchExit observes the process ending on its own (including external
// kills) and finalizes the session exactly once.
func (r *Registry) watchExit(s *Session) {
	defer r.wg.Done()
	<-s.proc.Done()
	state := StateExited
	if s.closeWasRequested() {
		state = StateClosed
	}
	r.finalize(s, state)
}

// finalize retires a session: exactly one exit notification on the feed,
// exactly one resource release, removal from the table. The id is never
// reused. Safe to call from multiple paths; the first caller wins.
func (r *Registry) finalize(s *Session, state State) {
	if !s.markFinal(state) {
		return
	}
	_ = s.proc.Close()
	status := s.proc.ExitStatus()
	s.feed.finish(state, status)

	r.mu.Lock()
	delete(r.sessions, s.id)
	r.mu.Unlock()

	evType := EventExited
	if state == StateClosed {
		evType = EventClosed
	}
	r.notify(Event{Type: evType, SessionID: s.id, ProjectID: s.projectID, ExitStatus: status})
	slog.Debug("session: retired",
		slog.String("session_id", s.id),
		slog.String("state", state.String()),
		slog.Int("exit_status", status),
	)
}

func (r *Registry) notify(ev Event) {
	if r == nil || r.closed.Load() {
		return
	}
	select {
	case r.events <- ev:
	default:
	}
}

func checkContext(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func validatePath(path string) error {
	if path == "" {
		return errors.New("working directory is required")
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("working directory %q is not absolute", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("working directory %q is not a directory", path)
	}
	return nil
}

func splitCommand(command string) (string, []string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", nil, nil
	}
	parts, err := shellquote.Split(command)
	if err != nil {
		return "", nil, fmt.Errorf("parse command %q: %w", command, err)
	}
	if len(parts) == 0 {
		return "", nil, nil
	}
	return parts[0], parts[1:], nil
}

func sortDescriptors(ds []Descriptor) {
	sort.SliceStable(ds, func(i, j int) bool {
		if !ds[i].CreatedAt.Equal(ds[j].CreatedAt) {
			return ds[i].CreatedAt.Before(ds[j].CreatedAt)
		}
		return ds[i].ID < ds[j].ID
	})
}
