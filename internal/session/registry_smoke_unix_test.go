//go:build unix

package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, what string, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newCatRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(Options{Command: "cat"})
	t.Cleanup(r.Shutdown)
	return r
}

func mustCreate(t *testing.T, r *Registry, projectID string) Descriptor {
	t.Helper()
	desc, err := r.Create(context.Background(), projectID, t.TempDir())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	return desc
}

func TestCreateAssignsSlotsAndNames(t *testing.T) {
	r := newCatRegistry(t)
	a := mustCreate(t, r, "p1")
	b := mustCreate(t, r, "p1")
	c := mustCreate(t, r, "p2")

	if a.Slot != 1 || b.Slot != 2 || c.Slot != 1 {
		t.Fatalf("slots = %d %d %d, want 1 2 1", a.Slot, b.Slot, c.Slot)
	}
	if a.DisplayName != "Agent 1" || b.DisplayName != "Agent 2" {
		t.Fatalf("names = %q %q", a.DisplayName, b.DisplayName)
	}
	if a.ID == b.ID {
		t.Fatalf("ids must be unique")
	}
	if !a.Running || a.PID == 0 {
		t.Fatalf("descriptor = %+v, want running with pid", a)
	}

	p1 := r.List("p1")
	if len(p1) != 2 || p1[0].ID != a.ID || p1[1].ID != b.ID {
		t.Fatalf("List(p1) = %+v, want a then b", p1)
	}
	if got := len(r.List("")); got != 3 {
		t.Fatalf("List(all) len=%d want 3", got)
	}
	if got := len(r.List("p3")); got != 0 {
		t.Fatalf("List(p3) len=%d want 0", got)
	}
}

func TestDisplayNameResolverWins(t *testing.T) {
	r := NewRegistry(Options{
		Command: "cat",
		DisplayName: func(projectID string, slot int) string {
			if slot == 1 {
				return "Build Agent"
			}
			return ""
		},
	})
	t.Cleanup(r.Shutdown)

	a := mustCreate(t, r, "p1")
	b := mustCreate(t, r, "p1")
	if a.DisplayName != "Build Agent" {
		t.Fatalf("resolver name = %q", a.DisplayName)
	}
	if b.DisplayName != "Agent 2" {
		t.Fatalf("fallback name = %q", b.DisplayName)
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	r := newCatRegistry(t)
	if _, err := r.Create(context.Background(), "", t.TempDir()); err == nil {
		t.Fatalf("Create() should require a project id")
	}
	var se *SpawnError
	if _, err := r.Create(context.Background(), "p1", "relative/dir"); !errors.As(err, &se) {
		t.Fatalf("Create() with relative dir = %v, want *SpawnError", err)
	}
	if _, err := r.Create(context.Background(), "p1", "/does/not/exist"); !errors.As(err, &se) {
		t.Fatalf("Create() with missing dir = %v, want *SpawnError", err)
	}
}

func TestWriteRoundTripThroughAttachment(t *testing.T) {
	r := newCatRegistry(t)
	desc := mustCreate(t, r, "p1")

	sub, err := r.Attach(desc.ID, 64)
	if err != nil {
		t.Fatalf("Attach() error: %v", err)
	}
	defer sub.Cancel()

	if err := r.Write(desc.ID, []byte("ping\n")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	var got strings.Builder
	waitFor(t, 4*time.Second, "echoed chunk", func() bool {
		for {
			select {
			case ev := <-sub.Events():
				if ev.Kind == StreamOutput {
					got.Write(ev.Data)
				}
			default:
				return strings.Contains(got.String(), "ping")
			}
		}
	})
}

func TestSessionsAreIsolated(t *testing.T) {
	r := newCatRegistry(t)
	a := mustCreate(t, r, "p1")
	b := mustCreate(t, r, "p1")

	subA, err := r.Attach(a.ID, 64)
	if err != nil {
		t.Fatalf("Attach(a) error: %v", err)
	}
	defer subA.Cancel()
	subB, err := r.Attach(b.ID, 64)
	if err != nil {
		t.Fatalf("Attach(b) error: %v", err)
	}
	defer subB.Cancel()

	if err := r.Write(a.ID, []byte("only-a\n")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	waitFor(t, 4*time.Second, "output on a", func() bool {
		select {
		case ev := <-subA.Events():
			return ev.Kind == StreamOutput && strings.Contains(string(ev.Data), "only-a")
		default:
			return false
		}
	})
	select {
	case ev := <-subB.Events():
		t.Fatalf("subscriber b should see nothing, got %v %q", ev.Kind, ev.Data)
	default:
	}
}

func TestWriteUnknownSession(t *testing.T) {
	r := newCatRegistry(t)
	if err := r.Write("nope", []byte("x")); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("Write(unknown) = %v, want ErrUnknownSession", err)
	}
	if _, err := r.Get("nope"); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("Get(unknown) = %v, want ErrUnknownSession", err)
	}
	if _, _, err := r.Geometry("nope"); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("Geometry(unknown) = %v, want ErrUnknownSession", err)
	}
}

func TestResizeLastWins(t *testing.T) {
	r := newCatRegistry(t)
	desc := mustCreate(t, r, "p1")

	if err := r.Resize(desc.ID, 100, 30); err != nil {
		t.Fatalf("Resize() error: %v", err)
	}
	if err := r.Resize(desc.ID, 141, 52); err != nil {
		t.Fatalf("Resize() error: %v", err)
	}
	cols, rows, err := r.Geometry(desc.ID)
	if err != nil {
		t.Fatalf("Geometry() error: %v", err)
	}
	if cols != 141 || rows != 52 {
		t.Fatalf("Geometry()=%dx%d want 141x52", cols, rows)
	}
	if err := r.Resize("nope", 10, 10); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("Resize(unknown) = %v, want ErrUnknownSession", err)
	}
}

func TestCloseRetiresSession(t *testing.T) {
	r := newCatRegistry(t)
	desc := mustCreate(t, r, "p1")

	sub, err := r.Attach(desc.ID, 64)
	if err != nil {
		t.Fatalf("Attach() error: %v", err)
	}

	if err := r.Close(desc.ID); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := r.Close(desc.ID); err != nil {
		t.Fatalf("Close() again should be a no-op: %v", err)
	}
	if err := r.Close("never-existed"); err != nil {
		t.Fatalf("Close(unknown) should be a no-op: %v", err)
	}

	exits := 0
	for ev := range sub.Events() {
		if ev.Kind == StreamExit {
			exits++
			if ev.State != StateClosed {
				t.Fatalf("exit state = %v, want StateClosed", ev.State)
			}
		}
	}
	if exits != 1 {
		t.Fatalf("exit events = %d, want exactly 1", exits)
	}

	if err := r.Write(desc.ID, []byte("late")); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("Write() after close = %v, want ErrUnknownSession", err)
	}
	if got := len(r.List("p1")); got != 0 {
		t.Fatalf("List() after close len=%d want 0", got)
	}
	if _, err := r.Attach(desc.ID, 64); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("Attach() after close = %v, want ErrUnknownSession", err)
	}
}

func TestCloseLetsTrapHandlersRun(t *testing.T) {
	r := NewRegistry(Options{
		Command: `sh -c "trap 'echo TRAPPED; exit 0' TERM INT; while :; do sleep 0.05; done"`,
	})
	t.Cleanup(r.Shutdown)

	desc, err := r.Create(context.Background(), "p1", t.TempDir())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	sub, err := r.Attach(desc.ID, 64)
	if err != nil {
		t.Fatalf("Attach() error: %v", err)
	}

	if err := r.Close(desc.ID); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	var out strings.Builder
	var exit StreamEvent
	exits := 0
	for ev := range sub.Events() {
		switch ev.Kind {
		case StreamOutput:
			out.Write(ev.Data)
		case StreamExit:
			exits++
			exit = ev
		}
	}
	if exits != 1 {
		t.Fatalf("exit events = %d, want exactly 1", exits)
	}
	if exit.State != StateClosed || exit.ExitStatus != 0 {
		t.Fatalf("exit = %+v, want StateClosed status 0 from the trap handler", exit)
	}
	if !strings.Contains(out.String(), "TRAPPED") {
		t.Fatalf("output %q should include the trap handler's farewell", out.String())
	}
}

func TestExternalExitObserved(t *testing.T) {
	r := NewRegistry(Options{Command: `sh -c "sleep 0.3; exit 5"`})
	t.Cleanup(r.Shutdown)

	desc, err := r.Create(context.Background(), "p1", t.TempDir())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	sub, err := r.Attach(desc.ID, 64)
	if err != nil {
		t.Fatalf("Attach() error: %v", err)
	}

	var exit StreamEvent
	exits := 0
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				if exits != 1 {
					t.Fatalf("exit events = %d, want exactly 1", exits)
				}
				if exit.State != StateExited || exit.ExitStatus != 5 {
					t.Fatalf("exit = %+v, want StateExited status 5", exit)
				}
				waitFor(t, 2*time.Second, "session removed", func() bool {
					return len(r.List("p1")) == 0
				})
				return
			}
			if ev.Kind == StreamExit {
				exits++
				exit = ev
			}
		case <-deadline:
			t.Fatalf("no exit event observed")
		}
	}
}

func TestRenameUpdatesDescriptor(t *testing.T) {
	r := newCatRegistry(t)
	desc := mustCreate(t, r, "p1")

	got, err := r.Rename(desc.ID, "  Review Agent  ")
	if err != nil {
		t.Fatalf("Rename() error: %v", err)
	}
	if got.DisplayName != "Review Agent" {
		t.Fatalf("Rename() name = %q", got.DisplayName)
	}
	if got.Slot != desc.Slot || got.ProjectID != desc.ProjectID {
		t.Fatalf("Rename() should keep identity, got %+v", got)
	}
	if _, err := r.Rename(desc.ID, "   "); err == nil {
		t.Fatalf("Rename() should reject blank names")
	}
	if _, err := r.Rename("nope", "x"); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("Rename(unknown) = %v, want ErrUnknownSession", err)
	}
}

func TestRegistryEvents(t *testing.T) {
	r := newCatRegistry(t)
	desc := mustCreate(t, r, "p1")

	ev := <-r.Events()
	if ev.Type != EventCreated || ev.SessionID != desc.ID || ev.ProjectID != "p1" {
		t.Fatalf("first event = %+v, want created", ev)
	}

	if err := r.Close(desc.ID); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	select {
	case ev = <-r.Events():
	case <-time.After(2 * time.Second):
		t.Fatalf("no close event")
	}
	if ev.Type != EventClosed || ev.SessionID != desc.ID {
		t.Fatalf("second event = %+v, want closed", ev)
	}
}

func TestShutdownClosesEverything(t *testing.T) {
	r := NewRegistry(Options{Command: "cat"})
	mustCreate(t, r, "p1")
	mustCreate(t, r, "p2")

	r.Shutdown()
	r.Shutdown() // idempotent

	if _, err := r.Create(context.Background(), "p1", t.TempDir()); err == nil {
		t.Fatalf("Create() after shutdown should fail")
	}
	// Events channel is closed once all sessions are retired.
	for range r.Events() {
	}
}
