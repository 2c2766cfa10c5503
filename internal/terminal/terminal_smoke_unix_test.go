//go:build unix

package terminal

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"
)

type chunkLog struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *chunkLog) add(data []byte) {
	c.mu.Lock()
	c.buf.Write(data)
	c.mu.Unlock()
}

func (c *chunkLog) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

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

func startCat(t *testing.T, log *chunkLog) *Proc {
	t.Helper()
	p, err := Start(Options{
		ID:      "t-cat",
		Command: "cat",
		OnChunk: log.add,
	})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestProcStreamsOutput(t *testing.T) {
	log := &chunkLog{}
	p := startCat(t, log)

	if err := p.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	waitFor(t, 4*time.Second, "echoed output", func() bool {
		return strings.Contains(log.String(), "hello")
	})
}

func TestProcSignalReachesProcess(t *testing.T) {
	log := &chunkLog{}
	p := startCat(t, log)

	if err := p.Signal(syscall.SIGTERM); err != nil {
		t.Fatalf("Signal() error: %v", err)
	}
	select {
	case <-p.Done():
	case <-time.After(4 * time.Second):
		t.Fatalf("process should exit on SIGTERM")
	}
	if !p.Exited() {
		t.Fatalf("Exited() should be true after the signal")
	}
	if err := p.Signal(syscall.SIGTERM); !errors.Is(err, ErrProcClosed) {
		t.Fatalf("Signal() after exit = %v, want ErrProcClosed", err)
	}
}

func TestProcExitStatusAndDone(t *testing.T) {
	log := &chunkLog{}
	p, err := Start(Options{
		ID:      "t-exit",
		Command: "sh",
		Args:    []string{"-c", "printf ready; exit 3"},
		OnChunk: log.add,
	})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("Done() not closed after exit")
	}
	// Done closes only after the reader drained, so output is complete here.
	if !strings.Contains(log.String(), "ready") {
		t.Fatalf("output %q should contain pre-exit bytes", log.String())
	}
	if !p.Exited() {
		t.Fatalf("Exited() should be true")
	}
	if p.ExitStatus() != 3 {
		t.Fatalf("ExitStatus()=%d want 3", p.ExitStatus())
	}
}

func TestProcWriteAfterCloseFails(t *testing.T) {
	log := &chunkLog{}
	p := startCat(t, log)
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() should be idempotent: %v", err)
	}
	err := p.Write([]byte("late"))
	if !errors.Is(err, ErrProcClosed) {
		t.Fatalf("Write() after close = %v, want ErrProcClosed", err)
	}
}

func TestProcGeometryTracksResize(t *testing.T) {
	log := &chunkLog{}
	p := startCat(t, log)

	cols, rows := p.Geometry()
	if cols != 80 || rows != 24 {
		t.Fatalf("Geometry()=%dx%d want default 80x24", cols, rows)
	}

	p.Resize(120, 40)
	cols, rows = p.Geometry()
	if cols != 120 || rows != 40 {
		t.Fatalf("Geometry() after resize=%dx%d want 120x40", cols, rows)
	}

	// Same dimensions are a no-op; dead procs swallow resizes silently.
	p.Resize(120, 40)
	_ = p.Close()
	p.Resize(10, 10)
	cols, rows = p.Geometry()
	if cols != 120 || rows != 40 {
		t.Fatalf("Geometry() after dead resize=%dx%d want 120x40", cols, rows)
	}
}

func TestProcSetsTerminalEnv(t *testing.T) {
	log := &chunkLog{}
	p, err := Start(Options{
		ID:      "t-env",
		Command: "sh",
		Args:    []string{"-c", "printf '%s' \"$AGENT_STATION_TERMINAL_ID\""},
		OnChunk: log.add,
	})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("Done() not closed")
	}
	if !strings.Contains(log.String(), "t-env") {
		t.Fatalf("output %q should contain the terminal id", log.String())
	}
}
