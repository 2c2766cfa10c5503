// Package terminal runs a single shell process attached to a pseudo-terminal
// and streams its raw output to a caller-supplied sink.
package terminal

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	xpty "github.com/charmbracelet/x/xpty"
)

const readBufferSize = 32 * 1024

// Options describes how to start a terminal process.
type Options struct {
	ID string

	// Command is executed directly (no shell wrapping).
	// If empty, the user's login shell is used.
	Command string
	Args    []string
	Dir     string
	Env     []string

	Cols int
	Rows int

	// OnChunk receives every output chunk read from the PTY, in order.
	// Called from the reader goroutine; the slice is owned by the callee.
	OnChunk func(data []byte)
}

// Proc is one shell process bound to an exclusively owned PTY.
type Proc struct {
	id  string
	cmd *exec.Cmd
	pty xpty.Pty

	ptyMu   sync.Mutex // guards pty pointer swap during close
	writeMu sync.Mutex // serialize PTY writes

	resizeMu sync.Mutex
	cols     int
	rows     int

	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}

	closed      atomic.Bool
	exited      atomic.Bool
	inputClosed atomic.Bool
	exitStatus  atomic.Int64
}

// Start allocates a PTY, spawns the process, and begins reading output.
func Start(opts Options) (*Proc, error) {
	if strings.TrimSpace(opts.ID) == "" {
		return nil, fmt.Errorf("terminal: proc id is required")
	}

	cols := opts.Cols
	rows := opts.Rows
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}

	cmdName := strings.TrimSpace(opts.Command)
	args := opts.Args
	if cmdName == "" {
		cmdName = detectShell()
		// Login shell so the user's profile (PATH etc.) is loaded.
		args = []string{"-l"}
		if runtime.GOOS == "windows" {
			args = nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	// #nosec G204 - the command is user-controlled by design.
	cmd := exec.CommandContext(ctx, cmdName, args...)
	if strings.TrimSpace(opts.Dir) != "" {
		cmd.Dir = opts.Dir
	}

	env := append([]string{}, os.Environ()...)
	if len(opts.Env) > 0 {
		env = mergeEnv(env, opts.Env)
	}
	if !hasEnv(env, "TERM") {
		env = append(env, "TERM=xterm-256color")
	}
	if !hasEnv(env, "COLORTERM") {
		env = append(env, "COLORTERM=truecolor")
	}
	env = append(env, "AGENT_STATION_TERMINAL_ID="+opts.ID)
	cmd.Env = env

	setupPTYCommand(cmd)

	pty, err := xpty.NewPty(cols, rows)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("terminal: create pty: %w", err)
	}
	if err := pty.Start(cmd); err != nil {
		cancel()
		_ = pty.Close()
		return nil, fmt.Errorf("terminal: start process: %w", err)
	}
	_ = pty.Resize(cols, rows)

	p := &Proc{
		id:     opts.ID,
		cmd:    cmd,
		pty:    pty,
		cols:   cols,
		rows:   rows,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	p.wg.Add(2)
	go p.readLoop(opts.OnChunk)
	go p.waitExit(ctx)
	go func() {
		p.wg.Wait()
		close(p.done)
	}()

	return p, nil
}

func (p *Proc) ID() string { return p.id }

func (p *Proc) PID() int {
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *Proc) Exited() bool { return p.exited.Load() }

func (p *Proc) ExitStatus() int { return int(p.exitStatus.Load()) }

// Done is closed once the process has exited and all output has been
// delivered to OnChunk. Exit status is final by then.
func (p *Proc) Done() <-chan struct{} { return p.done }

// Geometry returns the most recently applied PTY dimensions.
func (p *Proc) Geometry() (cols, rows int) {
	if p == nil {
		return 0, 0
	}
	p.resizeMu.Lock()
	defer p.resizeMu.Unlock()
	return p.cols, p.rows
}

func (p *Proc) readLoop(onChunk func([]byte)) {
	defer p.wg.Done()
	buf := make([]byte, readBufferSize)
	for {
		pty := p.currentPTY()
		if pty == nil {
			return
		}
		n, err := pty.Read(buf)
		if n > 0 && onChunk != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onChunk(chunk)
		}
		if err != nil {
			// EOF or read error both mean the stream is over.
			return
		}
	}
}

func (p *Proc) waitExit(ctx context.Context) {
	defer p.wg.Done()
	if p.cmd == nil {
		return
	}
	_ = xpty.WaitProcess(ctx, p.cmd)
	if p.cmd.ProcessState != nil {
		p.exitStatus.Store(int64(p.cmd.ProcessState.ExitCode()))
	}
	p.exited.Store(true)
}

func (p *Proc) currentPTY() xpty.Pty {
	p.ptyMu.Lock()
	defer p.ptyMu.Unlock()
	return p.pty
}

// Signal delivers sig to the process group, so pipelines the shell spawned
// receive it too. Fails with ErrProcClosed once the process is gone.
func (p *Proc) Signal(sig os.Signal) error {
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return &ProcClosedError{Reason: ProcClosedShutdown}
	}
	if p.closed.Load() || p.exited.Load() {
		return &ProcClosedError{Reason: ProcClosedProcessExited}
	}
	return signalProcess(p.cmd, sig)
}

// Close terminates the process and releases the PTY. Idempotent.
func (p *Proc) Close() error {
	if p == nil {
		return nil
	}
	if p.closed.Swap(true) {
		return nil
	}

	if p.cancel != nil {
		p.cancel()
	}

	// Closing the PTY unblocks the reader.
	p.ptyMu.Lock()
	pty := p.pty
	p.pty = nil
	p.ptyMu.Unlock()
	if pty != nil {
		_ = pty.Close()
	}

	p.wg.Wait()
	return nil
}

func detectShell() string {
	if shell := os.Getenv("SHELL"); strings.TrimSpace(shell) != "" {
		return shell
	}
	if runtime.GOOS == "windows" {
		return "cmd.exe"
	}
	for _, s := range []string{"/bin/zsh", "/bin/bash", "/bin/sh"} {
		if _, err := os.Stat(s); err == nil {
			return s
		}
	}
	return "/bin/sh"
}

// mergeEnv applies overrides by key (KEY=VALUE).
func mergeEnv(base []string, overrides []string) []string {
	out := append([]string{}, base...)
	index := map[string]int{}
	for i, kv := range out {
		if k := envKey(kv); k != "" {
			index[k] = i
		}
	}
	for _, kv := range overrides {
		k := envKey(kv)
		if k == "" {
			continue
		}
		if i, ok := index[k]; ok {
			out[i] = kv
			continue
		}
		index[k] = len(out)
		out = append(out, kv)
	}
	return out
}

func hasEnv(env []string, key string) bool {
	key = strings.ToUpper(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	prefix := key + "="
	for _, kv := range env {
		if strings.HasPrefix(strings.ToUpper(kv), prefix) {
			return true
		}
	}
	return false
}

func envKey(kv string) string {
	kv = strings.TrimSpace(kv)
	if kv == "" {
		return ""
	}
	i := strings.IndexByte(kv, '=')
	if i <= 0 {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(kv[:i]))
}
