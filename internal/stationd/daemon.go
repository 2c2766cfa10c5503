package stationd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/northslopetech/agent-station/internal/session"
	"github.com/northslopetech/agent-station/internal/stationconfig"
)

const (
	readIdleTimeout  = 2 * time.Minute
	writeTimeout     = 10 * time.Second
	clientQueueDepth = 256
)

// Config wires a Daemon to its collaborators.
type Config struct {
	SocketPath string
	PIDPath    string
	Version    string

	Registry   *session.Registry
	Reconciler *session.Reconciler
	Store      *stationconfig.Store

	Logger *slog.Logger
}

// Daemon serves the session registry over a unix socket. One daemon hosts
// all projects; each connected client sees the same registry state.
type Daemon struct {
	cfg Config
	log *slog.Logger

	ln net.Listener

	mu         sync.Mutex
	clients    map[uint64]*clientConn
	nextClient uint64

	nextSub atomic.Uint64
	closed  atomic.Bool
	wg      sync.WaitGroup
}

// New validates cfg and returns an unstarted daemon.
func New(cfg Config) (*Daemon, error) {
	if cfg.Registry == nil {
		return nil, errors.New("stationd: registry is required")
	}
	if cfg.Reconciler == nil {
		cfg.Reconciler = session.NewReconciler(cfg.Registry)
	}
	if cfg.SocketPath == "" {
		p, err := SocketPath()
		if err != nil {
			return nil, err
		}
		cfg.SocketPath = p
	}
	if cfg.PIDPath == "" {
		p, err := PIDPath()
		if err != nil {
			return nil, err
		}
		cfg.PIDPath = p
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Daemon{
		cfg:     cfg,
		log:     log.With("component", "stationd"),
		clients: make(map[uint64]*clientConn),
	}, nil
}

// Serve listens on the unix socket and blocks until ctx is cancelled or the
// listener fails. It claims the socket, replacing a stale one left behind by
// a dead daemon; a live daemon on the socket is an error.
func (d *Daemon) Serve(ctx context.Context) error {
	ln, err := d.listen()
	if err != nil {
		return err
	}
	d.ln = ln
	if err := writePIDFile(d.cfg.PIDPath); err != nil {
		d.log.Warn("pid file write failed", "path", d.cfg.PIDPath, "error", err)
	}
	d.log.Info("listening", "socket", d.cfg.SocketPath, "version", d.cfg.Version)

	if stop := startProfiler(ctx); stop != nil {
		defer stop()
	}
	if err := watchConfig(ctx, d.cfg.Store, d.log); err != nil {
		d.log.Warn("config watch unavailable", "error", err)
	}

	d.wg.Add(1)
	go d.forwardRegistryEvents()

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || d.closed.Load() {
				return nil
			}
			return fmt.Errorf("stationd: accept: %w", err)
		}
		d.addClient(conn)
	}
}

func (d *Daemon) listen() (net.Listener, error) {
	if _, err := os.Stat(d.cfg.SocketPath); err == nil {
		probe, err := net.DialTimeout("unix", d.cfg.SocketPath, time.Second)
		if err == nil {
			_ = probe.Close()
			return nil, fmt.Errorf("stationd: daemon already running on %s", d.cfg.SocketPath)
		}
		_ = os.Remove(d.cfg.SocketPath)
	}
	ln, err := net.Listen("unix", d.cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("stationd: listen %s: %w", d.cfg.SocketPath, err)
	}
	if err := os.Chmod(d.cfg.SocketPath, 0o600); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("stationd: chmod socket: %w", err)
	}
	return ln, nil
}

// Close stops accepting, disconnects clients, and removes the socket and pid
// files. Idempotent.
func (d *Daemon) Close() {
	if d == nil || d.closed.Swap(true) {
		return
	}
	if d.ln != nil {
		_ = d.ln.Close()
	}
	d.mu.Lock()
	conns := make([]*clientConn, 0, len(d.clients))
	for _, c := range d.clients {
		conns = append(conns, c)
	}
	d.mu.Unlock()
	for _, c := range conns {
		c.shutdown()
	}
	// Sessions do not outlive the daemon; shutting the registry down also
	// closes its event channel, releasing forwardRegistryEvents.
	d.cfg.Registry.Shutdown()
	d.wg.Wait()
	_ = os.Remove(d.cfg.SocketPath)
	_ = os.Remove(d.cfg.PIDPath)
}

func (d *Daemon) addClient(conn net.Conn) {
	d.mu.Lock()
	d.nextClient++
	c := &clientConn{
		id:   d.nextClient,
		conn: conn,
		out:  make(chan Envelope, clientQueueDepth),
		done: make(chan struct{}),
		subs: make(map[uint64]*session.Subscription),
	}
	d.clients[c.id] = c
	d.mu.Unlock()

	d.log.Debug("client connected", "client", c.id)
	d.wg.Add(2)
	go d.readLoop(c)
	go d.writeLoop(c)
}

func (d *Daemon) removeClient(c *clientConn) {
	d.mu.Lock()
	delete(d.clients, c.id)
	d.mu.Unlock()
	c.shutdown()
	d.log.Debug("client disconnected", "client", c.id)
}

func (d *Daemon) readLoop(c *clientConn) {
	defer d.wg.Done()
	defer d.removeClient(c)
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
		env, err := readEnvelope(c.conn)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if !IsConnectionError(err) && !d.closed.Load() {
				d.log.Warn("client read failed", "client", c.id, "error", err)
			}
			return
		}
		if env.Kind != EnvelopeRequest {
			continue
		}
		d.dispatch(c, env)
	}
}

func (d *Daemon) writeLoop(c *clientConn) {
	defer d.wg.Done()
	for {
		select {
		case env := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := writeEnvelope(c.conn, env); err != nil {
				if !IsConnectionError(err) && !d.closed.Load() {
					d.log.Warn("client write failed", "client", c.id, "error", err)
				}
				c.shutdown()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (d *Daemon) dispatch(c *clientConn, env Envelope) {
	handler, ok := requestHandlers[env.Op]
	resp := Envelope{Kind: EnvelopeResponse, Op: env.Op, ID: env.ID}
	if !ok {
		resp.Error = fmt.Sprintf("unknown operation %q", env.Op)
		resp.Code = CodeInvalidRequest
		c.enqueue(resp)
		return
	}
	if env.Op != OpHello && !c.helloed() {
		resp.Error = "hello handshake required"
		resp.Code = CodeInvalidRequest
		c.enqueue(resp)
		return
	}
	payload, err := handler(d, c, env)
	if err != nil {
		resp.Error = err.Error()
		resp.Code = codeForError(err)
		var re *RequestError
		if errors.As(err, &re) {
			resp.Code = re.Code
		}
		c.enqueue(resp)
		return
	}
	data, err := encodePayload(payload)
	if err != nil {
		resp.Error = err.Error()
		resp.Code = CodeInternal
		c.enqueue(resp)
		return
	}
	resp.Payload = data
	c.enqueue(resp)
}

// forwardRegistryEvents relays session lifecycle changes as a broadcast so
// every connected client can refresh its terminal list.
func (d *Daemon) forwardRegistryEvents() {
	defer d.wg.Done()
	for ev := range d.cfg.Registry.Events() {
		wire := Event{
			Type:       EventTerminalsChanged,
			TerminalID: ev.SessionID,
			ProjectID:  ev.ProjectID,
			ExitStatus: ev.ExitStatus,
			Closed:     ev.Type == session.EventClosed,
			TS:         time.Now(),
		}
		payload, err := encodePayload(wire)
		if err != nil {
			d.log.Warn("event encode failed", "error", err)
			continue
		}
		env := Envelope{Kind: EnvelopeEvent, Event: EventTerminalsChanged, Payload: payload}
		d.mu.Lock()
		for _, c := range d.clients {
			c.enqueue(env)
		}
		d.mu.Unlock()
	}
}

// forwardStream relays one attachment's output feed to its client. Runs
// until the feed closes (exit event delivered) or the client goes away.
func (d *Daemon) forwardStream(c *clientConn, subID uint64, terminalID, projectID string, sub *session.Subscription) {
	defer d.wg.Done()
	defer c.dropSub(subID)
	for ev := range sub.Events() {
		wire := Event{
			SubscriptionID: subID,
			TerminalID:     terminalID,
			ProjectID:      projectID,
			TS:             ev.TS,
		}
		switch ev.Kind {
		case session.StreamOutput:
			wire.Type = EventTerminalOutput
			wire.Data = ev.Data
			wire.Truncated = ev.Truncated
		case session.StreamExit:
			wire.Type = EventTerminalExit
			wire.ExitStatus = ev.ExitStatus
			wire.Closed = ev.State == session.StateClosed
		default:
			continue
		}
		payload, err := encodePayload(wire)
		if err != nil {
			d.log.Warn("stream encode failed", "terminal", terminalID, "error", err)
			continue
		}
		select {
		case c.out <- Envelope{Kind: EnvelopeEvent, Event: wire.Type, Payload: payload}:
		case <-c.done:
			return
		}
	}
}

// clientConn is one connected client: a serialized outbound queue plus the
// attachments it holds. All envelope writes go through out so responses and
// events never interleave mid-frame.
type clientConn struct {
	id   uint64
	conn net.Conn

	out  chan Envelope
	done chan struct{}
	once sync.Once

	mu        sync.Mutex
	subs      map[uint64]*session.Subscription
	helloDone bool
}

func (c *clientConn) enqueue(env Envelope) {
	select {
	case c.out <- env:
	case <-c.done:
	}
}

func (c *clientConn) helloed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.helloDone
}

func (c *clientConn) addSub(id uint64, sub *session.Subscription) {
	c.mu.Lock()
	c.subs[id] = sub
	c.mu.Unlock()
}

func (c *clientConn) takeSub(id uint64) *session.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub := c.subs[id]
	delete(c.subs, id)
	return sub
}

func (c *clientConn) dropSub(id uint64) {
	c.mu.Lock()
	delete(c.subs, id)
	c.mu.Unlock()
}

// shutdown tears the client down: cancels its attachments so their feed
// goroutines unwind, then closes the connection. Idempotent.
func (c *clientConn) shutdown() {
	c.once.Do(func() {
		close(c.done)
		c.mu.Lock()
		subs := make([]*session.Subscription, 0, len(c.subs))
		for _, sub := range c.subs {
			subs = append(subs, sub)
		}
		c.subs = make(map[uint64]*session.Subscription)
		c.mu.Unlock()
		for _, sub := range subs {
			sub.Cancel()
		}
		_ = c.conn.Close()
	})
}
