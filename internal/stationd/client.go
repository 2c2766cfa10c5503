package stationd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	dialTimeout      = 3 * time.Second
	clientEventDepth = 1024
)

// Client is a connection to a running daemon. Request methods are safe for
// concurrent use; events from attachments arrive on Events in wire order.
type Client struct {
	conn net.Conn
	wmu  sync.Mutex // serializes envelope writes

	mu      sync.Mutex
	pending map[uint64]chan Envelope
	nextID  uint64

	events chan Event
	done   chan struct{}
	closed atomic.Bool

	daemonVersion string
	daemonPID     int
}

// Dial connects to the daemon socket and performs the version handshake.
func Dial(ctx context.Context, socketPath, version string) (*Client, error) {
	if socketPath == "" {
		p, err := SocketPath()
		if err != nil {
			return nil, err
		}
		socketPath = p
	}
	var d net.Dialer
	d.Timeout = dialTimeout
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("stationd: dial %s: %w", socketPath, err)
	}
	c := &Client{
		conn:    conn,
		pending: make(map[uint64]chan Envelope),
		events:  make(chan Event, clientEventDepth),
		done:    make(chan struct{}),
	}
	go c.readLoop()

	var hello HelloResponse
	err = c.call(ctx, OpHello, HelloRequest{Version: version, ClientID: uuid.NewString()}, &hello)
	if err != nil {
		c.Close()
		if errors.Is(err, ErrVersionMismatch) {
			return nil, fmt.Errorf("%w: %v", ErrVersionMismatch, err)
		}
		return nil, err
	}
	c.daemonVersion = hello.Version
	c.daemonPID = hello.PID
	return c, nil
}

// DaemonVersion reports the version string from the handshake.
func (c *Client) DaemonVersion() string { return c.daemonVersion }

// DaemonPID reports the daemon's process id from the handshake.
func (c *Client) DaemonPID() int { return c.daemonPID }

// Events delivers attachment output/exit events and registry broadcasts.
// The channel closes when the connection is lost or the client is closed.
func (c *Client) Events() <-chan Event { return c.events }

// Close tears the connection down. In-flight calls fail with ErrClientClosed.
func (c *Client) Close() {
	if c == nil || c.closed.Swap(true) {
		return
	}
	close(c.done)
	_ = c.conn.Close()
	c.mu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

func (c *Client) readLoop() {
	defer c.Close()
	defer close(c.events)
	for {
		env, err := readEnvelope(c.conn)
		if err != nil {
			return
		}
		switch env.Kind {
		case EnvelopeResponse:
			c.mu.Lock()
			ch := c.pending[env.ID]
			delete(c.pending, env.ID)
			c.mu.Unlock()
			if ch != nil {
				ch <- env
			}
		case EnvelopeEvent:
			var ev Event
			if err := decodePayload(env.Payload, &ev); err != nil {
				continue
			}
			select {
			case c.events <- ev:
			case <-c.done:
				return
			}
		}
	}
}

// call sends one request and blocks for its response or ctx cancellation.
func (c *Client) call(ctx context.Context, op Op, req, resp any) error {
	if c == nil || c.closed.Load() {
		return ErrClientClosed
	}
	payload, err := encodePayload(req)
	if err != nil {
		return err
	}
	ch := make(chan Envelope, 1)
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.pending[id] = ch
	c.mu.Unlock()

	env := Envelope{Kind: EnvelopeRequest, Op: op, ID: id, Payload: payload}
	c.wmu.Lock()
	err = writeEnvelope(c.conn, env)
	c.wmu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		if c.closed.Load() {
			return ErrClientClosed
		}
		return fmt.Errorf("stationd: send %s: %w", op, err)
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return ErrClientClosed
		}
		if reply.Error != "" {
			return &RequestError{Op: op, Code: reply.Code, Message: reply.Error}
		}
		if resp != nil {
			return decodePayload(reply.Payload, resp)
		}
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return ctx.Err()
	case <-c.done:
		return ErrClientClosed
	}
}

func (c *Client) SpawnTerminal(ctx context.Context, projectID, dir string) (TerminalInfo, error) {
	var info TerminalInfo
	err := c.call(ctx, OpSpawnTerminal, SpawnTerminalRequest{ProjectID: projectID, Dir: dir}, &info)
	return info, err
}

func (c *Client) WriteTerminal(ctx context.Context, terminalID string, data []byte) error {
	return c.call(ctx, OpWriteTerminal, WriteTerminalRequest{TerminalID: terminalID, Data: data}, nil)
}

func (c *Client) ResizeTerminal(ctx context.Context, terminalID string, cols, rows int) error {
	return c.call(ctx, OpResizeTerminal, ResizeTerminalRequest{TerminalID: terminalID, Cols: cols, Rows: rows}, nil)
}

func (c *Client) KillTerminal(ctx context.Context, terminalID string) error {
	return c.call(ctx, OpKillTerminal, TerminalRequest{TerminalID: terminalID}, nil)
}

func (c *Client) RenameTerminal(ctx context.Context, terminalID, displayName string) (TerminalInfo, error) {
	var info TerminalInfo
	err := c.call(ctx, OpRenameTerminal, RenameTerminalRequest{TerminalID: terminalID, DisplayName: displayName}, &info)
	return info, err
}

func (c *Client) ListTerminals(ctx context.Context, projectID string) ([]TerminalInfo, error) {
	var resp TerminalListResponse
	if err := c.call(ctx, OpListTerminals, ListTerminalsRequest{ProjectID: projectID}, &resp); err != nil {
		return nil, err
	}
	return resp.Terminals, nil
}

// AttachTerminal subscribes to a terminal's output. Matching events on
// Events carry the returned subscription id.
func (c *Client) AttachTerminal(ctx context.Context, terminalID string) (uint64, error) {
	var resp AttachTerminalResponse
	if err := c.call(ctx, OpAttachTerminal, AttachTerminalRequest{TerminalID: terminalID}, &resp); err != nil {
		return 0, err
	}
	return resp.SubscriptionID, nil
}

func (c *Client) DetachTerminal(ctx context.Context, subscriptionID uint64) error {
	return c.call(ctx, OpDetachTerminal, DetachTerminalRequest{SubscriptionID: subscriptionID}, nil)
}

func (c *Client) ActivateProject(ctx context.Context, projectID string) ([]TerminalInfo, bool, error) {
	var resp ActivateProjectResponse
	if err := c.call(ctx, OpActivateProject, ActivateProjectRequest{ProjectID: projectID}, &resp); err != nil {
		return nil, false, err
	}
	return resp.Terminals, resp.Spawned, nil
}

func (c *Client) Projects(ctx context.Context) ([]ProjectInfo, error) {
	var resp ProjectListResponse
	if err := c.call(ctx, OpListProjects, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Projects, nil
}

func (c *Client) AddProject(ctx context.Context, path string) (ProjectInfo, error) {
	var info ProjectInfo
	err := c.call(ctx, OpAddProject, AddProjectRequest{Path: path}, &info)
	return info, err
}

func (c *Client) RemoveProject(ctx context.Context, projectID string) error {
	return c.call(ctx, OpRemoveProject, RemoveProjectRequest{ProjectID: projectID}, nil)
}

// Shutdown asks the daemon to exit.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.call(ctx, OpShutdown, nil, nil)
}
