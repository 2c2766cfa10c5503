package stationd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
)

type handlerFunc func(d *Daemon, c *clientConn, env Envelope) (any, error)

var requestHandlers = map[Op]handlerFunc{
	OpHello:           handleHello,
	OpSpawnTerminal:   handleSpawnTerminal,
	OpWriteTerminal:   handleWriteTerminal,
	OpResizeTerminal:  handleResizeTerminal,
	OpKillTerminal:    handleKillTerminal,
	OpRenameTerminal:  handleRenameTerminal,
	OpListTerminals:   handleListTerminals,
	OpAttachTerminal:  handleAttachTerminal,
	OpDetachTerminal:  handleDetachTerminal,
	OpActivateProject: handleActivateProject,
	OpListProjects:    handleListProjects,
	OpAddProject:      handleAddProject,
	OpRemoveProject:   handleRemoveProject,
	OpShutdown:        handleShutdown,
}

func decodeRequest[T any](env Envelope) (T, error) {
	var req T
	if err := decodePayload(env.Payload, &req); err != nil {
		return req, &RequestError{Op: env.Op, Code: CodeInvalidRequest, Message: err.Error()}
	}
	return req, nil
}

func handleHello(d *Daemon, c *clientConn, env Envelope) (any, error) {
	req, err := decodeRequest[HelloRequest](env)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(d.cfg.Version, req.Version); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.helloDone = true
	c.mu.Unlock()
	d.log.Debug("hello", "client", c.id, "client_version", req.Version, "client_id", req.ClientID)
	return HelloResponse{Version: d.cfg.Version, PID: os.Getpid()}, nil
}

// checkVersion gates connections on semver major compatibility. An empty
// daemon version disables the gate (dev builds).
func checkVersion(daemonVersion, clientVersion string) error {
	if daemonVersion == "" {
		return nil
	}
	dv, err := semver.NewVersion(daemonVersion)
	if err != nil {
		return nil
	}
	cv, err := semver.NewVersion(clientVersion)
	if err != nil {
		return &RequestError{Op: OpHello, Code: CodeVersionMismatch,
			Message: fmt.Sprintf("unparseable client version %q", clientVersion)}
	}
	if dv.Major() != cv.Major() {
		return &RequestError{Op: OpHello, Code: CodeVersionMismatch,
			Message: fmt.Sprintf("daemon %s is incompatible with client %s", daemonVersion, clientVersion)}
	}
	return nil
}

func handleSpawnTerminal(d *Daemon, _ *clientConn, env Envelope) (any, error) {
	req, err := decodeRequest[SpawnTerminalRequest](env)
	if err != nil {
		return nil, err
	}
	dir := req.Dir
	if dir == "" && d.cfg.Store != nil {
		if p, ok := d.cfg.Store.Project(req.ProjectID); ok {
			dir = p.Path
		}
	}
	desc, err := d.cfg.Reconciler.Create(context.Background(), req.ProjectID, dir)
	if err != nil {
		return nil, err
	}
	return terminalInfo(desc), nil
}

func handleWriteTerminal(d *Daemon, _ *clientConn, env Envelope) (any, error) {
	req, err := decodeRequest[WriteTerminalRequest](env)
	if err != nil {
		return nil, err
	}
	return nil, d.cfg.Registry.Write(req.TerminalID, req.Data)
}

func handleResizeTerminal(d *Daemon, _ *clientConn, env Envelope) (any, error) {
	req, err := decodeRequest[ResizeTerminalRequest](env)
	if err != nil {
		return nil, err
	}
	return nil, d.cfg.Registry.Resize(req.TerminalID, req.Cols, req.Rows)
}

func handleKillTerminal(d *Daemon, _ *clientConn, env Envelope) (any, error) {
	req, err := decodeRequest[TerminalRequest](env)
	if err != nil {
		return nil, err
	}
	return nil, d.cfg.Registry.Close(req.TerminalID)
}

func handleRenameTerminal(d *Daemon, _ *clientConn, env Envelope) (any, error) {
	req, err := decodeRequest[RenameTerminalRequest](env)
	if err != nil {
		return nil, err
	}
	desc, err := d.cfg.Registry.Rename(req.TerminalID, req.DisplayName)
	if err != nil {
		return nil, err
	}
	if d.cfg.Store != nil {
		if err := d.cfg.Store.SetTerminalName(desc.ProjectID, desc.Slot, desc.DisplayName); err != nil {
			d.log.Warn("terminal name persist failed", "terminal", desc.ID, "error", err)
		}
	}
	return terminalInfo(desc), nil
}

func handleListTerminals(d *Daemon, _ *clientConn, env Envelope) (any, error) {
	req, err := decodeRequest[ListTerminalsRequest](env)
	if err != nil {
		return nil, err
	}
	return TerminalListResponse{Terminals: terminalInfos(d.cfg.Registry.List(req.ProjectID))}, nil
}

func handleAttachTerminal(d *Daemon, c *clientConn, env Envelope) (any, error) {
	req, err := decodeRequest[AttachTerminalRequest](env)
	if err != nil {
		return nil, err
	}
	desc, err := d.cfg.Registry.Get(req.TerminalID)
	if err != nil {
		return nil, err
	}
	sub, err := d.cfg.Registry.Attach(req.TerminalID, clientQueueDepth)
	if err != nil {
		return nil, err
	}
	subID := d.nextSub.Add(1)
	c.addSub(subID, sub)
	d.wg.Add(1)
	go d.forwardStream(c, subID, desc.ID, desc.ProjectID, sub)
	return AttachTerminalResponse{SubscriptionID: subID}, nil
}

func handleDetachTerminal(d *Daemon, c *clientConn, env Envelope) (any, error) {
	req, err := decodeRequest[DetachTerminalRequest](env)
	if err != nil {
		return nil, err
	}
	if sub := c.takeSub(req.SubscriptionID); sub != nil {
		sub.Cancel()
	}
	return nil, nil
}

func handleActivateProject(d *Daemon, _ *clientConn, env Envelope) (any, error) {
	req, err := decodeRequest[ActivateProjectRequest](env)
	if err != nil {
		return nil, err
	}
	if d.cfg.Store == nil {
		return nil, &RequestError{Op: env.Op, Code: CodeInternal, Message: "project store unavailable"}
	}
	proj, ok := d.cfg.Store.Project(req.ProjectID)
	if !ok {
		return nil, &RequestError{Op: env.Op, Code: CodeInvalidRequest,
			Message: fmt.Sprintf("unknown project %q", req.ProjectID)}
	}
	descs, spawned, err := d.cfg.Reconciler.Activate(context.Background(), proj.ID, proj.Path)
	if err != nil {
		return nil, err
	}
	return ActivateProjectResponse{Terminals: terminalInfos(descs), Spawned: spawned}, nil
}

func handleListProjects(d *Daemon, _ *clientConn, env Envelope) (any, error) {
	if d.cfg.Store == nil {
		return ProjectListResponse{}, nil
	}
	projects := d.cfg.Store.Projects()
	out := make([]ProjectInfo, 0, len(projects))
	for _, p := range projects {
		out = append(out, projectInfo(p))
	}
	return ProjectListResponse{Projects: out}, nil
}

func handleAddProject(d *Daemon, _ *clientConn, env Envelope) (any, error) {
	req, err := decodeRequest[AddProjectRequest](env)
	if err != nil {
		return nil, err
	}
	if d.cfg.Store == nil {
		return nil, &RequestError{Op: env.Op, Code: CodeInternal, Message: "project store unavailable"}
	}
	proj, err := d.cfg.Store.AddProject(req.Path)
	if err != nil {
		return nil, &RequestError{Op: env.Op, Code: CodeInvalidRequest, Message: err.Error()}
	}
	return projectInfo(proj), nil
}

func handleRemoveProject(d *Daemon, _ *clientConn, env Envelope) (any, error) {
	req, err := decodeRequest[RemoveProjectRequest](env)
	if err != nil {
		return nil, err
	}
	if d.cfg.Store == nil {
		return nil, &RequestError{Op: env.Op, Code: CodeInternal, Message: "project store unavailable"}
	}
	if err := d.cfg.Store.RemoveProject(req.ProjectID); err != nil {
		return nil, &RequestError{Op: env.Op, Code: CodeInternal, Message: err.Error()}
	}
	return nil, nil
}

func handleShutdown(d *Daemon, _ *clientConn, _ Envelope) (any, error) {
	d.log.Info("shutdown requested")
	go func() {
		time.Sleep(100 * time.Millisecond)
		d.Close()
	}()
	return nil, nil
}
