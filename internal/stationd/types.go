package stationd

import (
	"time"

	"github.com/northslopetech/agent-station/internal/session"
	"github.com/northslopetech/agent-station/internal/stationconfig"
)

// Op identifies a request operation.
type Op string

const (
	OpHello           Op = "hello"
	OpSpawnTerminal   Op = "spawn_terminal"
	OpWriteTerminal   Op = "write_terminal"
	OpResizeTerminal  Op = "resize_terminal"
	OpKillTerminal    Op = "kill_terminal"
	OpRenameTerminal  Op = "rename_terminal"
	OpListTerminals   Op = "list_terminals"
	OpAttachTerminal  Op = "attach_terminal"
	OpDetachTerminal  Op = "detach_terminal"
	OpActivateProject Op = "activate_project"
	OpListProjects    Op = "list_projects"
	OpAddProject      Op = "add_project"
	OpRemoveProject   Op = "remove_project"
	OpShutdown        Op = "shutdown"
)

// EventType identifies a daemon-to-client event.
type EventType string

const (
	EventTerminalOutput   EventType = "terminal_output"
	EventTerminalExit     EventType = "terminal_exit"
	EventTerminalsChanged EventType = "terminals_changed"
)

// TerminalInfo is the wire form of a session descriptor.
type TerminalInfo struct {
	ID          string
	ProjectID   string
	DisplayName string
	Slot        int
	PID         int
	IsRunning   bool
	CreatedAt   time.Time
}

func terminalInfo(d session.Descriptor) TerminalInfo {
	return TerminalInfo{
		ID:          d.ID,
		ProjectID:   d.ProjectID,
		DisplayName: d.DisplayName,
		Slot:        d.Slot,
		PID:         d.PID,
		IsRunning:   d.Running,
		CreatedAt:   d.CreatedAt,
	}
}

func terminalInfos(ds []session.Descriptor) []TerminalInfo {
	out := make([]TerminalInfo, 0, len(ds))
	for _, d := range ds {
		out = append(out, terminalInfo(d))
	}
	return out
}

// ProjectInfo is the wire form of a configured project.
type ProjectInfo struct {
	ID   string
	Path string
	Name string
}

func projectInfo(p stationconfig.Project) ProjectInfo {
	return ProjectInfo{ID: p.ID, Path: p.Path, Name: p.Name}
}

type HelloRequest struct {
	Version  string
	ClientID string
}

type HelloResponse struct {
	Version string
	PID     int
}

type SpawnTerminalRequest struct {
	ProjectID string
	Dir       string
}

type TerminalRequest struct {
	TerminalID string
}

type WriteTerminalRequest struct {
	TerminalID string
	Data       []byte
}

type ResizeTerminalRequest struct {
	TerminalID string
	Cols       int
	Rows       int
}

type RenameTerminalRequest struct {
	TerminalID  string
	DisplayName string
}

type ListTerminalsRequest struct {
	ProjectID string
}

type TerminalListResponse struct {
	Terminals []TerminalInfo
}

type AttachTerminalRequest struct {
	TerminalID string
}

type AttachTerminalResponse struct {
	SubscriptionID uint64
}

type DetachTerminalRequest struct {
	SubscriptionID uint64
}

type ActivateProjectRequest struct {
	ProjectID string
}

type ActivateProjectResponse struct {
	Terminals []TerminalInfo
	Spawned   bool
}

type ProjectListResponse struct {
	Projects []ProjectInfo
}

type AddProjectRequest struct {
	Path string
}

type RemoveProjectRequest struct {
	ProjectID string
}

// Event is a daemon-initiated notification. Output and exit events carry a
// SubscriptionID so a client can route them to the right attachment; the
// terminals_changed broadcast carries only the project scope.
type Event struct {
	Type           EventType
	SubscriptionID uint64
	TerminalID     string
	ProjectID      string
	Data           []byte
	Truncated      bool
	ExitStatus     int
	Closed         bool
	TS             time.Time
}
