package session

import (
	"context"
	"strings"
	"sync"
)

// Reconciler matches project activations to existing sessions so switching
// projects never spawns duplicates. The first activation of a project in a
// registry's lifetime spawns a default session; after that, new sessions
// come only from explicit Create calls. Sessions that exited are never
// respawned automatically.
type Reconciler struct {
	reg *Registry

	mu      sync.Mutex
	spawned map[string]bool // projectID -> a session was ever created
}

// NewReconciler wraps a registry.
func NewReconciler(reg *Registry) *Reconciler {
	return &Reconciler{reg: reg, spawned: make(map[string]bool)}
}

// Activate returns the project's running sessions. If there are none and
// the project has never had a session in this lifetime, it spawns the
// default one and reports spawned=true.
func (rc *Reconciler) Activate(ctx context.Context, projectID, workingDirectory string) (descs []Descriptor, spawned bool, err error) {
	if rc == nil || rc.reg == nil {
		return nil, false, ErrUnknownSession
	}
	projectID = strings.TrimSpace(projectID)

	var running []Descriptor
	for _, d := range rc.reg.List(projectID) {
		if d.Running {
			running = append(running, d)
		}
	}
	if len(running) > 0 {
		rc.markSpawned(projectID)
		return running, false, nil
	}

	rc.mu.Lock()
	already := rc.spawned[projectID]
	rc.mu.Unlock()
	if already {
		// A session existed and ended; the user must ask for a new one.
		return nil, false, nil
	}

	desc, err := rc.Create(ctx, projectID, workingDirectory)
	if err != nil {
		return nil, false, err
	}
	return []Descriptor{desc}, true, nil
}

// Create spawns an additional session for a project on explicit request and
// records that the project has been spawned for.
func (rc *Reconciler) Create(ctx context.Context, projectID, workingDirectory string) (Descriptor, error) {
	desc, err := rc.reg.Create(ctx, projectID, workingDirectory)
	if err != nil {
		return Descriptor{}, err
	}
	rc.markSpawned(desc.ProjectID)
	return desc, nil
}

func (rc *Reconciler) markSpawned(projectID string) {
	if projectID == "" {
		return
	}
	rc.mu.Lock()
	rc.spawned[projectID] = true
	rc.mu.Unlock()
}
