// Package stationconfig persists Agent Station's cosmetic state: the
// project list and per-slot terminal display names. Running sessions are
// never persisted; on restart every project starts with no sessions.
package stationconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"github.com/northslopetech/agent-station/internal/appdirs"
	"github.com/northslopetech/agent-station/internal/atomicfile"
)

const configFileName = "config.toml"

// Project is a supervised folder. Immutable once created except removal.
type Project struct {
	ID   string `toml:"id"`
	Path string `toml:"path"`
	Name string `toml:"name"`
}

// Config represents config.toml under the agent-station config dir.
type Config struct {
	Projects []Project `toml:"projects,omitempty"`

	// TerminalNames maps "<projectID>/<slot>" to a user-chosen display
	// name. Names are cosmetic and outlive the processes they labeled.
	TerminalNames map[string]string `toml:"terminal_names,omitempty"`
}

// DefaultPath returns the config file path under the app config dir.
func DefaultPath() (string, error) {
	dir, err := appdirs.ConfigDirPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// Store loads and saves the config file with atomic writes.
type Store struct {
	mu   sync.Mutex
	path string
	cfg  Config
}

// Open reads the config at path, creating an empty one in memory if the
// file does not exist yet. Pass "" for the default path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	st := &Store{path: path}
	if err := st.reload(); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func (s *Store) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.cfg = Config{}
			return nil
		}
		return fmt.Errorf("stationconfig: read %s: %w", s.path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("stationconfig: parse %s: %w", s.path, err)
	}
	s.cfg = cfg
	return nil
}

// Reload re-reads the file, discarding in-memory state. Used when another
// process (the desktop shell) rewrites the config.
func (s *Store) Reload() error {
	if s == nil {
		return errors.New("stationconfig: store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reload()
}

func (s *Store) save() error {
	data, err := toml.Marshal(s.cfg)
	if err != nil {
		return fmt.Errorf("stationconfig: encode: %w", err)
	}
	return atomicfile.Save(s.path, data, 0o600)
}

// Projects returns the project list sorted by name.
func (s *Store) Projects() []Project {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	out := append([]Project(nil), s.cfg.Projects...)
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Project looks up a project by id.
func (s *Store) Project(id string) (Project, bool) {
	if s == nil {
		return Project{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.cfg.Projects {
		if p.ID == id {
			return p, true
		}
	}
	return Project{}, false
}

// AddProject registers a folder as a project, named after its base name.
// Adding a path that is already registered fails.
func (s *Store) AddProject(path string) (Project, error) {
	if s == nil {
		return Project{}, errors.New("stationconfig: store is nil")
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Project{}, errors.New("stationconfig: project path is required")
	}
	if !filepath.IsAbs(path) {
		return Project{}, fmt.Errorf("stationconfig: project path %q is not absolute", path)
	}
	path = filepath.Clean(path)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.cfg.Projects {
		if p.Path == path {
			return Project{}, fmt.Errorf("stationconfig: project already exists for %q", path)
		}
	}
	project := Project{
		ID:   uuid.NewString(),
		Path: path,
		Name: filepath.Base(path),
	}
	s.cfg.Projects = append(s.cfg.Projects, project)
	if err := s.save(); err != nil {
		s.cfg.Projects = s.cfg.Projects[:len(s.cfg.Projects)-1]
		return Project{}, err
	}
	return project, nil
}

// RemoveProject drops a project and its persisted terminal names.
// Removing an unknown id is a no-op.
func (s *Store) RemoveProject(id string) error {
	if s == nil {
		return errors.New("stationconfig: store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make([]Project, 0, len(s.cfg.Projects))
	removed := false
	for _, p := range s.cfg.Projects {
		if p.ID == id {
			removed = true
			continue
		}
		kept = append(kept, p)
	}
	if !removed {
		return nil
	}
	prevProjects := s.cfg.Projects
	prefix := id + "/"
	prevNames := make(map[string]string)
	for key, name := range s.cfg.TerminalNames {
		if strings.HasPrefix(key, prefix) {
			prevNames[key] = name
		}
	}
	s.cfg.Projects = kept
	for key := range prevNames {
		delete(s.cfg.TerminalNames, key)
	}
	if err := s.save(); err != nil {
		// Keep memory and disk in agreement when the write fails.
		s.cfg.Projects = prevProjects
		for key, name := range prevNames {
			s.cfg.TerminalNames[key] = name
		}
		return err
	}
	return nil
}

// TerminalName returns the persisted display name for a project's session
// slot, or "" if none was ever set.
func (s *Store) TerminalName(projectID string, slot int) string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.TerminalNames[nameKey(projectID, slot)]
}

// SetTerminalName persists a cosmetic display name for a session slot.
func (s *Store) SetTerminalName(projectID string, slot int, name string) error {
	if s == nil {
		return errors.New("stationconfig: store is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("stationconfig: terminal name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.TerminalNames == nil {
		s.cfg.TerminalNames = make(map[string]string)
	}
	s.cfg.TerminalNames[nameKey(projectID, slot)] = name
	return s.save()
}

func nameKey(projectID string, slot int) string {
	return fmt.Sprintf("%s/%d", projectID, slot)
}
