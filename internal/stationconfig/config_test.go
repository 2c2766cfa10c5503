package stationconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	return st
}

func TestOpenMissingFileIsEmpty(t *testing.T) {
	st := newTestStore(t)
	if got := st.Projects(); len(got) != 0 {
		t.Fatalf("Projects() on fresh store = %v, want empty", got)
	}
}

func TestAddProjectRoundTrip(t *testing.T) {
	st := newTestStore(t)
	dir := t.TempDir()

	p, err := st.AddProject(dir)
	if err != nil {
		t.Fatalf("AddProject() error: %v", err)
	}
	if p.ID == "" || p.Path != filepath.Clean(dir) || p.Name != filepath.Base(dir) {
		t.Fatalf("AddProject() = %+v", p)
	}

	// Reopen from disk: the project survives.
	st2, err := Open(st.Path())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	got, ok := st2.Project(p.ID)
	if !ok || got.Path != p.Path {
		t.Fatalf("Project(%s) after reopen = %+v ok=%v", p.ID, got, ok)
	}
}

func TestAddProjectValidation(t *testing.T) {
	st := newTestStore(t)
	if _, err := st.AddProject(""); err == nil {
		t.Fatalf("AddProject() should require a path")
	}
	if _, err := st.AddProject("relative/path"); err == nil {
		t.Fatalf("AddProject() should require an absolute path")
	}
	dir := t.TempDir()
	if _, err := st.AddProject(dir); err != nil {
		t.Fatalf("AddProject() error: %v", err)
	}
	if _, err := st.AddProject(dir); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("AddProject() duplicate = %v, want already-exists error", err)
	}
}

func TestProjectsSortedByName(t *testing.T) {
	st := newTestStore(t)
	base := t.TempDir()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		dir := filepath.Join(base, name)
		mustMkdir(t, dir)
		if _, err := st.AddProject(dir); err != nil {
			t.Fatalf("AddProject(%s) error: %v", name, err)
		}
	}
	got := st.Projects()
	if len(got) != 3 || got[0].Name != "alpha" || got[1].Name != "mid" || got[2].Name != "zeta" {
		t.Fatalf("Projects() order = %+v", got)
	}
}

func TestRemoveProjectPurgesNames(t *testing.T) {
	st := newTestStore(t)
	p, err := st.AddProject(t.TempDir())
	if err != nil {
		t.Fatalf("AddProject() error: %v", err)
	}
	if err := st.SetTerminalName(p.ID, 1, "Build"); err != nil {
		t.Fatalf("SetTerminalName() error: %v", err)
	}
	if err := st.SetTerminalName("other", 1, "Keep"); err != nil {
		t.Fatalf("SetTerminalName() error: %v", err)
	}

	if err := st.RemoveProject(p.ID); err != nil {
		t.Fatalf("RemoveProject() error: %v", err)
	}
	if _, ok := st.Project(p.ID); ok {
		t.Fatalf("project should be gone")
	}
	if got := st.TerminalName(p.ID, 1); got != "" {
		t.Fatalf("TerminalName() after removal = %q, want empty", got)
	}
	if got := st.TerminalName("other", 1); got != "Keep" {
		t.Fatalf("unrelated name = %q, want Keep", got)
	}

	if err := st.RemoveProject("never-existed"); err != nil {
		t.Fatalf("RemoveProject(unknown) should be a no-op: %v", err)
	}
}

func TestRemoveProjectFailedSaveKeepsState(t *testing.T) {
	st := newTestStore(t)
	p, err := st.AddProject(t.TempDir())
	if err != nil {
		t.Fatalf("AddProject() error: %v", err)
	}
	if err := st.SetTerminalName(p.ID, 1, "Build"); err != nil {
		t.Fatalf("SetTerminalName() error: %v", err)
	}

	// A directory in the file's place makes the atomic rename fail.
	if err := os.Remove(st.Path()); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if err := os.Mkdir(st.Path(), 0o700); err != nil {
		t.Fatalf("Mkdir() error: %v", err)
	}

	if err := st.RemoveProject(p.ID); err == nil {
		t.Fatalf("RemoveProject() should surface the save failure")
	}
	if _, ok := st.Project(p.ID); !ok {
		t.Fatalf("project should survive a failed save")
	}
	if got := st.TerminalName(p.ID, 1); got != "Build" {
		t.Fatalf("TerminalName() after failed save = %q, want Build", got)
	}
}

func TestTerminalNamesPersist(t *testing.T) {
	st := newTestStore(t)
	if err := st.SetTerminalName("p1", 2, "  Review  "); err != nil {
		t.Fatalf("SetTerminalName() error: %v", err)
	}
	if got := st.TerminalName("p1", 2); got != "Review" {
		t.Fatalf("TerminalName() = %q, want trimmed name", got)
	}
	if got := st.TerminalName("p1", 3); got != "" {
		t.Fatalf("TerminalName() unset slot = %q, want empty", got)
	}
	if err := st.SetTerminalName("p1", 2, "   "); err == nil {
		t.Fatalf("SetTerminalName() should reject blank names")
	}

	st2, err := Open(st.Path())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if got := st2.TerminalName("p1", 2); got != "Review" {
		t.Fatalf("TerminalName() after reopen = %q", got)
	}
}

func TestReloadPicksUpExternalEdits(t *testing.T) {
	st := newTestStore(t)
	p, err := st.AddProject(t.TempDir())
	if err != nil {
		t.Fatalf("AddProject() error: %v", err)
	}

	// A second store writing the same file stands in for the desktop shell.
	other, err := Open(st.Path())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := other.RemoveProject(p.ID); err != nil {
		t.Fatalf("RemoveProject() error: %v", err)
	}

	if _, ok := st.Project(p.ID); !ok {
		t.Fatalf("stale store should still see the project before reload")
	}
	if err := st.Reload(); err != nil {
		t.Fatalf("Reload() error: %v", err)
	}
	if _, ok := st.Project(p.ID); ok {
		t.Fatalf("Reload() should drop the removed project")
	}
}

func mustMkdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
}
