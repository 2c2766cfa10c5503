package stationd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/northslopetech/agent-station/internal/appdirs"
)

const (
	// EnvSocketPath overrides the daemon unix socket location.
	EnvSocketPath = "AGENT_STATION_DAEMON_SOCKET"
	// EnvPIDPath overrides the daemon pid file location.
	EnvPIDPath = "AGENT_STATION_DAEMON_PID"

	socketName  = "stationd.sock"
	pidFileName = "stationd.pid"
)

// SocketPath returns the unix socket the daemon listens on, creating the
// runtime directory when needed.
func SocketPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvSocketPath)); p != "" {
		return p, nil
	}
	dir, err := appdirs.RuntimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, socketName), nil
}

// PIDPath returns the daemon pid file location.
func PIDPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvPIDPath)); p != "" {
		return p, nil
	}
	dir, err := appdirs.RuntimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, pidFileName), nil
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o600)
}

// ReadPIDFile parses the daemon pid file. A missing file is not an error; it
// returns 0 in that case.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("stationd: malformed pid file %s: %w", path, err)
	}
	return pid, nil
}
