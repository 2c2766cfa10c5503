// Package appdirs resolves the directories Agent Station uses for
// configuration and runtime state (socket, pid file, logs).
package appdirs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// EnvConfigDir overrides the config directory (tests, portable setups).
	EnvConfigDir = "AGENT_STATION_CONFIG_DIR"
	// EnvRuntimeDir overrides the runtime directory.
	EnvRuntimeDir = "AGENT_STATION_RUNTIME_DIR"

	appDirName = "agent-station"
)

// ConfigDir returns the config directory, creating it if needed.
func ConfigDir() (string, error) {
	dir, err := ConfigDirPath()
	if err != nil {
		return "", err
	}
	return ensureDir(dir)
}

// ConfigDirPath resolves the config directory without creating it.
func ConfigDirPath() (string, error) {
	if override := strings.TrimSpace(os.Getenv(EnvConfigDir)); override != "" {
		return override, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("appdirs: resolve config dir: %w", err)
	}
	return filepath.Join(dir, appDirName), nil
}

// RuntimeDir returns the runtime directory, creating it if needed.
func RuntimeDir() (string, error) {
	dir, err := RuntimeDirPath()
	if err != nil {
		return "", err
	}
	return ensureDir(dir)
}

// RuntimeDirPath resolves the runtime directory without creating it.
func RuntimeDirPath() (string, error) {
	if override := strings.TrimSpace(os.Getenv(EnvRuntimeDir)); override != "" {
		return override, nil
	}
	dir, err := ConfigDirPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "run"), nil
}

func ensureDir(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("appdirs: directory is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("appdirs: create %s: %w", dir, err)
	}
	return dir, nil
}
