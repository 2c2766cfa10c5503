// Package cli implements the station command tree.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/northslopetech/agent-station/internal/logging"
	"github.com/northslopetech/agent-station/internal/stationd"
)

// Run starts the CLI and returns the process exit code.
func Run(args []string, version string) int {
	mode := logging.ModeCLI
	if isDaemonInvocation(args) {
		mode = logging.ModeDaemon
	}
	closeLogger, err := logging.Init(logging.Config{}, logging.InitOptions{
		Version: version,
		Mode:    mode,
	})
	if err != nil {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
		slog.Error("init logging failed; using stderr fallback", "err", err)
	} else if closeLogger != nil {
		defer func() { _ = closeLogger() }()
	}

	root := newRootCommand(version)
	if err := root.Run(context.Background(), args); err != nil {
		if exitErr, ok := err.(cli.ExitCoder); ok {
			return exitErr.ExitCode()
		}
		fmt.Fprintf(os.Stderr, "station: %v\n", err)
		return 1
	}
	return 0
}

func isDaemonInvocation(args []string) bool {
	for _, a := range args[1:] {
		switch a {
		case "daemon":
			return true
		case "--help", "-h", "--version", "-v":
			return false
		}
	}
	return false
}

func newRootCommand(version string) *cli.Command {
	return &cli.Command{
		Name:    "station",
		Usage:   "manage agent terminal sessions",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "socket",
				Usage: "daemon socket path (defaults to the runtime dir)",
			},
		},
		Commands: []*cli.Command{
			newDaemonCommand(version),
			newProjectsCommand(version),
			newActivateCommand(version),
			newListCommand(version),
			newSpawnCommand(version),
			newWriteCommand(version),
			newResizeCommand(version),
			newKillCommand(version),
			newRenameCommand(version),
			newAttachCommand(version),
		},
	}
}

// dialClient connects to the daemon using the global --socket override.
func dialClient(ctx context.Context, cmd *cli.Command, version string) (*stationd.Client, error) {
	client, err := stationd.Dial(ctx, cmd.String("socket"), version)
	if err != nil {
		if stationd.IsConnectionError(err) {
			return nil, fmt.Errorf("daemon not running (start it with `station daemon`): %w", err)
		}
		return nil, err
	}
	return client, nil
}
