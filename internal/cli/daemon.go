package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/northslopetech/agent-station/internal/session"
	"github.com/northslopetech/agent-station/internal/stationconfig"
	"github.com/northslopetech/agent-station/internal/stationd"
)

func newDaemonCommand(version string) *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "run the session daemon in the foreground",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "command",
				Usage: "override the shell spawned for new terminals",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runDaemon(ctx, cmd, version)
		},
		Commands: []*cli.Command{
			{
				Name:  "stop",
				Usage: "ask a running daemon to exit",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return stopDaemon(ctx, cmd, version)
				},
			},
		},
	}
}

func runDaemon(ctx context.Context, cmd *cli.Command, version string) error {
	store, err := stationconfig.Open("")
	if err != nil {
		return fmt.Errorf("open project config: %w", err)
	}
	registry := session.NewRegistry(session.Options{
		DisplayName: store.TerminalName,
		Command:     cmd.String("command"),
	})
	daemon, err := stationd.New(stationd.Config{
		SocketPath: cmd.String("socket"),
		Version:    version,
		Registry:   registry,
		Reconciler: session.NewReconciler(registry),
		Store:      store,
	})
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		daemon.Close()
	}()
	return daemon.Serve(sigCtx)
}

func stopDaemon(ctx context.Context, cmd *cli.Command, version string) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	client, err := dialClient(ctx, cmd, version)
	if err != nil {
		return err
	}
	defer client.Close()
	if err := client.Shutdown(ctx); err != nil {
		return fmt.Errorf("stop daemon: %w", err)
	}
	fmt.Fprintln(os.Stderr, "Daemon stopped.")
	return nil
}
