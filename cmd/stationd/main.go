// stationd runs the session daemon directly, without the CLI front end.
// Desktop shells exec this binary and talk to it over the unix socket.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/northslopetech/agent-station/internal/logging"
	"github.com/northslopetech/agent-station/internal/session"
	"github.com/northslopetech/agent-station/internal/stationconfig"
	"github.com/northslopetech/agent-station/internal/stationd"
)

var version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	closeLogger, err := logging.Init(logging.Config{}, logging.InitOptions{
		Version: version,
		Mode:    logging.ModeDaemon,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "stationd: init logging: %v\n", err)
		return 1
	}
	if closeLogger != nil {
		defer func() { _ = closeLogger() }()
	}

	store, err := stationconfig.Open("")
	if err != nil {
		slog.Error("open project config failed", "err", err)
		return 1
	}
	registry := session.NewRegistry(session.Options{
		DisplayName: store.TerminalName,
	})
	daemon, err := stationd.New(stationd.Config{
		Version:  version,
		Registry: registry,
		Store:    store,
	})
	if err != nil {
		slog.Error("daemon setup failed", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		daemon.Close()
	}()
	if err := daemon.Serve(ctx); err != nil {
		slog.Error("daemon failed", "err", err)
		return 1
	}
	return 0
}
