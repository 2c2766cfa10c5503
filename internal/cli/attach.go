//go:build !windows
// +build !windows

package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/muesli/cancelreader"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/northslopetech/agent-station/internal/stationd"
)

func newAttachCommand(version string) *cli.Command {
	return &cli.Command{
		Name:      "attach",
		Usage:     "stream a terminal into the current tty",
		ArgsUsage: "<terminal-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-input",
				Usage: "observe output only; do not forward stdin",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			terminalID := strings.TrimSpace(cmd.Args().First())
			if terminalID == "" {
				return fmt.Errorf("terminal id is required")
			}
			return runAttach(ctx, cmd, version, terminalID)
		},
	}
}

// runAttach bridges the local tty to a daemon-side terminal: stdin bytes go
// to the terminal, output events go to stdout unmodified. Detaching with
// Ctrl-] leaves the terminal running; a terminal_exit event ends the bridge.
func runAttach(ctx context.Context, cmd *cli.Command, version, terminalID string) error {
	client, err := dialClient(ctx, cmd, version)
	if err != nil {
		return err
	}
	defer client.Close()

	subID, err := client.AttachTerminal(ctx, terminalID)
	if err != nil {
		return err
	}

	stdinFD := int(os.Stdin.Fd())
	interactive := !cmd.Bool("no-input") && term.IsTerminal(stdinFD)
	if interactive {
		oldState, err := term.MakeRaw(stdinFD)
		if err != nil {
			return fmt.Errorf("raw mode: %w", err)
		}
		defer term.Restore(stdinFD, oldState)

		if cols, rows, err := term.GetSize(stdinFD); err == nil {
			_ = client.ResizeTerminal(ctx, terminalID, cols, rows)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Track local window size changes while attached.
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-winch:
				if cols, rows, err := term.GetSize(stdinFD); err == nil {
					_ = client.ResizeTerminal(ctx, terminalID, cols, rows)
				}
			}
		}
	}()

	var reader cancelreader.CancelReader
	inputDone := make(chan struct{})
	if interactive {
		reader, err = cancelreader.NewReader(os.Stdin)
		if err != nil {
			return fmt.Errorf("stdin reader: %w", err)
		}
		go func() {
			defer close(inputDone)
			buf := make([]byte, 4096)
			for {
				n, err := reader.Read(buf)
				if n > 0 {
					if i := bytes.IndexByte(buf[:n], 0x1d); i >= 0 { // Ctrl-]
						if i > 0 {
							_ = client.WriteTerminal(ctx, terminalID, buf[:i])
						}
						cancel()
						return
					}
					if werr := client.WriteTerminal(ctx, terminalID, buf[:n]); werr != nil {
						cancel()
						return
					}
				}
				if err != nil {
					cancel()
					return
				}
			}
		}()
	} else {
		close(inputDone)
	}

	exitStatus := 0
	exited := false
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case ev, ok := <-client.Events():
			if !ok {
				break loop
			}
			if ev.SubscriptionID != subID {
				continue
			}
			switch ev.Type {
			case stationd.EventTerminalOutput:
				_, _ = os.Stdout.Write(ev.Data)
			case stationd.EventTerminalExit:
				exited = true
				exitStatus = ev.ExitStatus
				break loop
			}
		}
	}

	if reader != nil {
		reader.Cancel()
		<-inputDone
	}
	if exited {
		fmt.Fprintf(os.Stderr, "\r\n[terminal exited: status %d]\r\n", exitStatus)
	} else {
		_ = client.DetachTerminal(context.Background(), subID)
		fmt.Fprint(os.Stderr, "\r\n[detached]\r\n")
	}
	return nil
}
