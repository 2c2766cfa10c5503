package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/northslopetech/agent-station/internal/userpath"
)

const requestTimeout = 10 * time.Second

func newListCommand(version string) *cli.Command {
	return &cli.Command{
		Name:  "ls",
		Usage: "list terminals",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "project",
				Usage: "limit to one project",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, cancel := context.WithTimeout(ctx, requestTimeout)
			defer cancel()
			client, err := dialClient(ctx, cmd, version)
			if err != nil {
				return err
			}
			defer client.Close()
			terminals, err := client.ListTerminals(ctx, cmd.String("project"))
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPROJECT\tNAME\tPID\tSTATE")
			for _, t := range terminals {
				state := "running"
				if !t.IsRunning {
					state = "dead"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", t.ID, t.ProjectID, t.DisplayName, t.PID, state)
			}
			return w.Flush()
		},
	}
}

func newSpawnCommand(version string) *cli.Command {
	return &cli.Command{
		Name:      "spawn",
		Usage:     "spawn a terminal for a project",
		ArgsUsage: "<project-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "dir",
				Usage: "working directory (defaults to the project path)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			projectID := strings.TrimSpace(cmd.Args().First())
			if projectID == "" {
				return fmt.Errorf("project id is required")
			}
			ctx, cancel := context.WithTimeout(ctx, requestTimeout)
			defer cancel()
			client, err := dialClient(ctx, cmd, version)
			if err != nil {
				return err
			}
			defer client.Close()
			info, err := client.SpawnTerminal(ctx, projectID, userpath.ExpandUser(cmd.String("dir")))
			if err != nil {
				return err
			}
			fmt.Println(info.ID)
			return nil
		},
	}
}

func newWriteCommand(version string) *cli.Command {
	return &cli.Command{
		Name:      "write",
		Usage:     "write bytes to a terminal's input",
		ArgsUsage: "<terminal-id> [text]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "stdin",
				Usage: "read input from stdin instead of the argument",
			},
			&cli.BoolFlag{
				Name:  "enter",
				Usage: "append a carriage return",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			terminalID := strings.TrimSpace(cmd.Args().First())
			if terminalID == "" {
				return fmt.Errorf("terminal id is required")
			}
			var data []byte
			if cmd.Bool("stdin") {
				raw, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				data = raw
			} else {
				data = []byte(cmd.Args().Get(1))
			}
			if cmd.Bool("enter") {
				data = append(data, '\r')
			}
			ctx, cancel := context.WithTimeout(ctx, requestTimeout)
			defer cancel()
			client, err := dialClient(ctx, cmd, version)
			if err != nil {
				return err
			}
			defer client.Close()
			return client.WriteTerminal(ctx, terminalID, data)
		},
	}
}

func newResizeCommand(version string) *cli.Command {
	return &cli.Command{
		Name:      "resize",
		Usage:     "resize a terminal",
		ArgsUsage: "<terminal-id> <cols> <rows>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			terminalID := strings.TrimSpace(cmd.Args().First())
			cols, err := strconv.Atoi(cmd.Args().Get(1))
			if err != nil {
				return fmt.Errorf("cols must be a number: %w", err)
			}
			rows, err := strconv.Atoi(cmd.Args().Get(2))
			if err != nil {
				return fmt.Errorf("rows must be a number: %w", err)
			}
			ctx, cancel := context.WithTimeout(ctx, requestTimeout)
			defer cancel()
			client, err := dialClient(ctx, cmd, version)
			if err != nil {
				return err
			}
			defer client.Close()
			return client.ResizeTerminal(ctx, terminalID, cols, rows)
		},
	}
}

func newKillCommand(version string) *cli.Command {
	return &cli.Command{
		Name:      "kill",
		Usage:     "close a terminal",
		ArgsUsage: "<terminal-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			terminalID := strings.TrimSpace(cmd.Args().First())
			if terminalID == "" {
				return fmt.Errorf("terminal id is required")
			}
			ctx, cancel := context.WithTimeout(ctx, requestTimeout)
			defer cancel()
			client, err := dialClient(ctx, cmd, version)
			if err != nil {
				return err
			}
			defer client.Close()
			return client.KillTerminal(ctx, terminalID)
		},
	}
}

func newRenameCommand(version string) *cli.Command {
	return &cli.Command{
		Name:      "rename",
		Usage:     "rename a terminal",
		ArgsUsage: "<terminal-id> <name>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			terminalID := strings.TrimSpace(cmd.Args().First())
			name := cmd.Args().Get(1)
			if terminalID == "" || strings.TrimSpace(name) == "" {
				return fmt.Errorf("terminal id and name are required")
			}
			ctx, cancel := context.WithTimeout(ctx, requestTimeout)
			defer cancel()
			client, err := dialClient(ctx, cmd, version)
			if err != nil {
				return err
			}
			defer client.Close()
			info, err := client.RenameTerminal(ctx, terminalID, name)
			if err != nil {
				return err
			}
			fmt.Printf("%s -> %s\n", info.ID, info.DisplayName)
			return nil
		},
	}
}
