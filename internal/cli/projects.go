package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/northslopetech/agent-station/internal/userpath"
)

func newProjectsCommand(version string) *cli.Command {
	return &cli.Command{
		Name:  "projects",
		Usage: "manage the project list",
		Commands: []*cli.Command{
			{
				Name:  "ls",
				Usage: "list configured projects",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					ctx, cancel := context.WithTimeout(ctx, requestTimeout)
					defer cancel()
					client, err := dialClient(ctx, cmd, version)
					if err != nil {
						return err
					}
					defer client.Close()
					projects, err := client.Projects(ctx)
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
					fmt.Fprintln(w, "ID\tNAME\tPATH")
					for _, p := range projects {
						fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Name, userpath.ShortenUser(p.Path))
					}
					return w.Flush()
				},
			},
			{
				Name:      "add",
				Usage:     "register a project folder",
				ArgsUsage: "<path>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					path := userpath.ExpandUser(strings.TrimSpace(cmd.Args().First()))
					if path == "" {
						return fmt.Errorf("path is required")
					}
					ctx, cancel := context.WithTimeout(ctx, requestTimeout)
					defer cancel()
					client, err := dialClient(ctx, cmd, version)
					if err != nil {
						return err
					}
					defer client.Close()
					info, err := client.AddProject(ctx, path)
					if err != nil {
						return err
					}
					fmt.Println(info.ID)
					return nil
				},
			},
			{
				Name:      "rm",
				Usage:     "remove a project from the list",
				ArgsUsage: "<project-id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id := strings.TrimSpace(cmd.Args().First())
					if id == "" {
						return fmt.Errorf("project id is required")
					}
					ctx, cancel := context.WithTimeout(ctx, requestTimeout)
					defer cancel()
					client, err := dialClient(ctx, cmd, version)
					if err != nil {
						return err
					}
					defer client.Close()
					return client.RemoveProject(ctx, id)
				},
			},
		},
	}
}

func newActivateCommand(version string) *cli.Command {
	return &cli.Command{
		Name:      "activate",
		Usage:     "switch to a project, reusing or spawning its terminals",
		ArgsUsage: "<project-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := strings.TrimSpace(cmd.Args().First())
			if id == "" {
				return fmt.Errorf("project id is required")
			}
			ctx, cancel := context.WithTimeout(ctx, requestTimeout)
			defer cancel()
			client, err := dialClient(ctx, cmd, version)
			if err != nil {
				return err
			}
			defer client.Close()
			terminals, spawned, err := client.ActivateProject(ctx, id)
			if err != nil {
				return err
			}
			if spawned {
				fmt.Fprintln(os.Stderr, "Spawned initial terminal.")
			}
			for _, t := range terminals {
				fmt.Println(t.ID)
			}
			return nil
		},
	}
}
