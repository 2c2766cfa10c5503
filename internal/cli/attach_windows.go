//go:build windows
// +build windows

package cli

import (
	"context"
	"errors"

	"github.com/urfave/cli/v3"
)

func newAttachCommand(version string) *cli.Command {
	return &cli.Command{
		Name:      "attach",
		Usage:     "stream a terminal into the current tty",
		ArgsUsage: "<terminal-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return errors.New("attach is not supported on windows")
		},
	}
}
