package main

import (
	"os"

	"github.com/northslopetech/agent-station/internal/cli"
)

var version = "0.1.0"

func main() {
	os.Exit(cli.Run(os.Args, version))
}
