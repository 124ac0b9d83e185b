package main

import (
	"fmt"
	"os"

	"tempolock/internal/cmd"
)

var (
	version = "dev"
	commit  string
)

func main() {
	if err := cmd.Execute(os.Args, cmd.BuildArgs{Version: version, Commit: commit}); err != nil {
		fmt.Fprintf(os.Stderr, "tempolock: %s\n", err)
		os.Exit(1)
	}
}
