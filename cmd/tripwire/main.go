// Command tripwire stores trigger-based schedules and runs them against an
// event stream.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/tripwire/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
