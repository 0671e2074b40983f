// Command plent keeps schematic repositories in step with chat channels.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/plent/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "plent:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
