// Command partd runs and inspects durable invocation partitions.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/partd/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
