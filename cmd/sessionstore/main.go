// Command sessionstore inspects study configs and session snapshots.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/sessionstore/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
