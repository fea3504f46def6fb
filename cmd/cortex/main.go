// Command cortex builds, trains, and queries hierarchical self-organizing
// map graphs described in CUE.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/cortex/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
