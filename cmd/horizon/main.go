// Command horizon runs plan scenarios, validates resource models and
// inspects persisted simulation history.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/horizon/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
