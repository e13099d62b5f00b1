// Command ddnet runs the dataflow nodes assigned to this host.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/ddnet/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) || exitErr.Err == nil {
			// Errors with a cause were already reported by the command.
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	os.Exit(cli.GetExitCode(err))
}
