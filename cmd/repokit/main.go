// Command repokit compiles repository declarations, runs conformance
// scenarios and invokes repository methods against SQLite.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/repokit/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err == nil {
		return
	}
	// commands print their own errors before returning an ExitError
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
