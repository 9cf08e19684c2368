package main

import (
	"fmt"
	"os"

	"weft/internal/cli"
)

// main is a deterministic boundary: all inputs are canonicalized into an
// Invocation before any compiler logic runs, and run outcomes map to the
// semantic exit-code taxonomy (including the distinct warnings-as-errors
// status).
func main() {
	result, err := cli.Run(os.Args[1:], os.Stdout, os.Stderr)
	if err != nil && result.ExitCode == cli.ExitInvalidInvocation {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(result.ExitCode)
}
