package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
)

const (
	ExitSuccess           = 0
	ExitCompileFailure    = 1
	ExitInvalidInvocation = 2
	ExitWarningsAsErrors  = 3
	ExitInternalError     = 4
)

// Invocation is the canonicalized description of one compiler run.
//
// Paths are cleaned; no environment variables are consulted.
type Invocation struct {
	Files            []string
	Jobs             int
	WarningsAsErrors bool
	Internal         bool
	Verbose          bool
	TracePath        string
}

type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// ParseInvocation parses CLI flags and positional source files into a
// canonical Invocation.
func ParseInvocation(args []string) (Invocation, error) {
	fs := flag.NewFlagSet("weftc", flag.ContinueOnError)
	fs.SetOutput(io.Discard) // parsing errors are returned, not printed

	var inv Invocation
	fs.IntVar(&inv.Jobs, "jobs", 0, "Number of parallel compilation workers (0 = auto).")
	fs.BoolVar(&inv.WarningsAsErrors, "warnings-as-errors", false, "Abort the run if any unit produced a warning.")
	fs.BoolVar(&inv.Internal, "internal", false, "Compiler-internal mode: reserved attributes compile to no-ops.")
	fs.BoolVar(&inv.Verbose, "verbose", false, "Log scheduling decisions to stderr.")
	fs.StringVar(&inv.TracePath, "trace", "", "Write a canonical compile trace to this path (optional).")

	if err := fs.Parse(args); err != nil {
		return Invocation{}, invalidInvocationf("%v", err)
	}
	if fs.NArg() == 0 {
		return Invocation{}, invalidInvocationf("no source files given")
	}
	if inv.Jobs < 0 {
		return Invocation{}, invalidInvocationf("-jobs must not be negative (got %d)", inv.Jobs)
	}

	seen := make(map[string]bool, fs.NArg())
	for _, f := range fs.Args() {
		clean := filepath.Clean(f)
		if seen[clean] {
			return Invocation{}, invalidInvocationf("duplicate source file: %q", f)
		}
		seen[clean] = true
		inv.Files = append(inv.Files, clean)
	}
	if inv.TracePath != "" {
		inv.TracePath = filepath.Clean(inv.TracePath)
	}
	return inv, nil
}

// ExitCode extracts a semantic exit code from an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	return ExitInternalError
}
