package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"weft/internal/compile"
	"weft/internal/lower"
	"weft/internal/syntax"
	"weft/internal/trace"
)

// CLIResult is the semantic outcome of a run.
type CLIResult struct {
	ExitCode   int
	Containers []string
}

// CodeGenerator consumes the lowered core forms of one unit. This layer's
// responsibility ends at lowering; implementations carry the forms into the
// back end.
type CodeGenerator interface {
	Generate(path string, cores []syntax.Core) error
}

// unitCompiler wires the lowering engine and its default collaborators into
// the scheduler's worker boundary. The field registry is shared across
// workers; everything else is built fresh per unit, so no lowering state
// crosses unit boundaries.
type unitCompiler struct {
	registry *lower.FieldRegistry
	codegen  CodeGenerator
	internal bool
}

func (u *unitCompiler) CompileUnit(path string, hs *compile.Handshake, status *compile.Status) (compile.UnitResult, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return compile.UnitResult{}, fmt.Errorf("reading %s: %w", path, err)
	}
	forms, err := ReadSource(path, string(src))
	if err != nil {
		return compile.UnitResult{}, err
	}

	engine := &lower.Engine{}
	var announce lower.Announcer = lower.NopAnnouncer{}
	if hs != nil {
		announce = hs
	}
	engine.Clauses = &lower.DefaultMatcher{Engine: engine}
	engine.Containers = &lower.DefaultContainers{Engine: engine, Registry: u.registry, Announce: announce}
	engine.Structs = u.registry
	engine.Refs = &lower.DefaultResolver{Engine: engine}
	if hs != nil {
		engine.Awaits = hs
	}

	ctx := syntax.Context{Filename: path, Internal: u.internal}
	cores := make([]syntax.Core, 0, len(forms))
	for _, f := range forms {
		core, nctx, err := engine.Lower(f, ctx)
		if err != nil {
			return compile.UnitResult{}, err
		}
		ctx = nctx
		cores = append(cores, core)
	}

	if u.codegen != nil {
		if err := u.codegen.Generate(path, cores); err != nil {
			return compile.UnitResult{}, err
		}
	}

	if len(ctx.Scheduled) == 0 {
		status.Warn("%s: unit declares no containers", path)
	}
	return compile.UnitResult{Path: path, Containers: ctx.Scheduled}, nil
}

// Execute maps a canonical Invocation to a compiler run and translates the
// outcome to a semantic exit code. Produced container names are printed to
// stdout in completion order; warnings go to stderr.
func Execute(inv Invocation, stdout, stderr io.Writer) (CLIResult, error) {
	var log *slog.Logger
	if inv.Verbose {
		log = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	var rec *trace.Recorder
	var sink trace.Sink
	if inv.TracePath != "" {
		rec = trace.NewRecorder()
		sink = rec
	}

	sched := &compile.Scheduler{
		Compiler:         &unitCompiler{registry: lower.NewFieldRegistry(), internal: inv.Internal},
		Parallelism:      inv.Jobs,
		WarningsAsErrors: inv.WarningsAsErrors,
		Log:              log,
		Sink:             sink,
	}

	containers, runErr := sched.Run(inv.Files, func(path string) {
		if inv.Verbose {
			fmt.Fprintf(stderr, "compiled %s\n", path)
		}
	})

	// The trace is finalized even when the run failed.
	if rec != nil {
		if b, err := rec.Trace().CanonicalJSON(); err == nil {
			if werr := os.WriteFile(inv.TracePath, b, 0o644); werr != nil {
				fmt.Fprintf(stderr, "writing trace: %v\n", werr)
			}
		}
	}

	if runErr != nil {
		fmt.Fprintln(stderr, runErr)
		return CLIResult{ExitCode: exitCodeFor(runErr)}, runErr
	}

	for _, c := range containers {
		fmt.Fprintln(stdout, c)
	}
	return CLIResult{ExitCode: ExitSuccess, Containers: containers}, nil
}

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, compile.ErrWarningsAsErrors):
		return ExitWarningsAsErrors
	case errors.Is(err, compile.ErrProtocol):
		return ExitInternalError
	default:
		return ExitCompileFailure
	}
}
