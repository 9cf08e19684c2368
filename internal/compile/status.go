package compile

import (
	"errors"
	"fmt"
	"sync"
)

// ErrWarningsAsErrors is returned by a run that accumulated warnings while
// warnings-as-errors was requested. The accumulated result is discarded.
var ErrWarningsAsErrors = errors.New("compilation failed due to warnings being treated as errors")

// Status is the per-run warning accumulator.
//
// It is created with the run and discarded with it; workers append through
// Warn concurrently and the scheduler reads it exactly once at end of run.
type Status struct {
	warningsAsErrors bool

	mu       sync.Mutex
	warnings []string
}

// NewStatus returns a fresh accumulator for one run.
func NewStatus(warningsAsErrors bool) *Status {
	return &Status{warningsAsErrors: warningsAsErrors}
}

// Warn records one non-fatal warning.
func (s *Status) Warn(format string, args ...any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.warnings = append(s.warnings, fmt.Sprintf(format, args...))
	s.mu.Unlock()
}

// Warnings returns a copy of the accumulated warnings.
func (s *Status) Warnings() []string {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.warnings))
	copy(out, s.warnings)
	return out
}

// Err returns ErrWarningsAsErrors when the run must abort, nil otherwise.
func (s *Status) Err() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.warningsAsErrors && len(s.warnings) > 0 {
		return fmt.Errorf("%w (%d warnings)", ErrWarningsAsErrors, len(s.warnings))
	}
	return nil
}
