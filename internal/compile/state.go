package compile

import "fmt"

// UnitState is the scheduling state of one compilation unit.
type UnitState string

const (
	UnitQueued    UnitState = "QUEUED"
	UnitRunning   UnitState = "RUNNING"
	UnitSucceeded UnitState = "SUCCEEDED"
	UnitFailed    UnitState = "FAILED"
)

// IsTerminal reports whether the state is terminal.
func IsTerminal(s UnitState) bool {
	switch s {
	case UnitSucceeded, UnitFailed:
		return true
	default:
		return false
	}
}

// Transition performs a validated transition for a single unit.
//
// The caller supplies the expected prior state so scheduling bugs surface as
// errors instead of silent corruption. The map is mutated only when the
// transition is valid.
func Transition(states map[string]UnitState, path string, from, to UnitState) error {
	cur, ok := states[path]
	if !ok {
		return fmt.Errorf("unknown unit in state: %q", path)
	}
	if cur != from {
		return fmt.Errorf("invalid transition for %q: expected %s, got %s", path, from, cur)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition for %q: %s -> %s", path, from, to)
	}
	states[path] = to
	return nil
}

func isAllowedTransition(from, to UnitState) bool {
	switch from {
	case UnitQueued:
		return to == UnitRunning
	case UnitRunning:
		return to == UnitSucceeded || to == UnitFailed
	default:
		return false
	}
}
