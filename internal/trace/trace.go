// Package trace records the logical events of a compilation run in a
// canonical, timing-independent form.
//
// The trace captures decisions (unit started/compiled/failed, container
// produced), never runtime detail: no timestamps, no pointers, no error
// strings. It is observational only and must never affect scheduling.
package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// EventKind is the stable discriminator for Event. The string values are
// part of the canonical bytes; do not rename.
type EventKind string

const (
	EventUnitStarted       EventKind = "UnitStarted"
	EventUnitCompiled      EventKind = "UnitCompiled"
	EventUnitFailed        EventKind = "UnitFailed"
	EventContainerProduced EventKind = "ContainerProduced"
)

// Event is a single logical compilation event.
type Event struct {
	Kind EventKind

	// Unit is the source-unit path the event refers to. Required.
	Unit string

	// Container names the produced container for ContainerProduced events.
	Container string
}

// CompileTrace is the canonical record of one run.
//
// Because workers complete in nondeterministic order, Canonicalize imposes a
// total order over events so two runs of the same input compare equal.
type CompileTrace struct {
	Events []Event
}

// Validate checks basic invariants.
func (t *CompileTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	for i, e := range t.Events {
		if e.Kind == "" {
			return fmt.Errorf("events[%d].kind is required", i)
		}
		if e.Unit == "" {
			return fmt.Errorf("events[%d].unit is required", i)
		}
		if e.Kind == EventContainerProduced && e.Container == "" {
			return fmt.Errorf("events[%d].container is required for kind %q", i, e.Kind)
		}
	}
	return nil
}

// Canonicalize sorts events into their canonical total order:
// (unit, kind order, container).
func (t *CompileTrace) Canonicalize() {
	if t == nil {
		return
	}
	sort.SliceStable(t.Events, func(i, j int) bool {
		a, b := t.Events[i], t.Events[j]
		if a.Unit != b.Unit {
			return a.Unit < b.Unit
		}
		if kindOrder(a.Kind) != kindOrder(b.Kind) {
			return kindOrder(a.Kind) < kindOrder(b.Kind)
		}
		return a.Container < b.Container
	})
}

func kindOrder(k EventKind) int {
	switch k {
	case EventUnitStarted:
		return 10
	case EventContainerProduced:
		return 20
	case EventUnitCompiled:
		return 30
	case EventUnitFailed:
		return 40
	default:
		return 1000
	}
}

// CanonicalJSON returns the canonical JSON encoding of the trace. It works
// on a copy so the caller's slice order is untouched.
func (t CompileTrace) CanonicalJSON() ([]byte, error) {
	cp := CompileTrace{Events: make([]Event, len(t.Events))}
	copy(cp.Events, t.Events)
	cp.Canonicalize()
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(&cp)
}

// Hash returns the deterministic hash of the canonical JSON bytes.
func (t CompileTrace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return ComputeHash(b), nil
}

// MarshalJSON fixes field ordering; it does not sort (that is
// CanonicalJSON's responsibility).
func (t CompileTrace) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"events":[`)
	for i := range t.Events {
		if i > 0 {
			buf.WriteByte(',')
		}
		eb, err := json.Marshal(t.Events[i])
		if err != nil {
			return nil, err
		}
		buf.Write(eb)
	}
	buf.WriteString(`]}`)
	return buf.Bytes(), nil
}

// MarshalJSON fixes field ordering and omits the optional container field.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Kind == "" {
		return nil, errors.New("kind is required")
	}
	var buf bytes.Buffer
	buf.WriteString(`{"kind":`)
	kb, _ := json.Marshal(string(e.Kind))
	buf.Write(kb)
	buf.WriteString(`,"unit":`)
	ub, _ := json.Marshal(e.Unit)
	buf.Write(ub)
	if e.Container != "" {
		buf.WriteString(`,"container":`)
		cb, _ := json.Marshal(e.Container)
		buf.Write(cb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
