package compile

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"

	"weft/internal/trace"
)

// ErrProtocol marks an internal scheduler fault: a termination message that
// does not match a live registry entry.
var ErrProtocol = errors.New("internal scheduler protocol error")

// UnitResult is a worker's successful outcome for one source unit.
type UnitResult struct {
	Path       string
	Containers []string
}

// UnitCompiler performs load, lowering and downstream code generation for a
// single source unit. Implementations may use the handshake to coordinate
// structural dependencies with other in-flight units and the status
// accumulator to report warnings.
type UnitCompiler interface {
	CompileUnit(path string, hs *Handshake, status *Status) (UnitResult, error)
}

// UnitError preserves a fault captured inside a worker: the original value
// and the stack captured at the point of failure.
type UnitError struct {
	Path  string
	Value any
	Stack []byte
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("compiling %s: %v", e.Path, e.Value)
}

// workerHandle is a live registry entry for one in-flight unit.
type workerHandle struct {
	id   int64
	path string
}

// Scheduler drives the concurrent compilation of source units.
//
// A single event loop supervises up to Parallelism workers; workers execute
// in parallel with each other while the loop serializes completion handling
// and the dependency handshake.
type Scheduler struct {
	Compiler UnitCompiler

	// Parallelism bounds the live worker registry. Zero or negative selects
	// max(hardware threads, 2).
	Parallelism int

	// WarningsAsErrors escalates accumulated warnings to a run abort.
	WarningsAsErrors bool

	Log  *slog.Logger
	Sink trace.Sink
}

// Run compiles every unit in paths, invoking onUnitDone once per completed
// unit in completion order, and returns the produced container names, also
// in completion order with each unit's names grouped together.
//
// The first failing unit aborts the run: its fault is returned unchanged and
// results of other in-flight workers are discarded. If warnings occurred and
// warnings-as-errors is active, the run aborts after draining instead of
// returning its result.
func (s *Scheduler) Run(paths []string, onUnitDone func(string)) ([]string, error) {
	status := NewStatus(s.WarningsAsErrors)
	bound := s.Parallelism
	if bound <= 0 {
		bound = runtime.NumCPU()
		if bound < 2 {
			bound = 2
		}
	}
	log := s.Log
	if log == nil {
		log = slog.New(discardHandler{})
	}

	events := make(chan event)
	hs := &Handshake{events: events}

	queue := make([]string, len(paths))
	copy(queue, paths)
	states := make(map[string]UnitState, len(paths))
	for _, p := range queue {
		states[p] = UnitQueued
	}

	registry := make(map[int64]*workerHandle, bound)
	var produced []string
	var nextID int64

	fail := func(err error) ([]string, error) {
		// Abandoned workers still hold the inbox; keep draining so their
		// handshakes release and their terminal messages land somewhere.
		go drain(events, len(registry))
		return nil, err
	}

	for len(queue) > 0 || len(registry) > 0 {
		if len(queue) > 0 && len(registry) < bound {
			path := queue[0]
			queue = queue[1:]
			nextID++
			h := &workerHandle{id: nextID, path: path}
			registry[h.id] = h
			if err := Transition(states, path, UnitQueued, UnitRunning); err != nil {
				return fail(err)
			}
			log.Debug("spawn worker", slog.Int64("id", h.id), slog.String("path", path))
			trace.SafeRecord(s.Sink, trace.Event{Kind: trace.EventUnitStarted, Unit: path})
			go s.runWorker(h, hs, status, events)
			continue
		}

		switch m := (<-events).(type) {
		case unitDone:
			if _, ok := registry[m.id]; !ok {
				return fail(fmt.Errorf("%w: termination from unknown worker %d", ErrProtocol, m.id))
			}
			delete(registry, m.id)

			if m.err != nil {
				_ = Transition(states, m.path, UnitRunning, UnitFailed)
				log.Debug("unit failed", slog.String("path", m.path))
				trace.SafeRecord(s.Sink, trace.Event{Kind: trace.EventUnitFailed, Unit: m.path})
				return fail(m.err)
			}
			if err := Transition(states, m.path, UnitRunning, UnitSucceeded); err != nil {
				return fail(err)
			}
			if onUnitDone != nil {
				onUnitDone(m.path)
			}
			produced = append(produced, m.result.Containers...)
			log.Debug("unit compiled",
				slog.String("path", m.path),
				slog.Int("containers", len(m.result.Containers)))
			trace.SafeRecord(s.Sink, trace.Event{Kind: trace.EventUnitCompiled, Unit: m.path})
			for _, c := range m.result.Containers {
				trace.SafeRecord(s.Sink, trace.Event{Kind: trace.EventContainerProduced, Unit: m.path, Container: c})
			}

		case containerAvailable:
			close(m.ack)

		case structAvailable:
			// Informational only.

		case structWait:
			// Always release: ordering is guaranteed by unit completion, not
			// by broker-mediated waiting; queuing the request would stall the
			// requester on a reply that cannot change scheduling order.
			close(m.reply)
		}
	}

	if err := status.Err(); err != nil {
		return nil, err
	}
	return produced, nil
}

// runWorker executes one unit and delivers exactly one terminal message.
// A panic inside the unit's compilation is captured with its stack and
// surfaced as a UnitError, never lost.
func (s *Scheduler) runWorker(h *workerHandle, hs *Handshake, status *Status, events chan<- event) {
	defer func() {
		if r := recover(); r != nil {
			events <- unitDone{
				id:   h.id,
				path: h.path,
				err:  &UnitError{Path: h.path, Value: r, Stack: debug.Stack()},
			}
		}
	}()
	result, err := s.Compiler.CompileUnit(h.path, hs, status)
	if err != nil {
		events <- unitDone{id: h.id, path: h.path, err: err}
		return
	}
	result.Path = h.path
	events <- unitDone{id: h.id, path: h.path, result: result}
}

// drain consumes events from abandoned workers after an abort so that each
// of them can reach its own terminal message.
func drain(events <-chan event, remaining int) {
	for remaining > 0 {
		switch m := (<-events).(type) {
		case unitDone:
			remaining--
		case containerAvailable:
			close(m.ack)
		case structWait:
			close(m.reply)
		}
	}
}
