package compile

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"sort"
	"sync"
	"testing"
	"time"
)

// fakeCompiler is a scriptable UnitCompiler that tracks concurrency.
type fakeCompiler struct {
	containers map[string][]string
	fail       map[string]error
	panics     map[string]any
	delay      map[string]time.Duration
	gate       map[string]<-chan struct{}
	warn       map[string]string
	handshake  func(path string, hs *Handshake)

	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	counts      map[string]int
}

func (c *fakeCompiler) CompileUnit(path string, hs *Handshake, status *Status) (UnitResult, error) {
	c.mu.Lock()
	c.inFlight++
	if c.inFlight > c.maxInFlight {
		c.maxInFlight = c.inFlight
	}
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[path]++
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight--
		c.mu.Unlock()
	}()

	if d := c.delay[path]; d > 0 {
		time.Sleep(d)
	}
	if g := c.gate[path]; g != nil {
		<-g
	}
	// Encourage scheduler interleavings.
	runtime.Gosched()

	if c.handshake != nil {
		c.handshake(path, hs)
	}
	if msg, ok := c.warn[path]; ok {
		status.Warn("%s", msg)
	}
	if v, ok := c.panics[path]; ok {
		panic(v)
	}
	if err, ok := c.fail[path]; ok {
		return UnitResult{}, err
	}
	return UnitResult{Path: path, Containers: c.containers[path]}, nil
}

func TestScheduler_BoundedRegistryAndTermination(t *testing.T) {
	const parallelism = 3
	comp := &fakeCompiler{
		containers: map[string][]string{},
		delay:      map[string]time.Duration{},
	}
	var paths []string
	for i := 0; i < 12; i++ {
		p := fmt.Sprintf("u%02d.src", i)
		paths = append(paths, p)
		comp.containers[p] = []string{fmt.Sprintf("C%02d", i)}
		comp.delay[p] = time.Duration(i%3) * time.Millisecond
	}

	var mu sync.Mutex
	var done []string
	sched := &Scheduler{Compiler: comp, Parallelism: parallelism}
	produced, err := sched.Run(paths, func(path string) {
		mu.Lock()
		done = append(done, path)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if comp.maxInFlight > parallelism {
		t.Fatalf("registry bound violated: %d workers in flight", comp.maxInFlight)
	}
	if len(done) != len(paths) {
		t.Fatalf("onUnitDone fired %d times, want %d", len(done), len(paths))
	}
	for _, p := range paths {
		if comp.counts[p] != 1 {
			t.Fatalf("unit %s compiled %d times", p, comp.counts[p])
		}
	}

	got := append([]string(nil), produced...)
	sort.Strings(got)
	var want []string
	for i := range paths {
		want = append(want, fmt.Sprintf("C%02d", i))
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("produced containers mismatch: %v", got)
	}
}

func TestScheduler_CompletionOrderKeepsUnitNamesGrouped(t *testing.T) {
	aDone := make(chan struct{})
	comp := &fakeCompiler{
		containers: map[string][]string{
			"a.src": {"A"},
			"b.src": {"B1", "B2"},
		},
		// b.src cannot finish before a.src's completion is handled.
		gate: map[string]<-chan struct{}{"b.src": aDone},
	}

	var done []string
	sched := &Scheduler{Compiler: comp, Parallelism: 2}
	produced, err := sched.Run([]string{"a.src", "b.src"}, func(path string) {
		done = append(done, path) // serialized in the scheduler loop
		if path == "a.src" {
			close(aDone)
		}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(done, []string{"a.src", "b.src"}) {
		t.Fatalf("completion order mismatch: %v", done)
	}
	// Completion order, with each unit's names grouped together.
	if !reflect.DeepEqual(produced, []string{"A", "B1", "B2"}) {
		t.Fatalf("produced names mismatch: %v", produced)
	}
}

func TestScheduler_FailurePropagatesOriginalFault(t *testing.T) {
	sentinel := errors.New("unit exploded")
	comp := &fakeCompiler{
		containers: map[string][]string{"a.src": {"A"}},
		fail:       map[string]error{"b.src": sentinel},
	}

	sched := &Scheduler{Compiler: comp, Parallelism: 2}
	produced, err := sched.Run([]string{"a.src", "b.src", "c.src"}, nil)
	if produced != nil {
		t.Fatalf("failed run must not return a result: %v", produced)
	}
	if !errors.Is(err, sentinel) {
		t.Fatalf("original fault not preserved: %v", err)
	}
}

func TestScheduler_PanicCapturedWithStack(t *testing.T) {
	comp := &fakeCompiler{
		panics: map[string]any{"a.src": "boom"},
	}

	sched := &Scheduler{Compiler: comp, Parallelism: 1}
	_, err := sched.Run([]string{"a.src"}, nil)

	var ue *UnitError
	if !errors.As(err, &ue) {
		t.Fatalf("expected *UnitError, got %T: %v", err, err)
	}
	if ue.Value != "boom" || ue.Path != "a.src" {
		t.Fatalf("captured fault mismatch: %+v", ue)
	}
	if len(ue.Stack) == 0 {
		t.Fatalf("captured stack must not be empty")
	}
}

func TestScheduler_HandshakeAlwaysReleases(t *testing.T) {
	released := false
	comp := &fakeCompiler{
		containers: map[string][]string{"w.src": {"W"}},
		handshake: func(path string, hs *Handshake) {
			hs.ContainerDeclared("W")
			hs.StructDeclared("W")
			// Nothing will ever declare this struct; the broker must still
			// release the wait immediately.
			hs.AwaitStruct("NeverDeclared")
			released = true
		},
	}

	sched := &Scheduler{Compiler: comp, Parallelism: 1}
	doneCh := make(chan struct{})
	var produced []string
	var err error
	go func() {
		produced, err = sched.Run([]string{"w.src"}, nil)
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-time.After(5 * time.Second):
		t.Fatalf("handshake deadlocked")
	}
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !released {
		t.Fatalf("worker was not released from its struct wait")
	}
	if !reflect.DeepEqual(produced, []string{"W"}) {
		t.Fatalf("produced mismatch: %v", produced)
	}
}

func TestScheduler_WarningsAsErrors(t *testing.T) {
	comp := &fakeCompiler{
		containers: map[string][]string{"a.src": {"A"}},
		warn:       map[string]string{"a.src": "something looked off"},
	}

	sched := &Scheduler{Compiler: comp, Parallelism: 1, WarningsAsErrors: true}
	produced, err := sched.Run([]string{"a.src"}, nil)
	if !errors.Is(err, ErrWarningsAsErrors) {
		t.Fatalf("expected warnings-as-errors abort, got %v", err)
	}
	if produced != nil {
		t.Fatalf("aborted run must discard its result: %v", produced)
	}

	// The same run without escalation succeeds.
	sched = &Scheduler{Compiler: comp, Parallelism: 1}
	produced, err = sched.Run([]string{"a.src"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(produced, []string{"A"}) {
		t.Fatalf("produced mismatch: %v", produced)
	}
}

func TestScheduler_NoTasks(t *testing.T) {
	sched := &Scheduler{Compiler: &fakeCompiler{}}
	produced, err := sched.Run(nil, nil)
	if err != nil || len(produced) != 0 {
		t.Fatalf("empty run must succeed with no result: %v %v", produced, err)
	}
}

func TestStatus_Accumulates(t *testing.T) {
	st := NewStatus(true)
	if err := st.Err(); err != nil {
		t.Fatalf("fresh status must not error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st.Warn("warning %d", i)
		}(i)
	}
	wg.Wait()

	if got := len(st.Warnings()); got != 8 {
		t.Fatalf("expected 8 warnings, got %d", got)
	}
	if !errors.Is(st.Err(), ErrWarningsAsErrors) {
		t.Fatalf("expected escalation, got %v", st.Err())
	}
}
