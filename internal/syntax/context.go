package syntax

// Context is the scope state threaded through lowering.
//
// It is a value type: every recursive call receives its own copy and returns
// the (possibly updated) copy to its caller. Nothing in this layer shares a
// Context across goroutines or mutates one in place behind a pointer.
type Context struct {
	// Container is the enclosing container name, "" at top level.
	Container string

	// InGuard marks a restricted test position (pure expressions only).
	InGuard bool

	// InFuncBody marks positions inside a procedure body, where container
	// level forms (attributes, definitions) are illegal.
	InFuncBody bool

	// Filename is the source unit the forms came from, for fault reporting.
	Filename string

	// Scheduled accumulates container names declared by this unit, in
	// declaration order. It only grows, and is never shared across units.
	Scheduled []string

	// NoAutoName suppresses stable auto-naming of nested anonymous callables;
	// set across the regions of an exception-handling form.
	NoAutoName bool

	// Internal enables compiler-internal mode, where reserved attributes
	// compile to no-ops.
	Internal bool
}

// Schedule returns a context with name appended to the scheduled containers.
//
// The slice is copied on append so sibling contexts never alias the same
// backing array.
func (c Context) Schedule(name string) Context {
	next := make([]string, len(c.Scheduled), len(c.Scheduled)+1)
	copy(next, c.Scheduled)
	c.Scheduled = append(next, name)
	return c
}

// EnterContainer returns the nested scope opened by a container body.
func (c Context) EnterContainer(name string) Context {
	c.Container = name
	c.InFuncBody = false
	return c
}
