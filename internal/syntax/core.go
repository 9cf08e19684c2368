package syntax

// Kind discriminates Core variants.
//
// The string values are stable; tests and the trace layer compare them
// directly.
type Kind string

const (
	KindLiteral      Kind = "literal"
	KindVarRef       Kind = "varRef"
	KindRebind       Kind = "rebind"
	KindOp           Kind = "op"
	KindCall         Kind = "call"
	KindTuple        Kind = "tuple"
	KindBlock        Kind = "block"
	KindClause       Kind = "clause"
	KindBranch       Kind = "branch"
	KindTryCatch     Kind = "tryCatch"
	KindReceive      Kind = "receive"
	KindContainerDef Kind = "containerDef"
	KindProcDef      Kind = "procDef"
	KindWildcard     Kind = "wildcard"
	KindNoop         Kind = "noop"
)

// Core is a lowered syntax node, the only output type of the lowering engine.
//
// It is a single tagged variant; which fields are meaningful depends on Kind:
//
//	literal       Value
//	varRef/rebind Name
//	op            Name (operator), Args (operands, order preserved)
//	call          Name (selector), Target (optional receiver), Args
//	tuple/block   Args
//	clause        Args (patterns), Clauses (guards), Body
//	branch        Target (subject), Clauses
//	tryCatch      Body, Clauses (catch arms), After
//	receive       Clauses, Timeout (nil when no timeout arm)
//	containerDef  Name, Body (lowered container body)
//	procDef       Name, Value (proc kind), Args (lowered params),
//	              Clauses (lowered guards), Deferred (opaque body tree)
type Core struct {
	Kind    Kind
	Line    int
	Name    string
	Value   any
	Target  *Core
	Args    []Core
	Body    []Core
	Clauses []Core
	After   []Core
	Timeout *Core
	// Deferred carries a surface tree kept opaque at this stage; downstream
	// code generation lowers it in its own pass.
	Deferred *Form
}

// Literal builds a literal core node.
func Literal(line int, v any) Core { return Core{Kind: KindLiteral, Line: line, Value: v} }

// IsLiteralName reports whether c is a literal holding a constant name
// (an Atom), returning the name.
func (c Core) IsLiteralName() (string, bool) {
	if c.Kind != KindLiteral {
		return "", false
	}
	a, ok := c.Value.(Atom)
	return string(a), ok
}
