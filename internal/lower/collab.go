package lower

import (
	"unicode"
	"unicode/utf8"

	"weft/internal/syntax"
)

// ClauseMatcher lowers a clause list (pattern -> body arms). Branching,
// exception handling and blocking receive all delegate their arms here.
type ClauseMatcher interface {
	Match(clauses []*syntax.Form, ctx syntax.Context) ([]syntax.Core, syntax.Context, error)
}

// ContainerTranslator lowers a container definition body under a fresh
// nested scope.
type ContainerTranslator interface {
	Container(name syntax.Core, body []*syntax.Form, ctx syntax.Context) (syntax.Core, syntax.Context, error)
}

// StructFields answers the declared field order of a container.
// The not-a-record case is a first-class false, never an error.
type StructFields interface {
	Fields(container string) ([]string, bool)
}

// StructAwaiter blocks until a struct's declared layout may be queried.
// The release decision belongs to the awaiter, not the caller.
type StructAwaiter interface {
	AwaitStruct(name string)
}

// Resolver resolves container references and loads inclusion targets.
type Resolver interface {
	Resolve(ref *syntax.Form, ctx syntax.Context) (syntax.Core, syntax.Context, error)
	EnsureLoaded(name string) error
}

// Announcer receives structural declaration events while a container body is
// being translated. Implementations must not block indefinitely.
type Announcer interface {
	ContainerDeclared(name string)
	StructDeclared(name string)
}

// NopAnnouncer discards all declaration events.
type NopAnnouncer struct{}

func (NopAnnouncer) ContainerDeclared(string) {}
func (NopAnnouncer) StructDeclared(string)    {}

// DefaultMatcher lowers "->" clause forms through the engine.
//
// A clause form is tagged "->" with the pattern list as its first argument
// and the body forms as the rest. A pattern wrapped in "when" carries a
// guard, lowered under guard context.
type DefaultMatcher struct {
	Engine *Engine
}

func (m *DefaultMatcher) Match(clauses []*syntax.Form, ctx syntax.Context) ([]syntax.Core, syntax.Context, error) {
	out := make([]syntax.Core, 0, len(clauses))
	for _, cf := range clauses {
		c, nctx, err := m.clause(cf, ctx)
		if err != nil {
			return nil, ctx, err
		}
		ctx = nctx
		out = append(out, c)
	}
	return out, ctx, nil
}

func (m *DefaultMatcher) clause(cf *syntax.Form, ctx syntax.Context) (syntax.Core, syntax.Context, error) {
	if cf.Tag != "->" || len(cf.Args) < 1 {
		return syntax.Core{}, ctx, syntax.Errorf(cf.Line, ctx.Filename, "expected a clause")
	}
	head, ok := cf.Args[0].(*syntax.Form)
	if !ok {
		return syntax.Core{}, ctx, syntax.Errorf(cf.Line, ctx.Filename, "expected a clause pattern list")
	}

	var guards []syntax.Core
	patterns := head.Args
	if len(head.Args) == 1 {
		if w, ok := head.Args[0].(*syntax.Form); ok && w.Tag == "when" && len(w.Args) == 2 {
			patterns = w.Args[:1]
			gctx := ctx
			gctx.InGuard = true
			g, _, err := m.Engine.lowerArg(w.Args[1], w.Line, gctx)
			if err != nil {
				return syntax.Core{}, ctx, err
			}
			guards = append(guards, g)
		}
	}

	pats := make([]syntax.Core, 0, len(patterns))
	for _, p := range patterns {
		c, nctx, err := m.Engine.lowerArg(p, cf.Line, ctx)
		if err != nil {
			return syntax.Core{}, ctx, err
		}
		ctx = nctx
		pats = append(pats, c)
	}

	body := make([]syntax.Core, 0, len(cf.Args)-1)
	for _, b := range cf.Args[1:] {
		c, nctx, err := m.Engine.lowerArg(b, cf.Line, ctx)
		if err != nil {
			return syntax.Core{}, ctx, err
		}
		ctx = nctx
		body = append(body, c)
	}

	return syntax.Core{
		Kind:    syntax.KindClause,
		Line:    cf.Line,
		Args:    pats,
		Clauses: guards,
		Body:    body,
	}, ctx, nil
}

// DefaultContainers translates container bodies: it opens the nested scope,
// records declared record fields in the registry, announces declarations,
// and lowers every remaining body form through the engine.
type DefaultContainers struct {
	Engine   *Engine
	Registry *FieldRegistry
	Announce Announcer
}

func (t *DefaultContainers) Container(name syntax.Core, body []*syntax.Form, ctx syntax.Context) (syntax.Core, syntax.Context, error) {
	cname, literal := name.IsLiteralName()
	nested := ctx
	if literal {
		nested = ctx.EnterContainer(cname)
	} else {
		nested.InFuncBody = false
	}

	announce := t.Announce
	if announce == nil {
		announce = NopAnnouncer{}
	}
	if literal {
		// Structural declaration precedes body translation: dependents may
		// observe the container before this unit finishes compiling it.
		announce.ContainerDeclared(cname)
	}

	lowered := make([]syntax.Core, 0, len(body))
	for _, bf := range body {
		if bf.Tag == "fields" && literal {
			fields := make([]string, 0, len(bf.Args))
			for _, a := range bf.Args {
				atom, ok := a.(syntax.Atom)
				if !ok {
					return syntax.Core{}, ctx, syntax.Errorf(bf.Line, nested.Filename, "field names must be atoms")
				}
				fields = append(fields, string(atom))
			}
			if t.Registry != nil {
				t.Registry.Declare(cname, fields)
			}
			announce.StructDeclared(cname)
			lowered = append(lowered, syntax.Core{Kind: syntax.KindNoop, Line: bf.Line})
			continue
		}
		c, nctx, err := t.Engine.Lower(bf, nested)
		if err != nil {
			return syntax.Core{}, ctx, err
		}
		nested = nctx
		lowered = append(lowered, c)
	}

	return syntax.Core{
		Kind: syntax.KindContainerDef,
		Line: name.Line,
		Name: cname,
		Body: lowered,
	}, nested, nil
}

// DefaultResolver resolves constant references. A bare identifier starting
// with an upper-case rune, or an "alias" form of atom parts, resolves to a
// literal constant name; anything else lowers as a plain expression.
//
// A resolver instance is owned by a single worker; it is not safe for
// concurrent use.
type DefaultResolver struct {
	Engine *Engine
	loaded map[string]bool
}

func (r *DefaultResolver) Resolve(ref *syntax.Form, ctx syntax.Context) (syntax.Core, syntax.Context, error) {
	if ref.IsBareIdent() && isConstName(ref.Tag) {
		return syntax.Literal(ref.Line, syntax.Atom(ref.Tag)), ctx, nil
	}
	if ref.Tag == "alias" && len(ref.Args) > 0 {
		joined := ""
		for i, a := range ref.Args {
			atom, ok := a.(syntax.Atom)
			if !ok {
				joined = ""
				break
			}
			if i > 0 {
				joined += "."
			}
			joined += string(atom)
		}
		if joined != "" {
			return syntax.Literal(ref.Line, syntax.Atom(joined)), ctx, nil
		}
	}
	return r.Engine.Lower(ref, ctx)
}

func (r *DefaultResolver) EnsureLoaded(name string) error {
	if r.loaded == nil {
		r.loaded = make(map[string]bool)
	}
	r.loaded[name] = true
	return nil
}

func isConstName(s string) bool {
	ch, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(ch)
}
