package lower

import "weft/internal/syntax"

// Engine lowers surface forms into core forms.
//
// Dispatch is by form tag and arity. Unknown call-shaped tags lower to a
// generic local call; bare identifiers lower to variable references. The
// engine itself is stateless: all scope state travels in the threaded
// syntax.Context, so one Engine may serve many sequential lowerings but a
// worker owns its collaborators.
type Engine struct {
	Clauses    ClauseMatcher
	Containers ContainerTranslator
	Structs    StructFields
	Refs       Resolver

	// Awaits, when set, is consulted before every struct layout query so a
	// concurrently compiled declaring unit can be coordinated with.
	Awaits StructAwaiter
}

// Fixed operator set: arithmetic, comparison, boolean and list operators.
// Any arity >= 1 lowers to a generic operator core form.
var operators = map[string]bool{
	"+": true, "-": true, "*": true, "/": true, "div": true, "rem": true,
	"==": true, "!=": true, "===": true, "!==": true,
	"<": true, ">": true, "<=": true, ">=": true,
	"and": true, "or": true, "not": true,
	"++": true, "--": true, "in": true,
}

// Reserved documentation attributes compile to a no-op under internal mode.
var reservedAttrs = map[string]bool{
	"doc": true, "moduledoc": true, "typedoc": true, "deprecated": true,
}

var procKinds = map[string]string{
	"def":       "public",
	"defp":      "private",
	"defmacro":  "macro",
	"defmacrop": "macroPrivate",
}

// Lower translates one surface form, threading the scope context through.
func (e *Engine) Lower(f *syntax.Form, ctx syntax.Context) (syntax.Core, syntax.Context, error) {
	switch {
	case (f.Tag == "+" || f.Tag == "-") && len(f.Args) == 1 && syntax.IsNumber(f.Args[0]):
		return foldUnary(f), ctx, nil

	case operators[f.Tag] && len(f.Args) >= 1:
		return e.lowerOp(f, ctx)

	case f.Tag == "@":
		return e.lowerAttribute(f, ctx)

	case f.Tag == "case":
		return e.lowerBranch(f, ctx)

	case f.Tag == "try":
		return e.lowerTry(f, ctx)

	case f.Tag == "receive":
		return e.lowerReceive(f, ctx)

	case f.Tag == "defmodule":
		return e.lowerContainerDef(f, ctx)

	case procKinds[f.Tag] != "":
		return e.lowerProcDef(f, ctx)

	case f.Tag == "use":
		return e.lowerUse(f, ctx)

	case f.Tag == "record" && len(f.Args) == 2:
		return e.lowerRecord(f, ctx)

	case f.Tag == "apply" && len(f.Args) == 3 && isListForm(f.Args[2]):
		return e.lowerApplyDispatch(f, ctx)

	case f.Tag == "apply":
		return e.lowerApplyDynamic(f, ctx)

	case f.Tag == "var!":
		return e.lowerRebind(f, ctx)

	case f.Tag == "block":
		return e.lowerBlock(f, ctx)

	case f.Tag == "tuple":
		return e.lowerTuple(f, ctx)

	case f.Tag == "list":
		return e.lowerOp(f, ctx)

	case f.IsBareIdent():
		// Constant references (upper-case initial) lower to literal names;
		// everything else is a variable reference.
		if isConstName(f.Tag) {
			return syntax.Literal(f.Line, syntax.Atom(f.Tag)), ctx, nil
		}
		return syntax.Core{Kind: syntax.KindVarRef, Line: f.Line, Name: f.Tag}, ctx, nil

	default:
		return e.lowerLocalCall(f, ctx)
	}
}

// lowerArg lowers a form argument, which may be a nested form or a literal.
func (e *Engine) lowerArg(v any, line int, ctx syntax.Context) (syntax.Core, syntax.Context, error) {
	switch a := v.(type) {
	case *syntax.Form:
		return e.Lower(a, ctx)
	default:
		return syntax.Literal(line, a), ctx, nil
	}
}

func (e *Engine) lowerArgs(args []any, line int, ctx syntax.Context) ([]syntax.Core, syntax.Context, error) {
	out := make([]syntax.Core, 0, len(args))
	for _, a := range args {
		c, nctx, err := e.lowerArg(a, line, ctx)
		if err != nil {
			return nil, ctx, err
		}
		ctx = nctx
		out = append(out, c)
	}
	return out, ctx, nil
}

// foldUnary constant-folds unary plus/minus on a numeric literal.
func foldUnary(f *syntax.Form) syntax.Core {
	v := f.Args[0]
	if f.Tag == "-" {
		switch n := v.(type) {
		case int64:
			v = -n
		case float64:
			v = -n
		}
	}
	return syntax.Literal(f.Line, v)
}

func (e *Engine) lowerOp(f *syntax.Form, ctx syntax.Context) (syntax.Core, syntax.Context, error) {
	args, ctx, err := e.lowerArgs(f.Args, f.Line, ctx)
	if err != nil {
		return syntax.Core{}, ctx, err
	}
	return syntax.Core{Kind: syntax.KindOp, Line: f.Line, Name: f.Tag, Args: args}, ctx, nil
}

// lowerAttribute handles the attribute form: one argument writes the value
// into the container's metadata, zero arguments read it back. Attributes are
// legal only directly in container scope.
func (e *Engine) lowerAttribute(f *syntax.Form, ctx syntax.Context) (syntax.Core, syntax.Context, error) {
	if len(f.Args) != 1 {
		return syntax.Core{}, ctx, syntax.Errorf(f.Line, ctx.Filename, "malformed attribute form")
	}
	inner, ok := f.Args[0].(*syntax.Form)
	if !ok {
		return syntax.Core{}, ctx, syntax.Errorf(f.Line, ctx.Filename, "malformed attribute form")
	}
	name := inner.Tag

	if ctx.Container == "" || ctx.InFuncBody {
		return syntax.Core{}, ctx, syntax.Errorf(inner.Line, ctx.Filename,
			"cannot use attribute @%s outside container scope", name)
	}
	if n := len(inner.Args); n >= 2 {
		return syntax.Core{}, ctx, syntax.Errorf(inner.Line, ctx.Filename,
			"attribute @%s expects 0 or 1 arguments, got %d", name, n)
	}
	if reservedAttrs[name] && ctx.Internal {
		return syntax.Core{Kind: syntax.KindNoop, Line: inner.Line}, ctx, nil
	}

	target := syntax.Literal(inner.Line, syntax.Atom(ctx.Container))
	if len(inner.Args) == 1 {
		value, ctx, err := e.lowerArg(inner.Args[0], inner.Line, ctx)
		if err != nil {
			return syntax.Core{}, ctx, err
		}
		return syntax.Core{
			Kind:   syntax.KindCall,
			Line:   inner.Line,
			Name:   "putAttribute",
			Target: &target,
			Args:   []syntax.Core{syntax.Literal(inner.Line, syntax.Atom(name)), value},
		}, ctx, nil
	}
	return syntax.Core{
		Kind:   syntax.KindCall,
		Line:   inner.Line,
		Name:   "getAttribute",
		Target: &target,
		Args:   []syntax.Core{syntax.Literal(inner.Line, syntax.Atom(name))},
	}, ctx, nil
}

func (e *Engine) lowerBranch(f *syntax.Form, ctx syntax.Context) (syntax.Core, syntax.Context, error) {
	if len(f.Args) < 1 {
		return syntax.Core{}, ctx, syntax.Errorf(f.Line, ctx.Filename, "case expects a subject")
	}
	subject, ctx, err := e.lowerArg(f.Args[0], f.Line, ctx)
	if err != nil {
		return syntax.Core{}, ctx, err
	}
	clauses := clausesUnder(f, 1, "do")
	lowered, ctx, err := e.Clauses.Match(clauses, ctx)
	if err != nil {
		return syntax.Core{}, ctx, err
	}
	return syntax.Core{Kind: syntax.KindBranch, Line: f.Line, Target: &subject, Clauses: lowered}, ctx, nil
}

// lowerTry translates the body, the catch clauses and the after region
// under suppressed auto-naming, so anonymous callables keep stable names
// across the three regions. A missing after region defaults to empty.
func (e *Engine) lowerTry(f *syntax.Form, ctx syntax.Context) (syntax.Core, syntax.Context, error) {
	pairs := optionPairs(f, 0)
	nctx := ctx
	nctx.NoAutoName = true

	var body []syntax.Core
	if forms, ok := syntax.Lookup(pairs, "do"); ok {
		var err error
		body, nctx, err = e.lowerForms(forms, nctx)
		if err != nil {
			return syntax.Core{}, ctx, err
		}
	}

	var catches []syntax.Core
	for _, p := range pairs {
		if p.Key == "do" || p.Key == "after" {
			continue
		}
		lowered, cctx, err := e.Clauses.Match(p.Value, nctx)
		if err != nil {
			return syntax.Core{}, ctx, err
		}
		nctx = cctx
		catches = append(catches, lowered...)
	}

	var after []syntax.Core
	if forms, ok := syntax.Lookup(pairs, "after"); ok {
		var err error
		after, nctx, err = e.lowerForms(forms, nctx)
		if err != nil {
			return syntax.Core{}, ctx, err
		}
	}

	nctx.NoAutoName = ctx.NoAutoName
	return syntax.Core{Kind: syntax.KindTryCatch, Line: f.Line, Body: body, Clauses: catches, After: after}, nctx, nil
}

// lowerReceive appends a present after clause as a synthetic final clause,
// translates everything together, then splits the last result back out as
// the distinguished timeout arm.
func (e *Engine) lowerReceive(f *syntax.Form, ctx syntax.Context) (syntax.Core, syntax.Context, error) {
	pairs := optionPairs(f, 0)
	doClauses, _ := syntax.Lookup(pairs, "do")
	afterClauses, hasAfter := syntax.Lookup(pairs, "after")
	if len(afterClauses) == 0 {
		hasAfter = false
	}

	if !hasAfter {
		lowered, ctx, err := e.Clauses.Match(doClauses, ctx)
		if err != nil {
			return syntax.Core{}, ctx, err
		}
		return syntax.Core{Kind: syntax.KindReceive, Line: f.Line, Clauses: lowered}, ctx, nil
	}

	all := make([]*syntax.Form, 0, len(doClauses)+len(afterClauses))
	all = append(all, doClauses...)
	all = append(all, afterClauses...)
	lowered, ctx, err := e.Clauses.Match(all, ctx)
	if err != nil {
		return syntax.Core{}, ctx, err
	}
	n := len(lowered)
	timeout := lowered[n-1]
	return syntax.Core{
		Kind:    syntax.KindReceive,
		Line:    f.Line,
		Clauses: lowered[:n-1],
		Timeout: &timeout,
	}, ctx, nil
}

func (e *Engine) lowerContainerDef(f *syntax.Form, ctx syntax.Context) (syntax.Core, syntax.Context, error) {
	if len(f.Args) < 1 {
		return syntax.Core{}, ctx, syntax.Errorf(f.Line, ctx.Filename, "expected body")
	}
	ref, ok := f.Args[0].(*syntax.Form)
	if !ok {
		return syntax.Core{}, ctx, syntax.Errorf(f.Line, ctx.Filename, "expected body")
	}
	pairs := optionPairs(f, 1)
	body, hasDo := syntax.Lookup(pairs, "do")
	if !hasDo {
		return syntax.Core{}, ctx, syntax.Errorf(f.Line, ctx.Filename, "expected body")
	}

	name, ctx, err := e.Refs.Resolve(ref, ctx)
	if err != nil {
		return syntax.Core{}, ctx, err
	}
	if literal, ok := name.IsLiteralName(); ok {
		ctx = ctx.Schedule(literal)
	}

	def, nctx, err := e.Containers.Container(name, body, ctx)
	if err != nil {
		return syntax.Core{}, ctx, err
	}
	// The nested container scope does not leak into the enclosing one, but
	// names scheduled while translating the body survive.
	nctx.Container = ctx.Container
	nctx.InFuncBody = ctx.InFuncBody
	nctx.InGuard = ctx.InGuard
	return def, nctx, nil
}

// lowerProcDef normalizes the two shorthand arities into the canonical
// (name, args, guards, expr) shape and keeps the body as an opaque deferred
// tree for downstream code generation.
func (e *Engine) lowerProcDef(f *syntax.Form, ctx syntax.Context) (syntax.Core, syntax.Context, error) {
	kind := procKinds[f.Tag]
	if ctx.Container == "" || ctx.InFuncBody {
		return syntax.Core{}, ctx, syntax.Errorf(f.Line, ctx.Filename,
			"cannot define %s outside container scope", f.Tag)
	}
	if len(f.Args) < 1 {
		return syntax.Core{}, ctx, syntax.Errorf(f.Line, ctx.Filename, "malformed %s", f.Tag)
	}
	head, ok := f.Args[0].(*syntax.Form)
	if !ok {
		return syntax.Core{}, ctx, syntax.Errorf(f.Line, ctx.Filename, "malformed %s", f.Tag)
	}

	var guardForm any
	call := head
	if head.Tag == "when" && len(head.Args) == 2 {
		call, ok = head.Args[0].(*syntax.Form)
		if !ok {
			return syntax.Core{}, ctx, syntax.Errorf(head.Line, ctx.Filename, "malformed %s", f.Tag)
		}
		guardForm = head.Args[1]
	}

	params, ctx, err := e.lowerArgs(call.Args, call.Line, ctx)
	if err != nil {
		return syntax.Core{}, ctx, err
	}

	var guards []syntax.Core
	if guardForm != nil {
		gctx := ctx
		gctx.InGuard = true
		g, _, err := e.lowerArg(guardForm, head.Line, gctx)
		if err != nil {
			return syntax.Core{}, ctx, err
		}
		guards = append(guards, g)
	}

	expr := &syntax.Form{Tag: "block", Line: f.Line}
	if len(f.Args) >= 2 {
		pairs := optionPairs(f, 1)
		if body, ok := syntax.Lookup(pairs, "do"); ok {
			args := make([]any, len(body))
			for i, b := range body {
				args[i] = b
			}
			expr = &syntax.Form{Tag: "block", Line: f.Line, Args: args}
		}
	}

	return syntax.Core{
		Kind:     syntax.KindProcDef,
		Line:     f.Line,
		Name:     call.Tag,
		Value:    kind,
		Args:     params,
		Clauses:  guards,
		Deferred: expr,
	}, ctx, nil
}

// lowerUse rewrites an inclusion form into a block that requires the target
// and invokes its extension hook with the current container and the given
// arguments, then re-lowers the block.
func (e *Engine) lowerUse(f *syntax.Form, ctx syntax.Context) (syntax.Core, syntax.Context, error) {
	if len(f.Args) < 1 {
		return syntax.Core{}, ctx, syntax.Errorf(f.Line, ctx.Filename, "invalid target")
	}
	ref, ok := f.Args[0].(*syntax.Form)
	if !ok {
		return syntax.Core{}, ctx, syntax.Errorf(f.Line, ctx.Filename, "invalid target")
	}
	target, ctx, err := e.Refs.Resolve(ref, ctx)
	if err != nil {
		return syntax.Core{}, ctx, err
	}
	name, ok := target.IsLiteralName()
	if !ok {
		return syntax.Core{}, ctx, syntax.Errorf(f.Line, ctx.Filename, "invalid target")
	}
	if err := e.Refs.EnsureLoaded(name); err != nil {
		return syntax.Core{}, ctx, err
	}

	var useArgs any = &syntax.Form{Tag: "list", Line: f.Line, Args: []any{}}
	if len(f.Args) >= 2 {
		useArgs = f.Args[1]
	}

	hookArgs := &syntax.Form{Tag: "list", Line: f.Line, Args: []any{
		syntax.Atom(ctx.Container), useArgs,
	}}
	block := &syntax.Form{Tag: "block", Line: f.Line, Args: []any{
		&syntax.Form{Tag: "require", Line: f.Line, Args: []any{ref}},
		&syntax.Form{Tag: "apply", Line: f.Line, Args: []any{ref, syntax.Atom("__extend__"), hookArgs}},
	}}
	return e.Lower(block, ctx)
}

// lowerRecord handles field-access sugar. In guard context the target must
// be a record-like container and the sugar compiles to a positional tuple
// over the declared field order, unfilled slots becoming wildcards. Outside
// guards it falls back untouched to the generic runtime protocol call.
func (e *Engine) lowerRecord(f *syntax.Form, ctx syntax.Context) (syntax.Core, syntax.Context, error) {
	kvForm, _ := f.Args[1].(*syntax.Form)

	if !ctx.InGuard {
		elem, ctx, err := e.lowerArg(f.Args[0], f.Line, ctx)
		if err != nil {
			return syntax.Core{}, ctx, err
		}
		args := []syntax.Core{elem}
		if kvForm != nil {
			for _, a := range kvForm.Args {
				kv, ok := a.(*syntax.Form)
				if !ok || kv.Tag != "kv" || len(kv.Args) != 2 {
					continue
				}
				key, _ := kv.Args[0].(syntax.Atom)
				value, nctx, err := e.lowerArg(kv.Args[1], kv.Line, ctx)
				if err != nil {
					return syntax.Core{}, ctx, err
				}
				ctx = nctx
				args = append(args, syntax.Core{
					Kind: syntax.KindTuple,
					Line: kv.Line,
					Args: []syntax.Core{syntax.Literal(kv.Line, key), value},
				})
			}
		}
		return syntax.Core{Kind: syntax.KindCall, Line: f.Line, Name: "buildRecord", Args: args}, ctx, nil
	}

	elem, ctx, err := e.lowerArg(f.Args[0], f.Line, ctx)
	if err != nil {
		return syntax.Core{}, ctx, err
	}
	name, ok := elem.IsLiteralName()
	if !ok {
		return syntax.Core{}, ctx, syntax.Errorf(f.Line, ctx.Filename,
			"target does not represent a record-like container")
	}

	given := make(map[string]syntax.Core)
	if kvForm == nil || kvForm.Tag != "kvlist" {
		return syntax.Core{}, ctx, syntax.Errorf(f.Line, ctx.Filename, "expected key-value contents")
	}
	for _, a := range kvForm.Args {
		kv, ok := a.(*syntax.Form)
		if !ok || kv.Tag != "kv" || len(kv.Args) != 2 {
			return syntax.Core{}, ctx, syntax.Errorf(f.Line, ctx.Filename, "expected key-value contents")
		}
		key, ok := kv.Args[0].(syntax.Atom)
		if !ok {
			return syntax.Core{}, ctx, syntax.Errorf(f.Line, ctx.Filename, "expected key-value contents")
		}
		value, nctx, err := e.lowerArg(kv.Args[1], kv.Line, ctx)
		if err != nil {
			return syntax.Core{}, ctx, err
		}
		ctx = nctx
		given[string(key)] = value
	}

	if e.Awaits != nil {
		e.Awaits.AwaitStruct(name)
	}
	fields, ok := e.Structs.Fields(name)
	if !ok {
		return syntax.Core{}, ctx, syntax.Errorf(f.Line, ctx.Filename,
			"target does not represent a record-like container")
	}

	slots := make([]syntax.Core, 0, len(fields))
	for _, field := range fields {
		if v, ok := given[field]; ok {
			slots = append(slots, v)
		} else {
			slots = append(slots, syntax.Core{Kind: syntax.KindWildcard, Line: f.Line})
		}
	}
	return syntax.Core{Kind: syntax.KindTuple, Line: f.Line, Args: slots}, ctx, nil
}

// lowerApplyDispatch statically picks a direct call when target and selector
// are statically known, falling back to a dynamic-dispatch call.
func (e *Engine) lowerApplyDispatch(f *syntax.Form, ctx syntax.Context) (syntax.Core, syntax.Context, error) {
	target, ctx, err := e.lowerArg(f.Args[0], f.Line, ctx)
	if err != nil {
		return syntax.Core{}, ctx, err
	}
	selector, ctx, err := e.lowerArg(f.Args[1], f.Line, ctx)
	if err != nil {
		return syntax.Core{}, ctx, err
	}
	list := f.Args[2].(*syntax.Form)
	args, ctx, err := e.lowerArgs(list.Args, list.Line, ctx)
	if err != nil {
		return syntax.Core{}, ctx, err
	}

	if _, tok := target.IsLiteralName(); tok {
		if sel, sok := selector.IsLiteralName(); sok {
			return syntax.Core{
				Kind:   syntax.KindCall,
				Line:   f.Line,
				Name:   sel,
				Target: &target,
				Args:   args,
			}, ctx, nil
		}
	}
	dyn := append([]syntax.Core{target, selector}, args...)
	return syntax.Core{Kind: syntax.KindCall, Line: f.Line, Name: "dispatch", Args: dyn}, ctx, nil
}

// lowerApplyDynamic emits a generic dynamic-apply call to the runtime's
// apply primitive.
func (e *Engine) lowerApplyDynamic(f *syntax.Form, ctx syntax.Context) (syntax.Core, syntax.Context, error) {
	args, ctx, err := e.lowerArgs(f.Args, f.Line, ctx)
	if err != nil {
		return syntax.Core{}, ctx, err
	}
	return syntax.Core{Kind: syntax.KindCall, Line: f.Line, Name: "apply", Args: args}, ctx, nil
}

func (e *Engine) lowerRebind(f *syntax.Form, ctx syntax.Context) (syntax.Core, syntax.Context, error) {
	if len(f.Args) != 1 {
		return syntax.Core{}, ctx, syntax.Errorf(f.Line, ctx.Filename, "invalid argument for var!, expected an identifier")
	}
	ident, ok := f.Args[0].(*syntax.Form)
	if !ok || !ident.IsBareIdent() {
		return syntax.Core{}, ctx, syntax.Errorf(f.Line, ctx.Filename, "invalid argument for var!, expected an identifier")
	}
	return syntax.Core{Kind: syntax.KindRebind, Line: f.Line, Name: ident.Tag}, ctx, nil
}

func (e *Engine) lowerBlock(f *syntax.Form, ctx syntax.Context) (syntax.Core, syntax.Context, error) {
	args, ctx, err := e.lowerArgs(f.Args, f.Line, ctx)
	if err != nil {
		return syntax.Core{}, ctx, err
	}
	return syntax.Core{Kind: syntax.KindBlock, Line: f.Line, Args: args}, ctx, nil
}

func (e *Engine) lowerTuple(f *syntax.Form, ctx syntax.Context) (syntax.Core, syntax.Context, error) {
	args, ctx, err := e.lowerArgs(f.Args, f.Line, ctx)
	if err != nil {
		return syntax.Core{}, ctx, err
	}
	return syntax.Core{Kind: syntax.KindTuple, Line: f.Line, Args: args}, ctx, nil
}

func (e *Engine) lowerLocalCall(f *syntax.Form, ctx syntax.Context) (syntax.Core, syntax.Context, error) {
	args, ctx, err := e.lowerArgs(f.Args, f.Line, ctx)
	if err != nil {
		return syntax.Core{}, ctx, err
	}
	return syntax.Core{Kind: syntax.KindCall, Line: f.Line, Name: f.Tag, Args: args}, ctx, nil
}

func (e *Engine) lowerForms(forms []*syntax.Form, ctx syntax.Context) ([]syntax.Core, syntax.Context, error) {
	out := make([]syntax.Core, 0, len(forms))
	for _, f := range forms {
		c, nctx, err := e.Lower(f, ctx)
		if err != nil {
			return nil, ctx, err
		}
		ctx = nctx
		out = append(out, c)
	}
	return out, ctx, nil
}

// optionPairs decodes the options form at argument index i, if any.
func optionPairs(f *syntax.Form, i int) []syntax.Pair {
	if len(f.Args) <= i {
		return nil
	}
	opts, ok := f.Args[i].(*syntax.Form)
	if !ok {
		return nil
	}
	pairs, ok := syntax.Pairs(opts)
	if !ok {
		return nil
	}
	return pairs
}

// clausesUnder returns the clause forms stored under key in the options form
// at argument index i; the wrapper key itself is stripped.
func clausesUnder(f *syntax.Form, i int, key string) []*syntax.Form {
	clauses, _ := syntax.Lookup(optionPairs(f, i), key)
	return clauses
}

func isListForm(v any) bool {
	lf, ok := v.(*syntax.Form)
	return ok && lf.Tag == "list"
}
