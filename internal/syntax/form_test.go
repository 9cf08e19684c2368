package syntax

import (
	"reflect"
	"testing"
)

func TestPairs_DecodeAndLookup(t *testing.T) {
	body := &Form{Tag: "work", Line: 2}
	after := &Form{Tag: "cleanup", Line: 3}
	opts := &Form{Tag: "opts", Line: 1, Args: []any{
		&Form{Tag: "kv", Line: 1, Args: []any{Atom("do"), body}},
		&Form{Tag: "kv", Line: 3, Args: []any{Atom("after"), after}},
	}}

	pairs, ok := Pairs(opts)
	if !ok {
		t.Fatalf("expected options form to decode")
	}
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(pairs))
	}

	got, ok := Lookup(pairs, "do")
	if !ok || !reflect.DeepEqual(got, []*Form{body}) {
		t.Fatalf("do lookup mismatch: %v", got)
	}
	if _, ok := Lookup(pairs, "rescue"); ok {
		t.Fatalf("unexpected rescue key")
	}
}

func TestPairs_RejectsMalformed(t *testing.T) {
	if _, ok := Pairs(&Form{Tag: "list"}); ok {
		t.Fatalf("non-opts form must not decode")
	}
	bad := &Form{Tag: "opts", Args: []any{&Form{Tag: "kv", Args: []any{int64(1)}}}}
	if _, ok := Pairs(bad); ok {
		t.Fatalf("non-atom key must not decode")
	}
}

func TestContext_ScheduleDoesNotAliasSiblings(t *testing.T) {
	base := Context{Scheduled: []string{"A"}}
	left := base.Schedule("B")
	right := base.Schedule("C")

	if !reflect.DeepEqual(left.Scheduled, []string{"A", "B"}) {
		t.Fatalf("left schedule mismatch: %v", left.Scheduled)
	}
	if !reflect.DeepEqual(right.Scheduled, []string{"A", "C"}) {
		t.Fatalf("right schedule mismatch: %v", right.Scheduled)
	}
	if !reflect.DeepEqual(base.Scheduled, []string{"A"}) {
		t.Fatalf("base schedule mutated: %v", base.Scheduled)
	}
}

func TestContext_EnterContainer(t *testing.T) {
	ctx := Context{InFuncBody: true}
	nested := ctx.EnterContainer("M")
	if nested.Container != "M" || nested.InFuncBody {
		t.Fatalf("unexpected nested context: %+v", nested)
	}
}

func TestIsLiteralName(t *testing.T) {
	if name, ok := Literal(1, Atom("Foo")).IsLiteralName(); !ok || name != "Foo" {
		t.Fatalf("expected literal name Foo, got %q ok=%v", name, ok)
	}
	if _, ok := Literal(1, int64(3)).IsLiteralName(); ok {
		t.Fatalf("numeric literal is not a constant name")
	}
	if _, ok := (Core{Kind: KindVarRef, Name: "x"}).IsLiteralName(); ok {
		t.Fatalf("varRef is not a literal name")
	}
}
