package cli

import (
	"reflect"
	"strings"
	"testing"

	"weft/internal/syntax"
)

func TestReadSource_Forms(t *testing.T) {
	src := `
; container with a record declaration
(defmodule Point
  (opts (kv :do (fields :x :y))))
`
	forms, err := ReadSource("p.src", src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(forms) != 1 {
		t.Fatalf("expected 1 top-level form, got %d", len(forms))
	}
	def := forms[0]
	if def.Tag != "defmodule" || def.Line != 3 {
		t.Fatalf("form mismatch: %+v", def)
	}
	ref, ok := def.Args[0].(*syntax.Form)
	if !ok || !ref.IsBareIdent() || ref.Tag != "Point" {
		t.Fatalf("reference mismatch: %+v", def.Args[0])
	}
	pairs, ok := syntax.Pairs(def.Args[1].(*syntax.Form))
	if !ok {
		t.Fatalf("options did not decode")
	}
	body, ok := syntax.Lookup(pairs, "do")
	if !ok || len(body) != 1 || body[0].Tag != "fields" {
		t.Fatalf("body mismatch: %+v", body)
	}
	if !reflect.DeepEqual(body[0].Args, []any{syntax.Atom("x"), syntax.Atom("y")}) {
		t.Fatalf("field atoms mismatch: %+v", body[0].Args)
	}
}

func TestReadSource_Literals(t *testing.T) {
	forms, err := ReadSource("l.src", `(lit 42 -7 2.5 "hi\n" :atom sym)`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	args := forms[0].Args
	want := []any{int64(42), int64(-7), 2.5, "hi\n", syntax.Atom("atom")}
	if !reflect.DeepEqual(args[:5], want) {
		t.Fatalf("literal mismatch: %#v", args[:5])
	}
	sym, ok := args[5].(*syntax.Form)
	if !ok || !sym.IsBareIdent() || sym.Tag != "sym" {
		t.Fatalf("symbol mismatch: %#v", args[5])
	}
}

func TestReadSource_Errors(t *testing.T) {
	cases := []string{
		`(unterminated`,
		`)`,
		`42`,
		`(s "unterminated`,
	}
	for _, src := range cases {
		if _, err := ReadSource("e.src", src); err == nil {
			t.Fatalf("expected error for %q", src)
		}
	}
}

func TestReadSource_LineNumbers(t *testing.T) {
	forms, err := ReadSource("n.src", "(one)\n(two)\n\n(three)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := []int{forms[0].Line, forms[1].Line, forms[2].Line}
	if !reflect.DeepEqual(lines, []int{1, 2, 4}) {
		t.Fatalf("line numbers mismatch: %v", lines)
	}
}

func TestReadSource_ErrorMentionsFile(t *testing.T) {
	_, err := ReadSource("bad.src", "(")
	if err == nil || !strings.Contains(err.Error(), "bad.src") {
		t.Fatalf("error must carry the filename: %v", err)
	}
}
