package syntax

// Atom is an interned symbolic constant in surface syntax (operator names,
// container names, option keys). It is distinct from string literals.
type Atom string

// Form is a surface syntax node as produced by the front end.
//
// Args holds a mix of nested *Form values and Go literals (int64, float64,
// string, Atom). Forms are read-only to this layer: lowering never mutates a
// Form, it only produces Core nodes from it.
type Form struct {
	Tag  string
	Line int
	Args []any
}

// NewForm builds a surface form. Args may be *Form values or literals.
func NewForm(tag string, line int, args ...any) *Form {
	return &Form{Tag: tag, Line: line, Args: args}
}

// Arity returns the number of arguments. A bare identifier (nil Args) has
// arity 0 but is distinguishable from an empty call via Args == nil.
func (f *Form) Arity() int { return len(f.Args) }

// IsBareIdent reports whether the form is a bare identifier reference:
// a tag with a nil argument list.
func (f *Form) IsBareIdent() bool { return f.Args == nil }

// Pair is one key/value entry of an option list (do:, after:, catch keys).
// Value holds the forms grouped under the key.
type Pair struct {
	Key   string
	Value []*Form
}

// Pairs decodes an options form into its ordered key/value entries.
//
// An options form is tagged "opts" and contains "kv" children, each with a
// key atom followed by the grouped forms. Returns false when f is not an
// options form.
func Pairs(f *Form) ([]Pair, bool) {
	if f == nil || f.Tag != "opts" {
		return nil, false
	}
	out := make([]Pair, 0, len(f.Args))
	for _, a := range f.Args {
		kv, ok := a.(*Form)
		if !ok || kv.Tag != "kv" || len(kv.Args) < 1 {
			return nil, false
		}
		key, ok := kv.Args[0].(Atom)
		if !ok {
			return nil, false
		}
		p := Pair{Key: string(key)}
		for _, v := range kv.Args[1:] {
			vf, ok := v.(*Form)
			if !ok {
				return nil, false
			}
			p.Value = append(p.Value, vf)
		}
		out = append(out, p)
	}
	return out, true
}

// Lookup returns the forms grouped under key, if present.
func Lookup(pairs []Pair, key string) ([]*Form, bool) {
	for _, p := range pairs {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

// IsNumber reports whether v is a numeric surface literal.
func IsNumber(v any) bool {
	switch v.(type) {
	case int64, float64:
		return true
	default:
		return false
	}
}
