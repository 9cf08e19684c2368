package cli

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"weft/internal/syntax"
)

// The source reader turns a compact s-expression surface encoding into
// syntax forms. It is boundary glue for the CLI and tests; the language's
// real front end is a separate component.
//
// Encoding:
//
//	(tag arg...)  form with tag and arguments
//	sym           bare identifier form (nil argument list)
//	:name         atom literal
//	42 / 4.2      numeric literals (int64 / float64)
//	"text"        string literal

type reader struct {
	src  string
	pos  int
	line int
	file string
}

// ReadSource reads all top-level forms from src. Line numbers are 1-based.
func ReadSource(file, src string) ([]*syntax.Form, error) {
	r := &reader{src: src, line: 1, file: file}
	var forms []*syntax.Form
	for {
		r.skipSpace()
		if r.eof() {
			return forms, nil
		}
		v, err := r.readValue()
		if err != nil {
			return nil, err
		}
		f, ok := v.(*syntax.Form)
		if !ok {
			return nil, r.errorf("top-level value must be a form")
		}
		forms = append(forms, f)
	}
}

func (r *reader) eof() bool { return r.pos >= len(r.src) }

func (r *reader) peek() byte { return r.src[r.pos] }

func (r *reader) next() byte {
	ch := r.src[r.pos]
	r.pos++
	if ch == '\n' {
		r.line++
	}
	return ch
}

func (r *reader) skipSpace() {
	for !r.eof() {
		ch := r.peek()
		if ch == ';' {
			for !r.eof() && r.peek() != '\n' {
				r.next()
			}
			continue
		}
		if !unicode.IsSpace(rune(ch)) {
			return
		}
		r.next()
	}
}

func (r *reader) errorf(format string, args ...any) error {
	return fmt.Errorf("%s:%d: %s", r.file, r.line, fmt.Sprintf(format, args...))
}

// readValue reads one form, atom or literal.
func (r *reader) readValue() (any, error) {
	r.skipSpace()
	if r.eof() {
		return nil, r.errorf("unexpected end of input")
	}
	switch ch := r.peek(); {
	case ch == '(':
		return r.readForm()
	case ch == ')':
		return nil, r.errorf("unexpected ')'")
	case ch == '"':
		return r.readString()
	case ch == ':':
		r.next()
		sym, err := r.readSymbol()
		if err != nil {
			return nil, err
		}
		return syntax.Atom(sym), nil
	default:
		return r.readAtomOrNumber()
	}
}

func (r *reader) readForm() (*syntax.Form, error) {
	line := r.line
	r.next() // consume '('
	r.skipSpace()
	if r.eof() {
		return nil, r.errorf("unterminated form")
	}
	tag, err := r.readSymbol()
	if err != nil {
		return nil, err
	}
	args := []any{}
	for {
		r.skipSpace()
		if r.eof() {
			return nil, r.errorf("unterminated form")
		}
		if r.peek() == ')' {
			r.next()
			return &syntax.Form{Tag: tag, Line: line, Args: args}, nil
		}
		v, err := r.readValue()
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
}

func (r *reader) readString() (string, error) {
	r.next() // consume opening quote
	var b strings.Builder
	for !r.eof() {
		ch := r.next()
		switch ch {
		case '"':
			return b.String(), nil
		case '\\':
			if r.eof() {
				return "", r.errorf("unterminated string")
			}
			esc := r.next()
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(esc)
			}
		default:
			b.WriteByte(ch)
		}
	}
	return "", r.errorf("unterminated string")
}

func (r *reader) readSymbol() (string, error) {
	start := r.pos
	for !r.eof() {
		ch := r.peek()
		if ch == '(' || ch == ')' || ch == '"' || unicode.IsSpace(rune(ch)) {
			break
		}
		r.next()
	}
	if r.pos == start {
		return "", r.errorf("expected a symbol")
	}
	return r.src[start:r.pos], nil
}

// readAtomOrNumber reads a symbol and reinterprets numeric spellings.
// A bare symbol becomes an identifier form with a nil argument list.
func (r *reader) readAtomOrNumber() (any, error) {
	line := r.line
	sym, err := r.readSymbol()
	if err != nil {
		return nil, err
	}
	if n, err := strconv.ParseInt(sym, 10, 64); err == nil {
		return n, nil
	}
	if f, err := strconv.ParseFloat(sym, 64); err == nil {
		return f, nil
	}
	return &syntax.Form{Tag: sym, Line: line}, nil
}
