package syntax

import (
	"errors"
	"fmt"
)

// ErrSyntax is the sentinel kind for malformed or misplaced surface forms.
var ErrSyntax = errors.New("syntax error")

// Error is a structured syntax fault: a malformed or misplaced surface form.
// It is always fatal to the current compilation unit.
type Error struct {
	Line    int
	File    string
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.File == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
}

func (e *Error) Unwrap() error { return ErrSyntax }

// Errorf is the single fault-reporting channel for translation rules.
// Rules never catch their own faults; the error propagates to the caller.
func Errorf(line int, file string, format string, args ...any) error {
	return &Error{Line: line, File: file, Message: fmt.Sprintf(format, args...)}
}
