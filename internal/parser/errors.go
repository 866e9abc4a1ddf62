package parser

import (
	"errors"
	"fmt"

	"github.com/roach88/hwpipe/internal/ir"
)

// ParseError reports malformed input: a syntax error, an unresolved value
// or symbol reference, an unknown operation kind or a bad annotation.
// Loc always carries the position of the offending token, even when the
// parser was told to ignore location info for the IR itself.
type ParseError struct {
	Loc     ir.Location
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Loc.IsKnown() {
		return fmt.Sprintf("%s: %s", e.Loc, e.Message)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func newParseError(loc ir.Location, cause error, format string, args ...any) *ParseError {
	return &ParseError{Loc: loc, Message: fmt.Sprintf(format, args...), Err: cause}
}

// IOError reports an input file that could not be read.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("cannot read %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// IsParseError reports whether err wraps a ParseError.
// Uses errors.As to handle wrapped errors.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
