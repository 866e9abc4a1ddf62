package ir

import "fmt"

// Location is a source position attached to an operation or diagnostic.
// The zero value is the unknown location.
type Location struct {
	File   string
	Line   int
	Column int
}

// UnknownLoc is the location used when no source position is tracked.
var UnknownLoc = Location{}

// FileLineCol creates a known location.
func FileLineCol(file string, line, col int) Location {
	return Location{File: file, Line: line, Column: col}
}

// IsKnown reports whether the location carries a position.
func (l Location) IsKnown() bool {
	return l.Line > 0
}

func (l Location) String() string {
	if !l.IsKnown() {
		return "unknown"
	}
	if l.File == "" {
		return fmt.Sprintf("%d:%d", l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}
