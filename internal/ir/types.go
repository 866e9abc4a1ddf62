package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Type is the textual name of an IR type, e.g. "i1" or "!firrtl.uint<4>".
// Builtin integer types are written iN; dialect types start with '!' and
// carry the dialect namespace.
type Type string

// NoType is the zero Type.
const NoType Type = ""

// IntegerType returns the builtin signless integer type of the given width.
func IntegerType(width int) Type {
	return Type("i" + strconv.Itoa(width))
}

func (t Type) String() string { return string(t) }

// IsInteger reports whether t is a builtin integer type.
func (t Type) IsInteger() bool {
	s := string(t)
	if len(s) < 2 || s[0] != 'i' {
		return false
	}
	_, err := strconv.Atoi(s[1:])
	return err == nil
}

// Dialect returns the namespace that owns t ("builtin" for integer types).
func (t Type) Dialect() string {
	s := string(t)
	if !strings.HasPrefix(s, "!") {
		return "builtin"
	}
	s = s[1:]
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[:i]
	}
	return s
}

// Mnemonic returns the dialect-local type name without parameters,
// e.g. "uint" for "!firrtl.uint<4>".
func (t Type) Mnemonic() string {
	s := string(t)
	if !strings.HasPrefix(s, "!") {
		if t.IsInteger() {
			return "i"
		}
		return s
	}
	s = s[1:]
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.IndexByte(s, '<'); i >= 0 {
		s = s[:i]
	}
	return s
}

// Width returns the bit width carried by integer-like types: iN or any
// dialect type with a single integer parameter such as !firrtl.uint<N>.
func (t Type) Width() (int, bool) {
	s := string(t)
	if t.IsInteger() {
		w, _ := strconv.Atoi(s[1:])
		return w, true
	}
	open := strings.IndexByte(s, '<')
	if open < 0 || !strings.HasSuffix(s, ">") {
		return 0, false
	}
	w, err := strconv.Atoi(s[open+1 : len(s)-1])
	if err != nil {
		return 0, false
	}
	return w, true
}

// DialectType builds "!dialect.mnemonic<width>" (or without the parameter
// when width is negative).
func DialectType(dialect, mnemonic string, width int) Type {
	if width < 0 {
		return Type(fmt.Sprintf("!%s.%s", dialect, mnemonic))
	}
	return Type(fmt.Sprintf("!%s.%s<%d>", dialect, mnemonic, width))
}
