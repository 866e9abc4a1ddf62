package ir

import (
	"strconv"
	"strings"
	"unicode"
)

// Attribute is a compile-time constant attached to an operation.
//
// Implemented by StringAttr, IntAttr, BoolAttr, SymbolRefAttr, TypeAttr,
// ArrayAttr and DictAttr. String returns the textual IR form, which is also
// what structural equality compares.
type Attribute interface {
	String() string
	isAttribute()
}

// StringAttr is a quoted string.
type StringAttr string

// IntAttr is a signed 64-bit integer.
type IntAttr int64

// BoolAttr is true or false.
type BoolAttr bool

// SymbolRefAttr references an operation by its symbol name (@Name).
type SymbolRefAttr string

// TypeAttr wraps a Type.
type TypeAttr Type

// ArrayAttr is an ordered list of attributes.
type ArrayAttr []Attribute

// DictAttr is an ordered list of named attributes.
type DictAttr []NamedAttribute

// NamedAttribute pairs a name with an attribute.
type NamedAttribute struct {
	Name  string
	Value Attribute
}

func (StringAttr) isAttribute()    {}
func (IntAttr) isAttribute()       {}
func (BoolAttr) isAttribute()      {}
func (SymbolRefAttr) isAttribute() {}
func (TypeAttr) isAttribute()      {}
func (ArrayAttr) isAttribute()     {}
func (DictAttr) isAttribute()      {}

func (a StringAttr) String() string    { return strconv.Quote(string(a)) }
func (a IntAttr) String() string       { return strconv.FormatInt(int64(a), 10) }
func (a BoolAttr) String() string      { return strconv.FormatBool(bool(a)) }
func (a SymbolRefAttr) String() string { return "@" + string(a) }
func (a TypeAttr) String() string      { return string(a) }

func (a ArrayAttr) String() string {
	parts := make([]string, len(a))
	for i, e := range a {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (a DictAttr) String() string {
	parts := make([]string, len(a))
	for i, na := range a {
		parts[i] = FormatAttrName(na.Name) + " = " + na.Value.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// FormatAttrName returns name as written in an attribute dictionary: bare
// when it is an identifier, quoted otherwise.
func FormatAttrName(name string) string {
	if IsIdentifier(name) {
		return name
	}
	return strconv.Quote(name)
}

// IsIdentifier reports whether s is a bare identifier of the textual form:
// a letter or '_' followed by letters, digits, '_', '$' or '.'.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && (unicode.IsDigit(r) || r == '$' || r == '.'):
		default:
			return false
		}
	}
	return true
}

// Get returns the attribute named name.
func (a DictAttr) Get(name string) (Attribute, bool) {
	for _, na := range a {
		if na.Name == name {
			return na.Value, true
		}
	}
	return nil, false
}

// GetString returns the string attribute named name, or "" if absent or of
// another kind.
func (a DictAttr) GetString(name string) string {
	v, ok := a.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(StringAttr)
	return string(s)
}

// AttrEqual compares two attributes structurally.
func AttrEqual(a, b Attribute) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.String() == b.String()
}
