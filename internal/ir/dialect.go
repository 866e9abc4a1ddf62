package ir

import (
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// RewritePattern is a canonicalization rule attached to an operation kind.
// Rewrite returns true when it changed the IR; it must only mutate through
// the Rewriter so that drivers can track changes.
type RewritePattern struct {
	Name    string
	Rewrite func(op *Operation, rw *Rewriter) bool
}

// OpDef describes one operation kind of a dialect.
type OpDef struct {
	// Name is the dialect-local name; Register qualifies it.
	Name    string
	Summary string

	// Verify checks dialect-specific well-formedness. Nil means always valid.
	Verify func(op *Operation) error

	// Pure operations have no side effects: unused ones may be erased and
	// identical ones merged.
	Pure bool

	// SymbolTable operations require unique symbols among the operations of
	// their body.
	SymbolTable bool

	// Patterns are the canonicalization rules for this kind.
	Patterns []RewritePattern

	dialect *Dialect
}

// Dialect returns the dialect that registered the definition.
func (d *OpDef) Dialect() *Dialect { return d.dialect }

// Dialect is a named, versioned vocabulary of operation kinds.
type Dialect struct {
	Namespace string
	Version   *semver.Version
	Summary   string

	ops   map[string]*OpDef
	order []string
}

// NewDialect creates an empty dialect. version must be a valid semantic
// version; dialects are declared in code so an invalid one is a programming
// error.
func NewDialect(namespace, version, summary string) *Dialect {
	return &Dialect{
		Namespace: namespace,
		Version:   semver.MustParse(version),
		Summary:   summary,
		ops:       make(map[string]*OpDef),
	}
}

// Register adds operation definitions, qualifying their names with the
// dialect namespace.
func (d *Dialect) Register(defs ...*OpDef) *Dialect {
	for _, def := range defs {
		short := strings.TrimPrefix(def.Name, d.Namespace+".")
		def.Name = d.Namespace + "." + short
		def.dialect = d
		if _, exists := d.ops[short]; !exists {
			d.order = append(d.order, short)
		}
		d.ops[short] = def
	}
	return d
}

// Lookup finds an operation by short ("connect") or qualified
// ("firrtl.connect") name.
func (d *Dialect) Lookup(name string) (*OpDef, bool) {
	def, ok := d.ops[strings.TrimPrefix(name, d.Namespace+".")]
	return def, ok
}

// Ops returns the definitions in registration order.
func (d *Dialect) Ops() []*OpDef {
	out := make([]*OpDef, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.ops[name])
	}
	return out
}

// DialectRegistry is the catalogue of dialects a Context may load.
type DialectRegistry struct {
	dialects map[string]*Dialect
}

// NewDialectRegistry creates a registry holding the given dialects.
func NewDialectRegistry(dialects ...*Dialect) *DialectRegistry {
	r := &DialectRegistry{dialects: make(map[string]*Dialect)}
	for _, d := range dialects {
		r.Insert(d)
	}
	return r
}

// Insert adds or replaces a dialect.
func (r *DialectRegistry) Insert(d *Dialect) {
	r.dialects[d.Namespace] = d
}

// Lookup returns the dialect for a namespace.
func (r *DialectRegistry) Lookup(namespace string) (*Dialect, bool) {
	d, ok := r.dialects[namespace]
	return d, ok
}

// Namespaces returns all registered namespaces, sorted.
func (r *DialectRegistry) Namespaces() []string {
	out := make([]string, 0, len(r.dialects))
	for ns := range r.dialects {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}
