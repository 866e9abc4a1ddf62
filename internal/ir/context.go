package ir

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Context owns the loaded dialects, the diagnostic handler and every Module
// created within it.
//
// A Context is explicitly created with NewContext and torn down with Close.
// Dialects are loaded up front: once the first module exists, loading a new
// dialect fails with ErrDialectsFrozen.
//
// Thread-safety: a Context and all of its IR may be used by one goroutine
// at a time. Independent contexts may run in parallel.
type Context struct {
	registry          *DialectRegistry
	loaded            map[string]*Dialect
	handler           Handler
	allowUnregistered bool
	modules           map[*Module]struct{}
	frozen            bool
	closed            bool
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithRegistry sets the dialect catalogue that LoadDialect draws from.
func WithRegistry(r *DialectRegistry) ContextOption {
	return func(c *Context) {
		c.registry = r
	}
}

// WithDiagnosticHandler installs a diagnostic handler.
func WithDiagnosticHandler(h Handler) ContextOption {
	return func(c *Context) {
		c.handler = h
	}
}

// WithAllowUnregistered lets operations of unloaded dialects be created.
// They are treated as opaque with no verifier.
func WithAllowUnregistered(allow bool) ContextOption {
	return func(c *Context) {
		c.allowUnregistered = allow
	}
}

// NewContext creates a Context with the builtin dialect loaded.
func NewContext(opts ...ContextOption) *Context {
	c := &Context{
		registry: NewDialectRegistry(),
		loaded:   make(map[string]*Dialect),
		modules:  make(map[*Module]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.loaded[BuiltinNamespace] = builtinDialect
	return c
}

// LoadDialect loads the dialect with the given namespace from the registry.
// Loading an already loaded dialect is a no-op.
func (c *Context) LoadDialect(namespace string) error {
	if c.closed {
		return ErrContextClosed
	}
	if _, ok := c.loaded[namespace]; ok {
		return nil
	}
	d, ok := c.registry.Lookup(namespace)
	if !ok {
		return &UnknownDialectError{Dialect: namespace}
	}
	if c.frozen {
		return fmt.Errorf("loading %q: %w", namespace, ErrDialectsFrozen)
	}
	c.loaded[namespace] = d
	return nil
}

// RequireDialect loads a dialect and checks that its version satisfies a
// semantic-version constraint such as "^1.0" or ">= 1.2, < 2".
func (c *Context) RequireDialect(namespace, constraint string) error {
	if err := c.LoadDialect(namespace); err != nil {
		return err
	}
	if strings.TrimSpace(constraint) == "" {
		return nil
	}
	con, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("dialect %q: invalid version constraint %q: %w", namespace, constraint, err)
	}
	d := c.loaded[namespace]
	if !con.Check(d.Version) {
		return &DialectVersionError{Dialect: namespace, Version: d.Version.String(), Constraint: constraint}
	}
	return nil
}

// IsLoaded reports whether a dialect is loaded.
func (c *Context) IsLoaded(namespace string) bool {
	_, ok := c.loaded[namespace]
	return ok
}

// NumLoadedDialects returns the number of loaded dialects. The builtin
// dialect is always loaded.
func (c *Context) NumLoadedDialects() int {
	return len(c.loaded)
}

// LoadedDialects returns the loaded dialects sorted by namespace.
func (c *Context) LoadedDialects() []*Dialect {
	out := make([]*Dialect, 0, len(c.loaded))
	for _, d := range c.loaded {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Namespace < out[j].Namespace })
	return out
}

// AllowsUnregistered reports whether unregistered operations are accepted.
func (c *Context) AllowsUnregistered() bool {
	return c.allowUnregistered
}

// LookupOp resolves an operation name against the loaded dialects.
// Returns *UnregisteredDialectError if the dialect prefix is not loaded.
func (c *Context) LookupOp(name string) (*OpDef, error) {
	ns := name
	if i := strings.IndexByte(name, '.'); i >= 0 {
		ns = name[:i]
	}
	d, ok := c.loaded[ns]
	if !ok {
		if c.allowUnregistered {
			return nil, nil
		}
		return nil, &UnregisteredDialectError{Dialect: ns, Op: name}
	}
	def, ok := d.Lookup(name)
	if !ok {
		if c.allowUnregistered {
			return nil, nil
		}
		return nil, &UnknownOpError{Op: name}
	}
	return def, nil
}

// SetDiagnosticHandler replaces the diagnostic handler.
func (c *Context) SetDiagnosticHandler(h Handler) {
	c.handler = h
}

// DiagnosticHandler returns the installed handler, or nil.
func (c *Context) DiagnosticHandler() Handler {
	return c.handler
}

// Emit reports a diagnostic to the installed handler. Without a handler the
// diagnostic is dropped.
func (c *Context) Emit(d Diagnostic) {
	if c.handler != nil {
		c.handler.Handle(d)
	}
}

// EmitError reports an error diagnostic at loc.
func (c *Context) EmitError(loc Location, format string, args ...any) {
	c.Emit(Diagnostic{Severity: SeverityError, Loc: loc, Message: fmt.Sprintf(format, args...)})
}

// EmitWarning reports a warning diagnostic at loc.
func (c *Context) EmitWarning(loc Location, format string, args ...any) {
	c.Emit(Diagnostic{Severity: SeverityWarning, Loc: loc, Message: fmt.Sprintf(format, args...)})
}

// NumModules returns the number of live modules owned by the context.
func (c *Context) NumModules() int {
	return len(c.modules)
}

// IsClosed reports whether Close has been called.
func (c *Context) IsClosed() bool {
	return c.closed
}

// Close destroys every module owned by the context. Using the context or
// any of its modules afterwards returns ErrContextClosed.
// Close is idempotent.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	var busy int
	for m := range c.modules {
		if m.busy.Load() {
			busy++
		}
		m.invalidate()
	}
	c.modules = nil
	c.closed = true
	if busy > 0 {
		return fmt.Errorf("closed context while %d module(s) were in use: %w", busy, ErrModuleBusy)
	}
	return nil
}

// CreateOperation builds a detached operation from st. The operation kind
// must belong to a loaded dialect.
func (c *Context) CreateOperation(st OperationState) (*Operation, error) {
	if c.closed {
		return nil, ErrContextClosed
	}
	def, err := c.LookupOp(st.Name)
	if err != nil {
		return nil, err
	}
	op := &Operation{
		name: st.Name,
		def:  def,
		loc:  st.Loc,
	}
	if st.Symbol != "" {
		op.attrs = append(op.attrs, NamedAttribute{Name: SymbolAttrName, Value: StringAttr(st.Symbol)})
	}
	op.attrs = append(op.attrs, st.Attrs...)
	op.SetOperands(st.Operands)
	op.results = make([]*Value, len(st.ResultTypes))
	for i, t := range st.ResultTypes {
		name := ""
		if i < len(st.ResultNames) {
			name = st.ResultNames[i]
		}
		op.results[i] = &Value{name: name, typ: t, owner: op, index: i}
	}
	for i := 0; i < st.Regions; i++ {
		op.AddRegion()
	}
	return op, nil
}
