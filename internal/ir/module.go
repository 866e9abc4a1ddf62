package ir

import (
	"fmt"
	"io"
	"sync/atomic"
)

// Module is the root of an IR tree: a builtin.module operation plus its
// ownership state.
//
// A module has exactly one owner at a time. A pass manager run acquires it
// for the duration of the run and releases it afterwards; a concurrent
// acquisition fails with ErrModuleBusy. Passes mutate the module in place,
// so the root operation identity never changes.
type Module struct {
	ctx   *Context
	op    *Operation
	busy  atomic.Bool
	valid bool
}

// NewModule creates an empty module in the context. Creating the first
// module freezes the set of loaded dialects.
func (c *Context) NewModule(loc Location) (*Module, error) {
	op, err := c.CreateOperation(OperationState{Name: ModuleOpName, Regions: 1, Loc: loc})
	if err != nil {
		return nil, err
	}
	return c.adopt(op), nil
}

// WrapModule turns a detached builtin.module operation into a Module owned
// by the context.
func (c *Context) WrapModule(op *Operation) (*Module, error) {
	if c.closed {
		return nil, ErrContextClosed
	}
	if op.Name() != ModuleOpName {
		return nil, fmt.Errorf("expected '%s' root, got '%s'", ModuleOpName, op.Name())
	}
	if op.block != nil {
		return nil, fmt.Errorf("module root must be detached")
	}
	return c.adopt(op), nil
}

func (c *Context) adopt(op *Operation) *Module {
	m := &Module{ctx: c, op: op, valid: true}
	c.modules[m] = struct{}{}
	c.frozen = true
	return m
}

// Context returns the owning context.
func (m *Module) Context() *Context { return m.ctx }

// Operation returns the root builtin.module operation.
func (m *Module) Operation() *Operation { return m.op }

// Body returns the root block.
func (m *Module) Body() *Block { return m.op.Body() }

// Name returns the module's symbol name, or "".
func (m *Module) Name() string { return m.op.Symbol() }

// Valid reports whether the module is still alive (not destroyed and its
// context not closed).
func (m *Module) Valid() bool { return m.valid }

// Acquire takes exclusive ownership of the module.
func (m *Module) Acquire() error {
	if !m.valid {
		return ErrContextClosed
	}
	if !m.busy.CompareAndSwap(false, true) {
		return ErrModuleBusy
	}
	return nil
}

// Release gives up ownership taken by Acquire.
func (m *Module) Release() {
	m.busy.Store(false)
}

// Verify checks the whole module.
func (m *Module) Verify() error {
	if !m.valid {
		return ErrContextClosed
	}
	return Verify(m.op)
}

// Print writes the module in the generic textual form.
func (m *Module) Print(w io.Writer) error {
	if !m.valid {
		return ErrContextClosed
	}
	return PrintOperation(w, m.op, PrintOptions{})
}

// Destroy erases the module's IR and removes it from its context.
func (m *Module) Destroy() error {
	if !m.valid {
		return nil
	}
	if m.busy.Load() {
		return ErrModuleBusy
	}
	delete(m.ctx.modules, m)
	m.invalidate()
	return nil
}

func (m *Module) invalidate() {
	if m.op != nil {
		m.op.Erase()
	}
	m.valid = false
}
