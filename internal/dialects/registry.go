package dialects

import (
	"fmt"

	"github.com/roach88/hwpipe/internal/ir"
)

// Namespaces of the dialects shipped with the compiler.
const (
	FIRRTL = "firrtl"
	HW     = "hw"
	Comb   = "comb"
)

// Registry returns a catalogue holding every dialect of this package.
func Registry() *ir.DialectRegistry {
	return ir.NewDialectRegistry(FIRRTLDialect(), HWDialect(), CombDialect())
}

// LoadAll loads every dialect of Registry into ctx. The context must have
// been created with Registry (or a superset of it).
func LoadAll(ctx *ir.Context) error {
	for _, ns := range []string{FIRRTL, HW, Comb} {
		if err := ctx.LoadDialect(ns); err != nil {
			return fmt.Errorf("load dialect %s: %w", ns, err)
		}
	}
	return nil
}

// NewContext creates a context with all dialects of this package loaded.
func NewContext(opts ...ir.ContextOption) (*ir.Context, error) {
	opts = append([]ir.ContextOption{ir.WithRegistry(Registry())}, opts...)
	ctx := ir.NewContext(opts...)
	if err := LoadAll(ctx); err != nil {
		return nil, err
	}
	return ctx, nil
}

// constantValue returns the value of v if it is produced by a constant
// operation of the given kind.
func constantValue(v *ir.Value, constName string) (int64, bool) {
	op := v.DefiningOp()
	if op == nil || op.Name() != constName {
		return 0, false
	}
	return op.IntAttr("value")
}

// truncate masks value to the bit width of t.
func truncate(value int64, t ir.Type) int64 {
	w, ok := t.Width()
	if !ok || w >= 64 {
		return value
	}
	return value & (int64(1)<<uint(w) - 1)
}

// allOnes returns the all-ones value for t.
func allOnes(t ir.Type) int64 {
	return truncate(-1, t)
}

// replaceWithConstant creates a constant of kind constName right before op
// and replaces op's single result with it.
func replaceWithConstant(op *ir.Operation, rw *ir.Rewriter, constName string, value int64) bool {
	res := op.Result(0)
	rw.SetInsertionPointBefore(op)
	c, err := rw.Create(ir.OperationState{
		Name:        constName,
		ResultTypes: []ir.Type{res.Type()},
		ResultNames: []string{res.Name()},
		Attrs:       []ir.NamedAttribute{{Name: "value", Value: ir.IntAttr(truncate(value, res.Type()))}},
		Loc:         op.Loc(),
	})
	if err != nil {
		return false
	}
	rw.ReplaceOp(op, c.Result(0))
	return true
}

func expectOperands(op *ir.Operation, n int) error {
	if op.NumOperands() != n {
		return fmt.Errorf("expects %d operands, got %d", n, op.NumOperands())
	}
	return nil
}

func expectResults(op *ir.Operation, n int) error {
	if op.NumResults() != n {
		return fmt.Errorf("expects %d results, got %d", n, op.NumResults())
	}
	return nil
}

func expectRegions(op *ir.Operation, n int) error {
	if op.NumRegions() != n {
		return fmt.Errorf("expects %d regions, got %d", n, op.NumRegions())
	}
	return nil
}
