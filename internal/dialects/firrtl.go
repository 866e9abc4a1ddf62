package dialects

import (
	"fmt"
	"strings"

	"github.com/roach88/hwpipe/internal/ir"
)

// FIRRTL type constructors.
func UIntType(width int) ir.Type { return ir.DialectType(FIRRTL, "uint", width) }
func SIntType(width int) ir.Type { return ir.DialectType(FIRRTL, "sint", width) }

// ClockType is the FIRRTL clock type.
var ClockType = ir.DialectType(FIRRTL, "clock", -1)

// FIRRTL operation names.
const (
	FIRRTLCircuit  = "firrtl.circuit"
	FIRRTLModule   = "firrtl.module"
	FIRRTLWire     = "firrtl.wire"
	FIRRTLNode     = "firrtl.node"
	FIRRTLConstant = "firrtl.constant"
	FIRRTLAnd      = "firrtl.and"
	FIRRTLOr       = "firrtl.or"
	FIRRTLXor      = "firrtl.xor"
	FIRRTLNot      = "firrtl.not"
	FIRRTLConnect  = "firrtl.connect"
	FIRRTLInstance = "firrtl.instance"
	FIRRTLSkip     = "firrtl.skip"
)

// PortDirectionsAttr holds one character per module port: 'i' for input,
// 'o' for output.
const PortDirectionsAttr = "portDirections"

// Direction of a module port.
type Direction byte

const (
	Input  Direction = 'i'
	Output Direction = 'o'
)

var firrtlDialect = NewFIRRTLDialect()

// FIRRTLDialect returns the shared firrtl dialect definition.
func FIRRTLDialect() *ir.Dialect { return firrtlDialect }

// NewFIRRTLDialect builds a fresh firrtl dialect definition.
func NewFIRRTLDialect() *ir.Dialect {
	return ir.NewDialect(FIRRTL, "1.1.0", "FIRRTL circuits before lowering").Register(
		&ir.OpDef{
			Name:        "circuit",
			Summary:     "top-level circuit containing modules; the main module shares its name",
			SymbolTable: true,
			Verify:      verifyCircuit,
		},
		&ir.OpDef{
			Name:    "module",
			Summary: "module whose block arguments are its ports",
			Verify:  verifyFModule,
		},
		&ir.OpDef{
			Name:    "wire",
			Summary: "named connection point driven by connect",
			Verify:  func(op *ir.Operation) error { return expectResults(op, 1) },
		},
		&ir.OpDef{
			Name:     "node",
			Summary:  "named alias of an expression",
			Pure:     true,
			Verify:   verifyUnary,
			Patterns: []ir.RewritePattern{{Name: "fold-node-alias", Rewrite: foldNodeAlias}},
		},
		&ir.OpDef{
			Name:    "constant",
			Summary: "integer literal",
			Pure:    true,
			Verify:  verifyConstant,
		},
		&ir.OpDef{
			Name:     "and",
			Pure:     true,
			Verify:   verifyBinary,
			Patterns: []ir.RewritePattern{{Name: "fold-and", Rewrite: foldFIRRTLBinary}},
		},
		&ir.OpDef{
			Name:     "or",
			Pure:     true,
			Verify:   verifyBinary,
			Patterns: []ir.RewritePattern{{Name: "fold-or", Rewrite: foldFIRRTLBinary}},
		},
		&ir.OpDef{
			Name:     "xor",
			Pure:     true,
			Verify:   verifyBinary,
			Patterns: []ir.RewritePattern{{Name: "fold-xor", Rewrite: foldFIRRTLBinary}},
		},
		&ir.OpDef{
			Name:     "not",
			Pure:     true,
			Verify:   verifyUnary,
			Patterns: []ir.RewritePattern{{Name: "fold-not", Rewrite: foldFIRRTLNot}},
		},
		&ir.OpDef{
			Name:    "connect",
			Summary: "drive the destination with the source (last connect wins)",
			Verify:  verifyConnect,
		},
		&ir.OpDef{
			Name:    "instance",
			Summary: "instantiate a module; results are the instance ports",
			Verify:  verifyFInstance,
		},
		&ir.OpDef{
			Name:     "skip",
			Summary:  "empty statement",
			Pure:     true,
			Patterns: []ir.RewritePattern{{Name: "erase-skip", Rewrite: eraseOp}},
		},
	)
}

// PortDirections returns the port direction string of a firrtl.module.
func PortDirections(mod *ir.Operation) string {
	return mod.StringAttr(PortDirectionsAttr)
}

// PortDirection returns the direction of port i of a firrtl.module.
func PortDirection(mod *ir.Operation, i int) Direction {
	dirs := PortDirections(mod)
	if i < len(dirs) {
		return Direction(dirs[i])
	}
	return Input
}

func verifyCircuit(op *ir.Operation) error {
	if err := expectRegions(op, 1); err != nil {
		return err
	}
	name := op.Symbol()
	if name == "" {
		return fmt.Errorf("requires a symbol name")
	}
	var main bool
	for _, nested := range op.Body().Operations() {
		if nested.Name() != FIRRTLModule {
			return fmt.Errorf("may only contain '%s' ops, found '%s'", FIRRTLModule, nested.Name())
		}
		if nested.Symbol() == name {
			main = true
		}
	}
	if !main {
		return fmt.Errorf("must contain a module named @%s", name)
	}
	return nil
}

func verifyFModule(op *ir.Operation) error {
	if err := expectRegions(op, 1); err != nil {
		return err
	}
	if op.Symbol() == "" {
		return fmt.Errorf("requires a symbol name")
	}
	dirs := PortDirections(op)
	if strings.Trim(dirs, "io") != "" {
		return fmt.Errorf("%s must only contain 'i' and 'o', got %q", PortDirectionsAttr, dirs)
	}
	if len(dirs) != op.Body().NumArguments() {
		return fmt.Errorf("has %d ports but %s describes %d", op.Body().NumArguments(), PortDirectionsAttr, len(dirs))
	}
	return nil
}

func verifyUnary(op *ir.Operation) error {
	if err := expectOperands(op, 1); err != nil {
		return err
	}
	return expectResults(op, 1)
}

func verifyBinary(op *ir.Operation) error {
	if err := expectOperands(op, 2); err != nil {
		return err
	}
	if err := expectResults(op, 1); err != nil {
		return err
	}
	if op.Operand(0).Type() != op.Operand(1).Type() {
		return fmt.Errorf("operand types must match: %s vs %s", op.Operand(0).Type(), op.Operand(1).Type())
	}
	return nil
}

func verifyConstant(op *ir.Operation) error {
	if err := expectResults(op, 1); err != nil {
		return err
	}
	if _, ok := op.IntAttr("value"); !ok {
		return fmt.Errorf("requires an integer 'value' attribute")
	}
	return nil
}

func verifyConnect(op *ir.Operation) error {
	if err := expectOperands(op, 2); err != nil {
		return err
	}
	if err := expectResults(op, 0); err != nil {
		return err
	}
	dst, src := op.Operand(0), op.Operand(1)
	if dst.Type() != src.Type() {
		return fmt.Errorf("type mismatch: cannot connect %s to %s", src.Type(), dst.Type())
	}
	return nil
}

// InstanceTarget returns the firrtl.module referenced by an instance, or
// nil when it cannot be resolved.
func InstanceTarget(op *ir.Operation) *ir.Operation {
	ref, ok := op.Attr("moduleName")
	if !ok {
		return nil
	}
	sym, ok := ref.(ir.SymbolRefAttr)
	if !ok {
		return nil
	}
	return ir.LookupSymbol(op, string(sym))
}

func verifyFInstance(op *ir.Operation) error {
	ref, ok := op.Attr("moduleName")
	if !ok {
		return fmt.Errorf("requires a 'moduleName' symbol reference")
	}
	if _, isSym := ref.(ir.SymbolRefAttr); !isSym {
		return fmt.Errorf("'moduleName' must be a symbol reference, got %s", ref)
	}
	target := InstanceTarget(op)
	if target == nil || target.Name() != FIRRTLModule {
		return fmt.Errorf("references unknown module %s", ref)
	}
	ports := target.Body().Arguments()
	if len(ports) != op.NumResults() {
		return fmt.Errorf("has %d results but %s has %d ports", op.NumResults(), ref, len(ports))
	}
	for i, p := range ports {
		if p.Type() != op.Result(i).Type() {
			return fmt.Errorf("result #%d type %s does not match port type %s", i, op.Result(i).Type(), p.Type())
		}
	}
	return nil
}

func eraseOp(op *ir.Operation, rw *ir.Rewriter) bool {
	if op.HasResultUses() {
		return false
	}
	rw.EraseOp(op)
	return true
}

func foldNodeAlias(op *ir.Operation, rw *ir.Rewriter) bool {
	rw.ReplaceOp(op, op.Operand(0))
	return true
}

func foldFIRRTLBinary(op *ir.Operation, rw *ir.Rewriter) bool {
	lhs, rhs := op.Operand(0), op.Operand(1)
	a, aConst := constantValue(lhs, FIRRTLConstant)
	b, bConst := constantValue(rhs, FIRRTLConstant)
	if aConst && bConst {
		var v int64
		switch op.Name() {
		case FIRRTLAnd:
			v = a & b
		case FIRRTLOr:
			v = a | b
		case FIRRTLXor:
			v = a ^ b
		}
		return replaceWithConstant(op, rw, FIRRTLConstant, v)
	}
	if lhs == rhs {
		if op.Name() == FIRRTLXor {
			return replaceWithConstant(op, rw, FIRRTLConstant, 0)
		}
		rw.ReplaceOp(op, lhs)
		return true
	}
	// Identities with a constant on either side.
	x, c, ok := lhs, b, bConst
	if aConst {
		x, c, ok = rhs, a, true
	}
	if !ok {
		return false
	}
	ones := allOnes(op.Result(0).Type())
	switch {
	case op.Name() == FIRRTLAnd && c == 0:
		return replaceWithConstant(op, rw, FIRRTLConstant, 0)
	case op.Name() == FIRRTLAnd && c == ones:
		rw.ReplaceOp(op, x)
		return true
	case op.Name() == FIRRTLOr && c == 0:
		rw.ReplaceOp(op, x)
		return true
	case op.Name() == FIRRTLOr && c == ones:
		return replaceWithConstant(op, rw, FIRRTLConstant, ones)
	case op.Name() == FIRRTLXor && c == 0:
		rw.ReplaceOp(op, x)
		return true
	}
	return false
}

func foldFIRRTLNot(op *ir.Operation, rw *ir.Rewriter) bool {
	in := op.Operand(0)
	if v, ok := constantValue(in, FIRRTLConstant); ok {
		return replaceWithConstant(op, rw, FIRRTLConstant, ^v)
	}
	if def := in.DefiningOp(); def != nil && def.Name() == FIRRTLNot {
		rw.ReplaceOp(op, def.Operand(0))
		return true
	}
	return false
}
