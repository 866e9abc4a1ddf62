package dialects

import (
	"fmt"

	"github.com/roach88/hwpipe/internal/ir"
)

// comb operation names.
const (
	CombAnd = "comb.and"
	CombOr  = "comb.or"
	CombXor = "comb.xor"
)

var combDialect = NewCombDialect()

// CombDialect returns the shared comb dialect definition.
func CombDialect() *ir.Dialect { return combDialect }

// NewCombDialect builds a fresh comb dialect definition.
func NewCombDialect() *ir.Dialect {
	return ir.NewDialect(Comb, "1.0.0", "combinational logic").Register(
		&ir.OpDef{Name: "and", Pure: true, Verify: verifyVariadic, Patterns: combPatterns},
		&ir.OpDef{Name: "or", Pure: true, Verify: verifyVariadic, Patterns: combPatterns},
		&ir.OpDef{Name: "xor", Pure: true, Verify: verifyVariadic, Patterns: combPatterns},
	)
}

var combPatterns = []ir.RewritePattern{
	{Name: "fold-constants", Rewrite: foldCombConstants},
	{Name: "fold-single-operand", Rewrite: foldCombSingle},
	{Name: "fold-idempotent", Rewrite: foldCombIdempotent},
	{Name: "fold-identity", Rewrite: foldCombIdentity},
}

func verifyVariadic(op *ir.Operation) error {
	if op.NumOperands() == 0 {
		return fmt.Errorf("expects at least one operand")
	}
	if err := expectResults(op, 1); err != nil {
		return err
	}
	t := op.Result(0).Type()
	for i, v := range op.Operands() {
		if v.Type() != t {
			return fmt.Errorf("operand #%d has type %s, expected %s", i, v.Type(), t)
		}
	}
	return nil
}

func foldCombConstants(op *ir.Operation, rw *ir.Rewriter) bool {
	if op.NumOperands() < 2 {
		return false
	}
	var acc int64
	for i, v := range op.Operands() {
		c, ok := constantValue(v, HWConstant)
		if !ok {
			return false
		}
		switch {
		case i == 0:
			acc = c
		case op.Name() == CombAnd:
			acc &= c
		case op.Name() == CombOr:
			acc |= c
		default:
			acc ^= c
		}
	}
	return replaceWithConstant(op, rw, HWConstant, acc)
}

func foldCombSingle(op *ir.Operation, rw *ir.Rewriter) bool {
	if op.NumOperands() != 1 {
		return false
	}
	rw.ReplaceOp(op, op.Operand(0))
	return true
}

// foldCombIdempotent handles and(x, x) -> x, or(x, x) -> x, xor(x, x) -> 0.
func foldCombIdempotent(op *ir.Operation, rw *ir.Rewriter) bool {
	if op.NumOperands() != 2 || op.Operand(0) != op.Operand(1) {
		return false
	}
	if op.Name() == CombXor {
		return replaceWithConstant(op, rw, HWConstant, 0)
	}
	rw.ReplaceOp(op, op.Operand(0))
	return true
}

// foldCombIdentity drops identity operands (0 for or/xor, all ones for and)
// and folds absorbing ones (0 for and, all ones for or).
func foldCombIdentity(op *ir.Operation, rw *ir.Rewriter) bool {
	if op.NumOperands() < 2 {
		return false
	}
	t := op.Result(0).Type()
	ones := allOnes(t)
	identity, absorbing, hasAbsorbing := int64(0), int64(0), false
	switch op.Name() {
	case CombAnd:
		identity, absorbing, hasAbsorbing = ones, 0, true
	case CombOr:
		identity, absorbing, hasAbsorbing = 0, ones, true
	}
	var rest []*ir.Value
	for _, v := range op.Operands() {
		c, ok := constantValue(v, HWConstant)
		if ok && hasAbsorbing && truncate(c, t) == absorbing {
			return replaceWithConstant(op, rw, HWConstant, absorbing)
		}
		if ok && truncate(c, t) == identity {
			continue
		}
		rest = append(rest, v)
	}
	if len(rest) == op.NumOperands() {
		return false
	}
	if len(rest) == 0 {
		return replaceWithConstant(op, rw, HWConstant, identity)
	}
	rw.ModifyInPlace(op, func() { op.SetOperands(rest) })
	return true
}
