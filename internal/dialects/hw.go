package dialects

import (
	"fmt"

	"github.com/roach88/hwpipe/internal/ir"
)

// hw operation names.
const (
	HWModule   = "hw.module"
	HWOutput   = "hw.output"
	HWConstant = "hw.constant"
	HWInstance = "hw.instance"
)

// Attribute names carried by hw.module.
const (
	InputNamesAttr  = "inputNames"
	OutputNamesAttr = "outputNames"
)

var hwDialect = NewHWDialect()

// HWDialect returns the shared hw dialect definition.
func HWDialect() *ir.Dialect { return hwDialect }

// NewHWDialect builds a fresh hw dialect definition.
func NewHWDialect() *ir.Dialect {
	return ir.NewDialect(HW, "1.0.0", "structural hardware modules").Register(
		&ir.OpDef{
			Name:    "module",
			Summary: "module with input block arguments and an hw.output terminator",
			Verify:  verifyHWModule,
		},
		&ir.OpDef{
			Name:    "output",
			Summary: "module terminator listing the output values",
			Verify:  verifyHWOutput,
		},
		&ir.OpDef{
			Name:   "constant",
			Pure:   true,
			Verify: verifyHWConstant,
		},
		&ir.OpDef{
			Name:    "instance",
			Summary: "instantiate an hw.module; operands are inputs, results are outputs",
			Verify:  verifyHWInstance,
		},
	)
}

// StringArray converts a list of strings into an array attribute.
func StringArray(values []string) ir.ArrayAttr {
	out := make(ir.ArrayAttr, len(values))
	for i, v := range values {
		out[i] = ir.StringAttr(v)
	}
	return out
}

// Strings returns the string elements of the array attribute name on op.
func Strings(op *ir.Operation, name string) []string {
	a, ok := op.Attr(name)
	if !ok {
		return nil
	}
	arr, ok := a.(ir.ArrayAttr)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(ir.StringAttr); ok {
			out = append(out, string(s))
		}
	}
	return out
}

// OutputOp returns the hw.output terminator of an hw.module, or nil.
func OutputOp(mod *ir.Operation) *ir.Operation {
	body := mod.Body()
	if body == nil {
		return nil
	}
	if last := body.Last(); last != nil && last.Name() == HWOutput {
		return last
	}
	return nil
}

func verifyHWModule(op *ir.Operation) error {
	if err := expectRegions(op, 1); err != nil {
		return err
	}
	if op.Symbol() == "" {
		return fmt.Errorf("requires a symbol name")
	}
	inputs := Strings(op, InputNamesAttr)
	if len(inputs) != op.Body().NumArguments() {
		return fmt.Errorf("has %d inputs but %s lists %d", op.Body().NumArguments(), InputNamesAttr, len(inputs))
	}
	out := OutputOp(op)
	if out == nil {
		return fmt.Errorf("body must end with '%s'", HWOutput)
	}
	outputs := Strings(op, OutputNamesAttr)
	if len(outputs) != out.NumOperands() {
		return fmt.Errorf("has %d outputs but %s lists %d", out.NumOperands(), OutputNamesAttr, len(outputs))
	}
	return nil
}

func verifyHWOutput(op *ir.Operation) error {
	parent := op.ParentOp()
	if parent == nil || parent.Name() != HWModule {
		return fmt.Errorf("expects parent op '%s'", HWModule)
	}
	if op.Block().Last() != op {
		return fmt.Errorf("must be the last operation in its block")
	}
	return expectResults(op, 0)
}

func verifyHWConstant(op *ir.Operation) error {
	if err := expectResults(op, 1); err != nil {
		return err
	}
	if !op.Result(0).Type().IsInteger() {
		return fmt.Errorf("result must be an integer type, got %s", op.Result(0).Type())
	}
	if _, ok := op.IntAttr("value"); !ok {
		return fmt.Errorf("requires an integer 'value' attribute")
	}
	return nil
}

func verifyHWInstance(op *ir.Operation) error {
	ref, ok := op.Attr("moduleName")
	if !ok {
		return fmt.Errorf("requires a 'moduleName' symbol reference")
	}
	sym, ok := ref.(ir.SymbolRefAttr)
	if !ok {
		return fmt.Errorf("'moduleName' must be a symbol reference, got %s", ref)
	}
	target := ir.LookupSymbol(op, string(sym))
	if target == nil || target.Name() != HWModule {
		return fmt.Errorf("references unknown module %s", ref)
	}
	if n := target.Body().NumArguments(); n != op.NumOperands() {
		return fmt.Errorf("has %d inputs but %s expects %d", op.NumOperands(), ref, n)
	}
	if out := OutputOp(target); out != nil && out.NumOperands() != op.NumResults() {
		return fmt.Errorf("has %d results but %s produces %d", op.NumResults(), ref, out.NumOperands())
	}
	return nil
}
