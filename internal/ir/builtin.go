package ir

import "fmt"

// BuiltinNamespace is the namespace of the always-loaded builtin dialect.
const BuiltinNamespace = "builtin"

// ModuleOpName is the root operation of every Module.
const ModuleOpName = "builtin.module"

var builtinDialect = NewDialect(BuiltinNamespace, "1.0.0", "root container operations").Register(
	&OpDef{
		Name:        "module",
		Summary:     "top-level container of an IR module",
		SymbolTable: true,
		Verify:      verifyBuiltinModule,
	},
)

// BuiltinDialect returns the builtin dialect. Every Context loads it.
func BuiltinDialect() *Dialect {
	return builtinDialect
}

func verifyBuiltinModule(op *Operation) error {
	if op.NumOperands() != 0 || op.NumResults() != 0 {
		return fmt.Errorf("expects no operands or results")
	}
	if op.NumRegions() != 1 || len(op.Region(0).Blocks()) != 1 {
		return fmt.Errorf("expects one region with a single block")
	}
	if op.Body().NumArguments() != 0 {
		return fmt.Errorf("body block must not have arguments")
	}
	return nil
}
