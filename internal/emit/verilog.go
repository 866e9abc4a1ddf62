package emit

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/roach88/hwpipe/internal/dialects"
	"github.com/roach88/hwpipe/internal/ir"
)

// WriteVerilog renders every hw.module under root as a Verilog module.
// Nothing is written when some operation cannot be exported.
func WriteVerilog(w io.Writer, root *ir.Operation) error {
	var sb strings.Builder
	first := true
	for _, op := range root.Body().Operations() {
		if op.Name() != dialects.HWModule {
			return exportErrorf(op, "only '%s' is allowed at the top level", dialects.HWModule)
		}
		if !first {
			sb.WriteString("\n")
		}
		first = false
		if err := writeModule(&sb, op); err != nil {
			return err
		}
	}
	bw := bufio.NewWriter(w)
	bw.WriteString(sb.String())
	return bw.Flush()
}

type moduleWriter struct {
	sb    *strings.Builder
	names map[*ir.Value]string
	used  map[string]bool
	next  int
}

func writeModule(sb *strings.Builder, mod *ir.Operation) error {
	mw := &moduleWriter{sb: sb, names: make(map[*ir.Value]string), used: make(map[string]bool)}
	out := dialects.OutputOp(mod)
	if out == nil {
		return exportErrorf(mod, "missing '%s'", dialects.HWOutput)
	}
	inputs := dialects.Strings(mod, dialects.InputNamesAttr)
	outputs := dialects.Strings(mod, dialects.OutputNamesAttr)

	var ports []string
	for i, arg := range mod.Body().Arguments() {
		name := mw.declare(arg, nameAt(inputs, i, arg.Name()))
		ports = append(ports, "  input  "+width(arg.Type())+name)
	}
	for i, v := range out.Operands() {
		name := mw.reserve(nameAt(outputs, i, ""))
		outputs = setAt(outputs, i, name)
		ports = append(ports, "  output "+width(v.Type())+name)
	}

	fmt.Fprintf(sb, "module %s(", identifier(mod.Symbol()))
	if len(ports) > 0 {
		sb.WriteString("\n")
		sb.WriteString(strings.Join(ports, ",\n"))
		sb.WriteString("\n")
	}
	sb.WriteString(");\n")

	for _, op := range mod.Body().Operations() {
		if err := mw.writeOp(op); err != nil {
			return err
		}
	}
	for i, v := range out.Operands() {
		expr, err := mw.expr(v)
		if err != nil {
			return exportErrorf(out, "%v", err)
		}
		fmt.Fprintf(sb, "  assign %s = %s;\n", outputs[i], expr)
	}
	sb.WriteString("endmodule\n")
	return nil
}

func (mw *moduleWriter) writeOp(op *ir.Operation) error {
	switch op.Name() {
	case dialects.HWConstant, dialects.HWOutput:
		// Constants are printed inline at their uses.
		return nil
	case dialects.CombAnd, dialects.CombOr, dialects.CombXor:
		sym := map[string]string{dialects.CombAnd: " & ", dialects.CombOr: " | ", dialects.CombXor: " ^ "}[op.Name()]
		parts := make([]string, op.NumOperands())
		for i, v := range op.Operands() {
			e, err := mw.expr(v)
			if err != nil {
				return exportErrorf(op, "%v", err)
			}
			parts[i] = e
		}
		res := op.Result(0)
		name := mw.declare(res, res.Name())
		fmt.Fprintf(mw.sb, "  wire %s%s = %s;\n", width(res.Type()), name, strings.Join(parts, sym))
		return nil
	case dialects.HWInstance:
		return mw.writeInstance(op)
	}
	return exportErrorf(op, "operation was not lowered to hw/comb")
}

func (mw *moduleWriter) writeInstance(op *ir.Operation) error {
	ref, _ := op.Attr("moduleName")
	sym, _ := ref.(ir.SymbolRefAttr)
	target := ir.LookupSymbol(op, string(sym))
	if target == nil {
		return exportErrorf(op, "unknown module %s", ref)
	}
	inNames := dialects.Strings(target, dialects.InputNamesAttr)
	outNames := dialects.Strings(target, dialects.OutputNamesAttr)

	var conns []string
	for i, v := range op.Operands() {
		e, err := mw.expr(v)
		if err != nil {
			return exportErrorf(op, "%v", err)
		}
		conns = append(conns, fmt.Sprintf("    .%s(%s)", identifier(nameAt(inNames, i, "in"+strconv.Itoa(i))), e))
	}
	for i, r := range op.Results() {
		name := mw.declare(r, r.Name())
		fmt.Fprintf(mw.sb, "  wire %s%s;\n", width(r.Type()), name)
		conns = append(conns, fmt.Sprintf("    .%s(%s)", identifier(nameAt(outNames, i, "out"+strconv.Itoa(i))), name))
	}

	instName := op.StringAttr("instanceName")
	if instName == "" {
		instName = mw.reserve(string(sym) + "_inst")
	} else {
		instName = mw.reserve(instName)
	}
	fmt.Fprintf(mw.sb, "  %s %s (", identifier(string(sym)), instName)
	if len(conns) > 0 {
		mw.sb.WriteString("\n")
		mw.sb.WriteString(strings.Join(conns, ",\n"))
		mw.sb.WriteString("\n  ")
	}
	mw.sb.WriteString(");\n")
	return nil
}

// expr returns the Verilog expression for v: a literal for constants,
// otherwise the name declared for it.
func (mw *moduleWriter) expr(v *ir.Value) (string, error) {
	if def := v.DefiningOp(); def != nil && def.Name() == dialects.HWConstant {
		value, _ := def.IntAttr("value")
		w, _ := v.Type().Width()
		return fmt.Sprintf("%d'h%s", w, strconv.FormatUint(uint64(value)&mask(w), 16)), nil
	}
	if name, ok := mw.names[v]; ok {
		return name, nil
	}
	return "", fmt.Errorf("value %s is used before it is defined", v)
}

func (mw *moduleWriter) declare(v *ir.Value, hint string) string {
	name := mw.reserve(hint)
	mw.names[v] = name
	return name
}

// reserve returns a unique legal identifier based on hint.
func (mw *moduleWriter) reserve(hint string) string {
	base := identifier(hint)
	if base == "" {
		base = "_GEN_" + strconv.Itoa(mw.next)
		mw.next++
	}
	name := base
	for i := 1; mw.used[name] || verilogKeywords[name]; i++ {
		name = base + "_" + strconv.Itoa(i)
	}
	mw.used[name] = true
	return name
}

func nameAt(names []string, i int, def string) string {
	if i < len(names) {
		return names[i]
	}
	return def
}

func setAt(names []string, i int, name string) []string {
	for len(names) <= i {
		names = append(names, "")
	}
	names[i] = name
	return names
}

func width(t ir.Type) string {
	w, ok := t.Width()
	if !ok || w <= 1 {
		return ""
	}
	return fmt.Sprintf("[%d:0] ", w-1)
}

func mask(w int) uint64 {
	if w >= 64 || w <= 0 {
		return ^uint64(0)
	}
	return uint64(1)<<uint(w) - 1
}

// identifier replaces characters that are not legal in a simple Verilog
// identifier.
func identifier(s string) string {
	var sb strings.Builder
	for i, r := range s {
		switch {
		case r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
			sb.WriteRune(r)
		case r >= '0' && r <= '9' || r == '$':
			if i == 0 {
				sb.WriteRune('_')
			}
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}

var verilogKeywords = map[string]bool{
	"always": true, "assign": true, "begin": true, "case": true, "else": true,
	"end": true, "endmodule": true, "for": true, "if": true, "initial": true,
	"inout": true, "input": true, "module": true, "output": true, "reg": true,
	"wire": true, "logic": true,
}
