package ir

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// PrintOptions controls the generic textual form.
type PrintOptions struct {
	// SkipLocations omits loc(...) suffixes.
	SkipLocations bool
	// Indent is the per-level indentation (two spaces when empty).
	Indent string
}

// PrintOperation writes op and its nested regions in the generic textual
// form understood by the parser.
//
// Value names come from their hints. A hint that is empty or already
// visible at the definition point gets a numeric name or suffix, so the
// printed text always resolves to the same use-def graph.
func PrintOperation(w io.Writer, op *Operation, opts PrintOptions) error {
	if opts.Indent == "" {
		opts.Indent = "  "
	}
	bw := bufio.NewWriter(w)
	p := &printer{w: bw, opts: opts, names: make(map[*Value]string)}
	p.pushScope()
	p.printOp(op, 0)
	p.popScope()
	return bw.Flush()
}

type printer struct {
	w      *bufio.Writer
	opts   PrintOptions
	names  map[*Value]string
	scopes []map[string]bool
	next   int
}

func (p *printer) pushScope() { p.scopes = append(p.scopes, make(map[string]bool)) }
func (p *printer) popScope()  { p.scopes = p.scopes[:len(p.scopes)-1] }

func (p *printer) visible(name string) bool {
	for _, s := range p.scopes {
		if s[name] {
			return true
		}
	}
	return false
}

func (p *printer) define(v *Value) string {
	candidate := v.name
	if candidate == "" {
		candidate = strconv.Itoa(p.next)
		p.next++
	}
	name := candidate
	for i := 1; p.visible(name); i++ {
		name = candidate + "_" + strconv.Itoa(i)
	}
	p.scopes[len(p.scopes)-1][name] = true
	p.names[v] = name
	return name
}

func (p *printer) ref(v *Value) string {
	if v == nil {
		return "%<null>"
	}
	if name, ok := p.names[v]; ok {
		return "%" + name
	}
	// Value defined outside the printed subtree.
	if v.name != "" {
		return "%" + v.name
	}
	return "%<unknown>"
}

func (p *printer) indent(depth int) {
	for i := 0; i < depth; i++ {
		p.w.WriteString(p.opts.Indent)
	}
}

func (p *printer) printOp(op *Operation, depth int) {
	p.indent(depth)
	if len(op.results) > 0 {
		names := make([]string, len(op.results))
		for i, r := range op.results {
			names[i] = "%" + p.define(r)
		}
		p.w.WriteString(strings.Join(names, ", "))
		p.w.WriteString(" = ")
	}
	p.w.WriteString(op.name)

	if sym, ok := op.Attr(SymbolAttrName); ok {
		if s, isStr := sym.(StringAttr); isStr {
			p.w.WriteString(" @")
			p.w.WriteString(string(s))
		}
	}

	if len(op.operands) > 0 {
		refs := make([]string, len(op.operands))
		for i, v := range op.operands {
			refs[i] = p.ref(v)
		}
		p.w.WriteString("(")
		p.w.WriteString(strings.Join(refs, ", "))
		p.w.WriteString(")")
	}

	var attrs []string
	for _, na := range op.attrs {
		if na.Name == SymbolAttrName {
			if _, isStr := na.Value.(StringAttr); isStr {
				continue
			}
		}
		attrs = append(attrs, FormatAttrName(na.Name)+" = "+na.Value.String())
	}
	if len(attrs) > 0 {
		p.w.WriteString(" {")
		p.w.WriteString(strings.Join(attrs, ", "))
		p.w.WriteString("}")
	}

	if len(op.results) > 0 {
		types := make([]string, len(op.results))
		for i, r := range op.results {
			types[i] = string(r.typ)
		}
		p.w.WriteString(" : ")
		p.w.WriteString(strings.Join(types, ", "))
	}

	for _, r := range op.regions {
		p.w.WriteString(" {\n")
		p.pushScope()
		for i, b := range r.blocks {
			p.printBlock(b, i == 0, depth+1)
		}
		p.popScope()
		p.indent(depth)
		p.w.WriteString("}")
	}

	if !p.opts.SkipLocations && op.loc.IsKnown() {
		fmt.Fprintf(p.w, " loc(%s:%d:%d)", strconv.Quote(op.loc.File), op.loc.Line, op.loc.Column)
	}
	p.w.WriteString("\n")
}

func (p *printer) printBlock(b *Block, first bool, depth int) {
	if !first || len(b.args) > 0 {
		args := make([]string, len(b.args))
		for i, a := range b.args {
			args[i] = "%" + p.define(a) + ": " + string(a.typ)
		}
		p.indent(depth - 1)
		p.w.WriteString("^(")
		p.w.WriteString(strings.Join(args, ", "))
		p.w.WriteString("):\n")
	}
	for _, op := range b.ops {
		p.printOp(op, depth)
	}
}
