package conversion

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/roach88/hwpipe/internal/dialects"
	"github.com/roach88/hwpipe/internal/ir"
	"github.com/roach88/hwpipe/internal/parser"
	"github.com/roach88/hwpipe/internal/pass"
)

// LowerFIRRTLToHWConfig configures lower-firrtl-to-hw.
type LowerFIRRTLToHWConfig struct {
	// WarnOnUnprocessedAnnotations emits a warning for every annotation
	// left on the root operation.
	WarnOnUnprocessedAnnotations bool
}

// DefaultLowerFIRRTLToHWConfig returns the default configuration.
func DefaultLowerFIRRTLToHWConfig() LowerFIRRTLToHWConfig {
	return LowerFIRRTLToHWConfig{}
}

// LowerFIRRTLToHW replaces every firrtl.circuit with hw.module operations.
type LowerFIRRTLToHW struct {
	config LowerFIRRTLToHWConfig
}

// NewLowerFIRRTLToHW creates the pass.
func NewLowerFIRRTLToHW(cfg LowerFIRRTLToHWConfig) *LowerFIRRTLToHW {
	return &LowerFIRRTLToHW{config: cfg}
}

func (*LowerFIRRTLToHW) Name() string   { return "lower-firrtl-to-hw" }
func (*LowerFIRRTLToHW) Anchor() string { return ir.ModuleOpName }

func (p *LowerFIRRTLToHW) Options() []pass.KV {
	return []pass.KV{{Key: "warn-on-unprocessed-annotations", Value: strconv.FormatBool(p.config.WarnOnUnprocessedAnnotations)}}
}

func (p *LowerFIRRTLToHW) Run(root *ir.Operation, st *pass.State) error {
	ctx := st.Context()
	if p.config.WarnOnUnprocessedAnnotations {
		warnAnnotations(ctx, root)
	}
	for _, op := range root.Body().Operations() {
		if op.Name() != dialects.FIRRTLCircuit {
			continue
		}
		b := ir.NewBuilder(ctx)
		b.SetInsertionPointBefore(op)
		for _, mod := range op.Body().Operations() {
			if err := lowerModule(b, mod); err != nil {
				return err
			}
		}
		st.Logger().Debug("lowered circuit", "circuit", op.Symbol(), "modules", op.Body().NumOperations())
		op.Erase()
	}
	return nil
}

func warnAnnotations(ctx *ir.Context, root *ir.Operation) {
	attr, ok := root.Attr(parser.AnnotationsAttr)
	if !ok {
		return
	}
	annos, ok := attr.(ir.ArrayAttr)
	if !ok {
		return
	}
	for _, a := range annos {
		class := "<unknown>"
		if d, ok := a.(ir.DictAttr); ok {
			if c := d.GetString("class"); c != "" {
				class = c
			}
		}
		ctx.EmitWarning(root.Loc(), "unprocessed annotation: '%s'", class)
	}
}

// LowerType converts a firrtl ground type to the builtin integer type of
// the same width. Clocks become i1.
func LowerType(t ir.Type) (ir.Type, error) {
	if t.IsInteger() {
		return t, nil
	}
	if t.Dialect() != dialects.FIRRTL {
		return ir.NoType, fmt.Errorf("cannot lower type %s", t)
	}
	switch t.Mnemonic() {
	case "clock":
		return ir.IntegerType(1), nil
	case "uint", "sint":
		w, ok := t.Width()
		if !ok || w <= 0 {
			return ir.NoType, fmt.Errorf("type %s has no known width", t)
		}
		return ir.IntegerType(w), nil
	}
	return ir.NoType, fmt.Errorf("cannot lower type %s", t)
}

// moduleLowering holds the per-module state of the conversion. Values are
// resolved on demand so that operations are emitted after everything they
// depend on, whatever the connect order in the source.
type moduleLowering struct {
	b      *ir.OpBuilder
	src    *ir.Operation
	dst    *ir.Operation
	inputs map[*ir.Value]*ir.Value

	// drivers maps each sink (output port, wire, instance input) to the
	// source of its last connect.
	drivers map[*ir.Value]*ir.Value
	// connects maps a sink to its last connect op, for error locations.
	connects map[*ir.Value]*ir.Operation

	values    map[*ir.Value]*ir.Value
	visiting  map[*ir.Value]bool
	instances map[*ir.Operation]*ir.Operation
}

func lowerModule(b *ir.OpBuilder, mod *ir.Operation) error {
	if mod.Name() != dialects.FIRRTLModule {
		return pass.OpErrorf(mod, "expected '%s'", dialects.FIRRTLModule)
	}
	l := &moduleLowering{
		b:         ir.NewBuilder(b.Context()),
		src:       mod,
		inputs:    make(map[*ir.Value]*ir.Value),
		drivers:   make(map[*ir.Value]*ir.Value),
		connects:  make(map[*ir.Value]*ir.Operation),
		values:    make(map[*ir.Value]*ir.Value),
		visiting:  make(map[*ir.Value]bool),
		instances: make(map[*ir.Operation]*ir.Operation),
	}

	var inNames, outNames []string
	var outPorts []*ir.Value
	for i, port := range mod.Body().Arguments() {
		if dialects.PortDirection(mod, i) == dialects.Output {
			outNames = append(outNames, port.Name())
			outPorts = append(outPorts, port)
		} else {
			inNames = append(inNames, port.Name())
		}
	}

	hwMod, err := b.Create(ir.OperationState{
		Name:   dialects.HWModule,
		Symbol: mod.Symbol(),
		Attrs: []ir.NamedAttribute{
			{Name: dialects.InputNamesAttr, Value: dialects.StringArray(inNames)},
			{Name: dialects.OutputNamesAttr, Value: dialects.StringArray(outNames)},
		},
		Regions: 1,
		Loc:     mod.Loc(),
	})
	if err != nil {
		return pass.OpError(mod, err)
	}
	l.dst = hwMod
	l.b.SetInsertionPointToEnd(hwMod.Body())

	for i, port := range mod.Body().Arguments() {
		if dialects.PortDirection(mod, i) == dialects.Output {
			continue
		}
		t, err := LowerType(port.Type())
		if err != nil {
			return pass.OpErrorf(mod, "port %s: %v", port, err)
		}
		l.inputs[port] = hwMod.Body().AddArgument(t, port.Name())
	}

	for _, op := range mod.Body().Operations() {
		if op.Name() == dialects.FIRRTLConnect {
			dst := op.Operand(0)
			l.drivers[dst] = op.Operand(1)
			l.connects[dst] = op
		}
	}

	// Instances are kept even when none of their outputs are read.
	for _, op := range mod.Body().Operations() {
		if op.Name() == dialects.FIRRTLInstance {
			if _, err := l.instance(op); err != nil {
				return err
			}
		}
	}

	outs := make([]*ir.Value, len(outPorts))
	for i, port := range outPorts {
		v, err := l.resolve(port)
		if err != nil {
			return err
		}
		outs[i] = v
	}
	_, err = l.b.Create(ir.OperationState{Name: dialects.HWOutput, Operands: outs, Loc: mod.Loc()})
	if err != nil {
		return pass.OpError(mod, err)
	}
	return nil
}

// resolve returns the lowered value standing for v.
func (l *moduleLowering) resolve(v *ir.Value) (*ir.Value, error) {
	if nv, ok := l.inputs[v]; ok {
		return nv, nil
	}
	if nv, ok := l.values[v]; ok {
		return nv, nil
	}
	if l.visiting[v] {
		return nil, l.cycleError(v)
	}
	l.visiting[v] = true
	defer delete(l.visiting, v)

	nv, err := l.lower(v)
	if err != nil {
		return nil, err
	}
	l.values[v] = nv
	return nv, nil
}

func (l *moduleLowering) cycleError(v *ir.Value) error {
	if op := v.DefiningOp(); op != nil {
		return pass.OpErrorf(op, "combinational cycle through %s", v)
	}
	return pass.OpErrorf(l.src, "combinational cycle through port %s", v)
}

// isSink reports whether v is only given a value by connects.
func (l *moduleLowering) isSink(v *ir.Value) bool {
	def := v.DefiningOp()
	if def == nil {
		return v.OwnerBlock() == l.src.Body() && dialects.PortDirection(l.src, v.Index()) == dialects.Output
	}
	switch def.Name() {
	case dialects.FIRRTLWire:
		return true
	case dialects.FIRRTLInstance:
		target := dialects.InstanceTarget(def)
		return target != nil && dialects.PortDirection(target, v.Index()) == dialects.Input
	}
	return false
}

func (l *moduleLowering) lower(v *ir.Value) (*ir.Value, error) {
	if l.isSink(v) {
		src, ok := l.drivers[v]
		if !ok {
			return nil, l.undrivenError(v)
		}
		return l.resolve(src)
	}

	op := v.DefiningOp()
	if op == nil {
		return nil, pass.OpErrorf(l.src, "value %s is defined outside the module", v)
	}
	switch op.Name() {
	case dialects.FIRRTLNode:
		return l.resolve(op.Operand(0))
	case dialects.FIRRTLInstance:
		inst, err := l.instance(op)
		if err != nil {
			return nil, err
		}
		return inst.Result(l.outputIndex(op, v.Index())), nil
	case dialects.FIRRTLConstant:
		value, _ := op.IntAttr("value")
		return l.constant(op, v, value)
	case dialects.FIRRTLAnd, dialects.FIRRTLOr, dialects.FIRRTLXor:
		return l.binary(op, v)
	case dialects.FIRRTLNot:
		return l.not(op, v)
	}
	return nil, pass.OpErrorf(op, "cannot lower '%s'", op.Name())
}

func (l *moduleLowering) undrivenError(v *ir.Value) error {
	if def := v.DefiningOp(); def != nil {
		if def.Name() == dialects.FIRRTLInstance {
			return pass.OpErrorf(def, "instance port %s is not driven", v)
		}
		return pass.OpErrorf(def, "wire %s is not driven", v)
	}
	return pass.OpErrorf(l.src, "output port %s is not driven", v)
}

func (l *moduleLowering) create(op *ir.Operation, st ir.OperationState) (*ir.Operation, error) {
	st.Loc = op.Loc()
	nop, err := l.b.Create(st)
	if err != nil {
		return nil, pass.OpError(op, err)
	}
	return nop, nil
}

func (l *moduleLowering) constant(op *ir.Operation, v *ir.Value, value int64) (*ir.Value, error) {
	t, err := LowerType(v.Type())
	if err != nil {
		return nil, pass.OpError(op, err)
	}
	c, err := l.create(op, ir.OperationState{
		Name:        dialects.HWConstant,
		ResultTypes: []ir.Type{t},
		ResultNames: []string{v.Name()},
		Attrs:       []ir.NamedAttribute{{Name: "value", Value: ir.IntAttr(value)}},
	})
	if err != nil {
		return nil, err
	}
	return c.Result(0), nil
}

var combOps = map[string]string{
	dialects.FIRRTLAnd: dialects.CombAnd,
	dialects.FIRRTLOr:  dialects.CombOr,
	dialects.FIRRTLXor: dialects.CombXor,
}

func (l *moduleLowering) binary(op *ir.Operation, v *ir.Value) (*ir.Value, error) {
	lhs, err := l.resolve(op.Operand(0))
	if err != nil {
		return nil, err
	}
	rhs, err := l.resolve(op.Operand(1))
	if err != nil {
		return nil, err
	}
	t, err := LowerType(v.Type())
	if err != nil {
		return nil, pass.OpError(op, err)
	}
	nop, err := l.create(op, ir.OperationState{
		Name:        combOps[op.Name()],
		Operands:    []*ir.Value{lhs, rhs},
		ResultTypes: []ir.Type{t},
		ResultNames: []string{v.Name()},
	})
	if err != nil {
		return nil, err
	}
	return nop.Result(0), nil
}

// not lowers to an xor with the all-ones constant of the operand width.
func (l *moduleLowering) not(op *ir.Operation, v *ir.Value) (*ir.Value, error) {
	in, err := l.resolve(op.Operand(0))
	if err != nil {
		return nil, err
	}
	t, err := LowerType(v.Type())
	if err != nil {
		return nil, pass.OpError(op, err)
	}
	w, _ := t.Width()
	ones := int64(-1)
	if w < 64 {
		ones = int64(1)<<uint(w) - 1
	}
	mask, err := l.create(op, ir.OperationState{
		Name:        dialects.HWConstant,
		ResultTypes: []ir.Type{t},
		Attrs:       []ir.NamedAttribute{{Name: "value", Value: ir.IntAttr(ones)}},
	})
	if err != nil {
		return nil, err
	}
	nop, err := l.create(op, ir.OperationState{
		Name:        dialects.CombXor,
		Operands:    []*ir.Value{in, mask.Result(0)},
		ResultTypes: []ir.Type{t},
		ResultNames: []string{v.Name()},
	})
	if err != nil {
		return nil, err
	}
	return nop.Result(0), nil
}

// outputIndex maps a firrtl instance result index to the index among the
// target's output ports.
func (l *moduleLowering) outputIndex(inst *ir.Operation, idx int) int {
	target := dialects.InstanceTarget(inst)
	n := 0
	for i := 0; i < idx; i++ {
		if dialects.PortDirection(target, i) == dialects.Output {
			n++
		}
	}
	return n
}

// instance lowers a firrtl.instance once. Reading one of its outputs while
// its inputs are being resolved is a combinational cycle.
func (l *moduleLowering) instance(op *ir.Operation) (*ir.Operation, error) {
	if inst, ok := l.instances[op]; ok {
		if inst == nil {
			return nil, pass.OpErrorf(op, "combinational cycle through instance")
		}
		return inst, nil
	}
	target := dialects.InstanceTarget(op)
	if target == nil {
		return nil, pass.OpError(op, errors.New("cannot resolve instance target"))
	}
	l.instances[op] = nil

	var operands []*ir.Value
	var resultTypes []ir.Type
	var resultNames []string
	for i, r := range op.Results() {
		if dialects.PortDirection(target, i) == dialects.Input {
			v, err := l.resolve(r)
			if err != nil {
				return nil, err
			}
			operands = append(operands, v)
			continue
		}
		t, err := LowerType(r.Type())
		if err != nil {
			return nil, pass.OpError(op, err)
		}
		resultTypes = append(resultTypes, t)
		resultNames = append(resultNames, r.Name())
	}
	attrs := []ir.NamedAttribute{{Name: "moduleName", Value: ir.SymbolRefAttr(target.Symbol())}}
	if name := op.StringAttr("name"); name != "" {
		attrs = append(attrs, ir.NamedAttribute{Name: "instanceName", Value: ir.StringAttr(name)})
	}
	inst, err := l.create(op, ir.OperationState{
		Name:        dialects.HWInstance,
		Operands:    operands,
		ResultTypes: resultTypes,
		ResultNames: resultNames,
		Attrs:       attrs,
	})
	if err != nil {
		return nil, err
	}
	l.instances[op] = inst
	return inst, nil
}

// Registrations returns the pass registrations of this package.
func Registrations() []pass.Registration {
	return []pass.Registration{{
		Name:    "lower-firrtl-to-hw",
		Summary: "Lower firrtl circuits to hw modules and comb logic",
		Options: []pass.OptionSpec{
			{Name: "warn-on-unprocessed-annotations", Default: "false", Help: "warn about annotations left on the design"},
		},
		New: func(opts pass.Options) (pass.Pass, error) {
			cfg := DefaultLowerFIRRTLToHWConfig()
			var err error
			if cfg.WarnOnUnprocessedAnnotations, err = opts.Bool("warn-on-unprocessed-annotations", cfg.WarnOnUnprocessedAnnotations); err != nil {
				return nil, err
			}
			return NewLowerFIRRTLToHW(cfg), nil
		},
	}}
}
