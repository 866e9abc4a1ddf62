package ir

// EqualOptions tunes structural comparison.
type EqualOptions struct {
	IgnoreLocations bool
	IgnoreNames     bool
}

// Equal reports whether two operation trees are structurally identical:
// same operation names, attributes, result and argument types, regions and
// use-def graph. Value name hints and locations are compared unless opts
// say otherwise.
func Equal(a, b *Operation, opts EqualOptions) bool {
	e := &equality{opts: opts, values: make(map[*Value]*Value)}
	return e.op(a, b)
}

type equality struct {
	opts   EqualOptions
	values map[*Value]*Value
}

func (e *equality) value(a, b *Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.typ != b.typ {
		return false
	}
	if !e.opts.IgnoreNames && a.name != b.name {
		return false
	}
	e.values[a] = b
	return true
}

func (e *equality) op(a, b *Operation) bool {
	if a.name != b.name {
		return false
	}
	if !e.opts.IgnoreLocations && a.loc != b.loc {
		return false
	}
	if len(a.attrs) != len(b.attrs) {
		return false
	}
	for i := range a.attrs {
		if a.attrs[i].Name != b.attrs[i].Name || !AttrEqual(a.attrs[i].Value, b.attrs[i].Value) {
			return false
		}
	}
	if len(a.operands) != len(b.operands) {
		return false
	}
	for i, va := range a.operands {
		vb := b.operands[i]
		mapped, ok := e.values[va]
		if ok {
			if mapped != vb {
				return false
			}
		} else if va != vb {
			// Both refer to the same value defined outside the compared trees.
			return false
		}
	}
	if len(a.results) != len(b.results) {
		return false
	}
	for i := range a.results {
		if !e.value(a.results[i], b.results[i]) {
			return false
		}
	}
	if len(a.regions) != len(b.regions) {
		return false
	}
	for i, ra := range a.regions {
		rb := b.regions[i]
		if len(ra.blocks) != len(rb.blocks) {
			return false
		}
		for j, ba := range ra.blocks {
			if !e.block(ba, rb.blocks[j]) {
				return false
			}
		}
	}
	return true
}

func (e *equality) block(a, b *Block) bool {
	if len(a.args) != len(b.args) || len(a.ops) != len(b.ops) {
		return false
	}
	for i := range a.args {
		if !e.value(a.args[i], b.args[i]) {
			return false
		}
	}
	for i := range a.ops {
		if !e.op(a.ops[i], b.ops[i]) {
			return false
		}
	}
	return true
}
