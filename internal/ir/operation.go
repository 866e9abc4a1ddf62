package ir

import (
	"fmt"
	"strings"
)

// SymbolAttrName is the attribute that holds an operation's symbol name.
// The textual form prints it as "@Name" right after the operation name.
const SymbolAttrName = "sym_name"

// Value is an SSA value: either an operation result or a block argument.
type Value struct {
	name  string
	typ   Type
	owner *Operation // defining operation; nil for block arguments
	block *Block     // owning block for block arguments
	index int        // result number or argument number
	uses  []*Operation
}

// Name returns the value's name hint (without the leading '%').
func (v *Value) Name() string { return v.name }

// SetName changes the name hint.
func (v *Value) SetName(name string) { v.name = name }

// Type returns the value's type.
func (v *Value) Type() Type { return v.typ }

// SetType changes the value's type. Used by type conversions.
func (v *Value) SetType(t Type) { v.typ = t }

// DefiningOp returns the operation producing v, or nil for block arguments.
func (v *Value) DefiningOp() *Operation { return v.owner }

// IsBlockArgument reports whether v is a block argument.
func (v *Value) IsBlockArgument() bool { return v.owner == nil }

// OwnerBlock returns the block that owns a block argument, or the block
// containing the defining operation for results.
func (v *Value) OwnerBlock() *Block {
	if v.owner != nil {
		return v.owner.block
	}
	return v.block
}

// Index returns the result number or argument number.
func (v *Value) Index() int { return v.index }

// HasUses reports whether any operation uses v.
func (v *Value) HasUses() bool { return len(v.uses) > 0 }

// NumUses returns the number of operand slots referring to v.
func (v *Value) NumUses() int { return len(v.uses) }

// Users returns the distinct operations using v, in first-use order.
func (v *Value) Users() []*Operation {
	seen := make(map[*Operation]bool, len(v.uses))
	users := make([]*Operation, 0, len(v.uses))
	for _, u := range v.uses {
		if !seen[u] {
			seen[u] = true
			users = append(users, u)
		}
	}
	return users
}

// ReplaceAllUsesWith rewrites every operand slot that refers to v to refer
// to nv instead.
func (v *Value) ReplaceAllUsesWith(nv *Value) {
	if v == nv {
		return
	}
	for _, user := range v.Users() {
		for i, operand := range user.operands {
			if operand == v {
				user.SetOperand(i, nv)
			}
		}
	}
}

func (v *Value) addUse(op *Operation) {
	v.uses = append(v.uses, op)
}

func (v *Value) removeUse(op *Operation) {
	for i, u := range v.uses {
		if u == op {
			v.uses = append(v.uses[:i], v.uses[i+1:]...)
			return
		}
	}
}

func (v *Value) String() string {
	if v.name == "" {
		return "%<anon>"
	}
	return "%" + v.name
}

// Operation is a node in the IR tree.
type Operation struct {
	name     string
	def      *OpDef
	operands []*Value
	results  []*Value
	attrs    []NamedAttribute
	regions  []*Region
	loc      Location
	block    *Block
	erased   bool
}

// Name returns the dialect-qualified operation name, e.g. "firrtl.connect".
func (o *Operation) Name() string { return o.name }

// Dialect returns the namespace prefix of the operation name.
func (o *Operation) Dialect() string {
	if i := strings.IndexByte(o.name, '.'); i >= 0 {
		return o.name[:i]
	}
	return o.name
}

// Def returns the registered definition, or nil for unregistered operations.
func (o *Operation) Def() *OpDef { return o.def }

// IsPure reports whether the operation has no side effects.
func (o *Operation) IsPure() bool { return o.def != nil && o.def.Pure }

// Loc returns the operation's source location.
func (o *Operation) Loc() Location { return o.loc }

// SetLoc replaces the operation's source location.
func (o *Operation) SetLoc(loc Location) { o.loc = loc }

// IsErased reports whether the operation has been erased from the IR.
func (o *Operation) IsErased() bool { return o.erased }

// Operands returns the operand list. The slice must not be modified.
func (o *Operation) Operands() []*Value { return o.operands }

// NumOperands returns the number of operands.
func (o *Operation) NumOperands() int { return len(o.operands) }

// Operand returns operand i.
func (o *Operation) Operand(i int) *Value { return o.operands[i] }

// SetOperand replaces operand i, keeping use lists consistent.
func (o *Operation) SetOperand(i int, v *Value) {
	if old := o.operands[i]; old != nil {
		old.removeUse(o)
	}
	o.operands[i] = v
	if v != nil {
		v.addUse(o)
	}
}

// SetOperands replaces the whole operand list.
func (o *Operation) SetOperands(vs []*Value) {
	o.dropOperands()
	o.operands = make([]*Value, len(vs))
	for i, v := range vs {
		o.operands[i] = v
		if v != nil {
			v.addUse(o)
		}
	}
}

func (o *Operation) dropOperands() {
	for _, v := range o.operands {
		if v != nil {
			v.removeUse(o)
		}
	}
	o.operands = nil
}

// Results returns the result values.
func (o *Operation) Results() []*Value { return o.results }

// NumResults returns the number of results.
func (o *Operation) NumResults() int { return len(o.results) }

// Result returns result i.
func (o *Operation) Result(i int) *Value { return o.results[i] }

// HasResultUses reports whether any result of o is used.
func (o *Operation) HasResultUses() bool {
	for _, r := range o.results {
		if r.HasUses() {
			return true
		}
	}
	return false
}

// Attrs returns the attribute list (excluding nothing). The slice must not be
// modified.
func (o *Operation) Attrs() []NamedAttribute { return o.attrs }

// Attr returns the attribute named name.
func (o *Operation) Attr(name string) (Attribute, bool) {
	for _, na := range o.attrs {
		if na.Name == name {
			return na.Value, true
		}
	}
	return nil, false
}

// SetAttr sets or replaces an attribute, keeping the original position when
// replacing.
func (o *Operation) SetAttr(name string, value Attribute) {
	for i, na := range o.attrs {
		if na.Name == name {
			o.attrs[i].Value = value
			return
		}
	}
	o.attrs = append(o.attrs, NamedAttribute{Name: name, Value: value})
}

// RemoveAttr deletes an attribute and reports whether it existed.
func (o *Operation) RemoveAttr(name string) bool {
	for i, na := range o.attrs {
		if na.Name == name {
			o.attrs = append(o.attrs[:i], o.attrs[i+1:]...)
			return true
		}
	}
	return false
}

// StringAttr returns the string attribute named name, or "".
func (o *Operation) StringAttr(name string) string {
	a, ok := o.Attr(name)
	if !ok {
		return ""
	}
	s, _ := a.(StringAttr)
	return string(s)
}

// IntAttr returns the integer attribute named name.
func (o *Operation) IntAttr(name string) (int64, bool) {
	a, ok := o.Attr(name)
	if !ok {
		return 0, false
	}
	i, ok := a.(IntAttr)
	return int64(i), ok
}

// Symbol returns the operation's symbol name, or "".
func (o *Operation) Symbol() string { return o.StringAttr(SymbolAttrName) }

// SetSymbol sets the operation's symbol name.
func (o *Operation) SetSymbol(name string) { o.SetAttr(SymbolAttrName, StringAttr(name)) }

// Regions returns the operation's regions.
func (o *Operation) Regions() []*Region { return o.regions }

// NumRegions returns the number of regions.
func (o *Operation) NumRegions() int { return len(o.regions) }

// Region returns region i.
func (o *Operation) Region(i int) *Region { return o.regions[i] }

// AddRegion appends a region containing one empty block.
func (o *Operation) AddRegion() *Region {
	r := &Region{parent: o}
	r.AddBlock()
	o.regions = append(o.regions, r)
	return r
}

// Body returns the first block of the first region, or nil.
func (o *Operation) Body() *Block {
	if len(o.regions) == 0 || len(o.regions[0].blocks) == 0 {
		return nil
	}
	return o.regions[0].blocks[0]
}

// Block returns the block containing o, or nil for detached operations.
func (o *Operation) Block() *Block { return o.block }

// ParentOp returns the operation whose region contains o.
func (o *Operation) ParentOp() *Operation {
	if o.block == nil {
		return nil
	}
	return o.block.ParentOp()
}

// IsAncestorOf reports whether other is nested (at any depth) inside o.
func (o *Operation) IsAncestorOf(other *Operation) bool {
	for p := other.ParentOp(); p != nil; p = p.ParentOp() {
		if p == o {
			return true
		}
	}
	return false
}

// Erase detaches o from its block, drops its operand uses and erases all
// nested operations. Results must already be unused.
func (o *Operation) Erase() {
	if o.erased {
		return
	}
	if o.block != nil {
		o.block.remove(o)
	}
	o.dropAll()
}

func (o *Operation) dropAll() {
	for _, r := range o.regions {
		for _, b := range r.blocks {
			for _, nested := range b.ops {
				nested.block = nil
				nested.dropAll()
			}
			b.ops = nil
		}
	}
	o.dropOperands()
	o.erased = true
}

// MoveBefore moves o so that it sits directly before anchor.
func (o *Operation) MoveBefore(anchor *Operation) {
	if o.block != nil {
		o.block.remove(o)
	}
	anchor.block.InsertBefore(anchor, o)
}

// MoveToEnd moves o to the end of block b.
func (o *Operation) MoveToEnd(b *Block) {
	if o.block != nil {
		o.block.remove(o)
	}
	b.Append(o)
}

func (o *Operation) String() string {
	var sb strings.Builder
	_ = PrintOperation(&sb, o, PrintOptions{})
	return strings.TrimRight(sb.String(), "\n")
}

// Describe returns a short identification used in error messages,
// e.g. "'firrtl.module' @Top".
func (o *Operation) Describe() string {
	if sym := o.Symbol(); sym != "" {
		return fmt.Sprintf("'%s' @%s", o.name, sym)
	}
	return fmt.Sprintf("'%s'", o.name)
}

// WalkResult controls traversal in Walk.
type WalkResult int

const (
	// WalkAdvance continues into nested regions.
	WalkAdvance WalkResult = iota
	// WalkSkip does not visit the nested regions of the current operation.
	WalkSkip
	// WalkInterrupt stops the traversal.
	WalkInterrupt
)

// Walk visits o and all nested operations in depth-first pre-order.
// It returns false when fn interrupted the walk.
func (o *Operation) Walk(fn func(*Operation) WalkResult) bool {
	switch fn(o) {
	case WalkInterrupt:
		return false
	case WalkSkip:
		return true
	}
	for _, r := range o.regions {
		for _, b := range r.blocks {
			for _, nested := range b.Operations() {
				if nested.erased {
					continue
				}
				if !nested.Walk(fn) {
					return false
				}
			}
		}
	}
	return true
}

// WalkPostOrder visits nested operations before their parents.
func (o *Operation) WalkPostOrder(fn func(*Operation)) {
	for _, r := range o.regions {
		for _, b := range r.blocks {
			for _, nested := range b.Operations() {
				if !nested.erased {
					nested.WalkPostOrder(fn)
				}
			}
		}
	}
	fn(o)
}

// Region is a list of blocks owned by an operation.
type Region struct {
	blocks []*Block
	parent *Operation
}

// Blocks returns the region's blocks.
func (r *Region) Blocks() []*Block { return r.blocks }

// Front returns the first block, or nil.
func (r *Region) Front() *Block {
	if len(r.blocks) == 0 {
		return nil
	}
	return r.blocks[0]
}

// AddBlock appends a new empty block.
func (r *Region) AddBlock() *Block {
	b := &Block{region: r}
	r.blocks = append(r.blocks, b)
	return b
}

// ParentOp returns the operation owning the region.
func (r *Region) ParentOp() *Operation { return r.parent }

// Block is an ordered list of operations with arguments.
type Block struct {
	args   []*Value
	ops    []*Operation
	region *Region
}

// Arguments returns the block arguments.
func (b *Block) Arguments() []*Value { return b.args }

// NumArguments returns the number of block arguments.
func (b *Block) NumArguments() int { return len(b.args) }

// Argument returns argument i.
func (b *Block) Argument(i int) *Value { return b.args[i] }

// AddArgument appends a block argument.
func (b *Block) AddArgument(t Type, name string) *Value {
	v := &Value{name: name, typ: t, block: b, index: len(b.args)}
	b.args = append(b.args, v)
	return v
}

// Operations returns a snapshot of the block's operations, safe to iterate
// while the block is being mutated.
func (b *Block) Operations() []*Operation {
	out := make([]*Operation, len(b.ops))
	copy(out, b.ops)
	return out
}

// NumOperations returns the number of operations in the block.
func (b *Block) NumOperations() int { return len(b.ops) }

// Empty reports whether the block has no operations.
func (b *Block) Empty() bool { return len(b.ops) == 0 }

// Last returns the last operation, or nil.
func (b *Block) Last() *Operation {
	if len(b.ops) == 0 {
		return nil
	}
	return b.ops[len(b.ops)-1]
}

// Append adds a detached operation at the end of the block.
func (b *Block) Append(op *Operation) {
	op.block = b
	b.ops = append(b.ops, op)
}

// InsertBefore inserts a detached operation directly before anchor.
// A nil anchor appends.
func (b *Block) InsertBefore(anchor, op *Operation) {
	if anchor == nil {
		b.Append(op)
		return
	}
	idx := b.indexOf(anchor)
	if idx < 0 {
		b.Append(op)
		return
	}
	op.block = b
	b.ops = append(b.ops, nil)
	copy(b.ops[idx+1:], b.ops[idx:])
	b.ops[idx] = op
}

// IndexOf returns the position of op in the block, or -1.
func (b *Block) IndexOf(op *Operation) int { return b.indexOf(op) }

func (b *Block) indexOf(op *Operation) int {
	for i, o := range b.ops {
		if o == op {
			return i
		}
	}
	return -1
}

func (b *Block) remove(op *Operation) {
	if idx := b.indexOf(op); idx >= 0 {
		b.ops = append(b.ops[:idx], b.ops[idx+1:]...)
	}
	op.block = nil
}

// ParentRegion returns the region containing the block.
func (b *Block) ParentRegion() *Region { return b.region }

// ParentOp returns the operation owning the block's region.
func (b *Block) ParentOp() *Operation {
	if b.region == nil {
		return nil
	}
	return b.region.parent
}
