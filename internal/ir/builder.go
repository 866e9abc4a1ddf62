package ir

// OperationState collects everything needed to create an operation.
type OperationState struct {
	Name        string
	Symbol      string
	Operands    []*Value
	ResultTypes []Type
	ResultNames []string
	Attrs       []NamedAttribute
	Regions     int
	Loc         Location
}

// Listener is notified of IR mutations made through an OpBuilder or
// Rewriter. Rewrite drivers use it to maintain their worklist.
type Listener interface {
	OperationInserted(op *Operation)
	OperationErased(op *Operation)
	OperationModified(op *Operation)
}

// OpBuilder creates operations at an insertion point.
type OpBuilder struct {
	ctx      *Context
	block    *Block
	before   *Operation
	Listener Listener
}

// NewBuilder creates a builder without an insertion point.
func NewBuilder(ctx *Context) *OpBuilder {
	return &OpBuilder{ctx: ctx}
}

// Context returns the builder's context.
func (b *OpBuilder) Context() *Context { return b.ctx }

// SetInsertionPointToEnd makes new operations append to blk.
func (b *OpBuilder) SetInsertionPointToEnd(blk *Block) {
	b.block = blk
	b.before = nil
}

// SetInsertionPointBefore makes new operations go directly before op.
func (b *OpBuilder) SetInsertionPointBefore(op *Operation) {
	b.block = op.block
	b.before = op
}

// InsertionBlock returns the current insertion block.
func (b *OpBuilder) InsertionBlock() *Block { return b.block }

// Create builds an operation and inserts it at the insertion point, if any.
func (b *OpBuilder) Create(st OperationState) (*Operation, error) {
	op, err := b.ctx.CreateOperation(st)
	if err != nil {
		return nil, err
	}
	b.Insert(op)
	return op, nil
}

// Insert places a detached operation at the insertion point.
func (b *OpBuilder) Insert(op *Operation) {
	if b.block == nil {
		return
	}
	b.block.InsertBefore(b.before, op)
	if b.Listener != nil {
		b.Listener.OperationInserted(op)
	}
}

// Rewriter is the mutation interface handed to rewrite patterns.
type Rewriter struct {
	*OpBuilder
}

// NewRewriter creates a rewriter reporting to l (which may be nil).
func NewRewriter(ctx *Context, l Listener) *Rewriter {
	b := NewBuilder(ctx)
	b.Listener = l
	return &Rewriter{OpBuilder: b}
}

// ReplaceOp replaces every result of op with the corresponding value and
// erases op.
func (r *Rewriter) ReplaceOp(op *Operation, values ...*Value) {
	for i, res := range op.Results() {
		if i < len(values) {
			r.ReplaceAllUsesWith(res, values[i])
		}
	}
	r.EraseOp(op)
}

// ReplaceAllUsesWith redirects uses of from to to and notifies the listener
// about every modified user.
func (r *Rewriter) ReplaceAllUsesWith(from, to *Value) {
	users := from.Users()
	from.ReplaceAllUsesWith(to)
	if r.Listener != nil {
		for _, u := range users {
			r.Listener.OperationModified(u)
		}
	}
}

// EraseOp erases op.
func (r *Rewriter) EraseOp(op *Operation) {
	if r.Listener != nil {
		r.Listener.OperationErased(op)
	}
	op.Erase()
}

// ModifyInPlace runs fn on op and reports the modification.
func (r *Rewriter) ModifyInPlace(op *Operation, fn func()) {
	fn()
	if r.Listener != nil {
		r.Listener.OperationModified(op)
	}
}
