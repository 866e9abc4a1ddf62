package transforms

import (
	"github.com/roach88/hwpipe/internal/ir"
)

// GreedyConfig controls ApplyPatternsGreedily.
type GreedyConfig struct {
	// TopDown visits operations in pre-order; otherwise in post-order.
	TopDown bool
	// RegionSimplify erases pure operations whose results are unused.
	RegionSimplify bool
	// MaxIterations bounds the number of full sweeps. Zero or less means
	// the default of 10.
	MaxIterations int
}

// DefaultMaxIterations bounds the greedy driver when no limit is given.
const DefaultMaxIterations = 10

// GreedyResult summarizes a run of the greedy driver.
type GreedyResult struct {
	Changed    bool
	Converged  bool
	Iterations int
	Rewrites   int
	Erased     int
}

// ApplyPatternsGreedily applies the canonicalization patterns of every
// operation nested under root until nothing changes or the iteration limit
// is reached. The root itself is never rewritten or erased.
func ApplyPatternsGreedily(ctx *ir.Context, root *ir.Operation, cfg GreedyConfig) GreedyResult {
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	var res GreedyResult
	for res.Iterations < maxIter {
		res.Iterations++
		d := newGreedyDriver(ctx, root, cfg)
		if !d.run(&res) {
			res.Converged = true
			return res
		}
		res.Changed = true
	}
	return res
}

type greedyDriver struct {
	cfg      GreedyConfig
	root     *ir.Operation
	worklist []*ir.Operation
	queued   map[*ir.Operation]bool
	rw       *ir.Rewriter
}

func newGreedyDriver(ctx *ir.Context, root *ir.Operation, cfg GreedyConfig) *greedyDriver {
	d := &greedyDriver{cfg: cfg, root: root, queued: make(map[*ir.Operation]bool)}
	d.rw = ir.NewRewriter(ctx, d)
	var ops []*ir.Operation
	if cfg.TopDown {
		root.Walk(func(op *ir.Operation) ir.WalkResult {
			ops = append(ops, op)
			return ir.WalkAdvance
		})
	} else {
		root.WalkPostOrder(func(op *ir.Operation) {
			ops = append(ops, op)
		})
	}
	for _, op := range ops {
		if op != root {
			d.push(op)
		}
	}
	return d
}

func (d *greedyDriver) push(op *ir.Operation) {
	if op == nil || op == d.root || op.IsErased() || d.queued[op] {
		return
	}
	d.queued[op] = true
	d.worklist = append(d.worklist, op)
}

// run drains the worklist and reports whether the IR changed.
func (d *greedyDriver) run(res *GreedyResult) bool {
	changed := false
	for len(d.worklist) > 0 {
		op := d.worklist[0]
		d.worklist = d.worklist[1:]
		delete(d.queued, op)
		if op.IsErased() || op.Block() == nil {
			continue
		}

		if d.cfg.RegionSimplify && isTriviallyDead(op) {
			d.pushOperandDefs(op)
			d.rw.EraseOp(op)
			res.Erased++
			changed = true
			continue
		}

		def := op.Def()
		if def == nil {
			continue
		}
		for _, p := range def.Patterns {
			// Operands may lose their last use through the rewrite.
			operands := append([]*ir.Value(nil), op.Operands()...)
			if p.Rewrite(op, d.rw) {
				res.Rewrites++
				changed = true
				for _, v := range operands {
					d.push(v.DefiningOp())
				}
				break
			}
		}
	}
	return changed
}

func (d *greedyDriver) pushOperandDefs(op *ir.Operation) {
	for _, v := range op.Operands() {
		d.push(v.DefiningOp())
	}
}

// OperationInserted implements ir.Listener.
func (d *greedyDriver) OperationInserted(op *ir.Operation) { d.push(op) }

// OperationModified implements ir.Listener.
func (d *greedyDriver) OperationModified(op *ir.Operation) { d.push(op) }

// OperationErased implements ir.Listener.
func (d *greedyDriver) OperationErased(op *ir.Operation) {
	for _, v := range op.Operands() {
		d.push(v.DefiningOp())
	}
}

// isTriviallyDead reports whether op can be erased without changing
// behavior: pure, no regions and no used results.
func isTriviallyDead(op *ir.Operation) bool {
	return op.IsPure() && op.NumRegions() == 0 && !op.HasResultUses()
}
