package transforms

import (
	"github.com/roach88/hwpipe/internal/ir"
	"github.com/roach88/hwpipe/internal/pass"
)

// Verify runs the IR verifier as an explicit pipeline step.
type Verify struct{}

// NewVerify creates the verify pass.
func NewVerify() *Verify { return &Verify{} }

func (*Verify) Name() string { return "verify" }

func (*Verify) Run(op *ir.Operation, _ *pass.State) error {
	return ir.Verify(op)
}

// StripDebugInfo replaces every location with the unknown location.
type StripDebugInfo struct{}

// NewStripDebugInfo creates the strip-debuginfo pass.
func NewStripDebugInfo() *StripDebugInfo { return &StripDebugInfo{} }

func (*StripDebugInfo) Name() string { return "strip-debuginfo" }

func (*StripDebugInfo) Run(op *ir.Operation, _ *pass.State) error {
	op.Walk(func(o *ir.Operation) ir.WalkResult {
		o.SetLoc(ir.UnknownLoc)
		return ir.WalkAdvance
	})
	return nil
}
