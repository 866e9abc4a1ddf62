package transforms_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hwpipe/internal/dialects"
	"github.com/roach88/hwpipe/internal/ir"
	"github.com/roach88/hwpipe/internal/parser"
	"github.com/roach88/hwpipe/internal/pass"
	"github.com/roach88/hwpipe/internal/transforms"
)

const foldable = `firrtl.circuit @Top {
  firrtl.module @Top {portDirections = "io"} {
  ^(%in: !firrtl.uint<4>, %out: !firrtl.uint<4>):
    %c0 = firrtl.constant {value = 0} : !firrtl.uint<4>
    %a = firrtl.or(%in, %c0) : !firrtl.uint<4>
    %n = firrtl.node(%a) : !firrtl.uint<4>
    %nn = firrtl.not(%n) : !firrtl.uint<4>
    %nnn = firrtl.not(%nn) : !firrtl.uint<4>
    firrtl.skip
    firrtl.connect(%out, %nnn)
  }
}
`

func parse(t *testing.T, src string) *ir.Module {
	t.Helper()
	ctx, err := dialects.NewContext()
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctx.Close() })
	m, err := parser.Parse(ctx, "t.fir", src, parser.Options{})
	require.NoError(t, err)
	return m
}

func runPipeline(t *testing.T, m *ir.Module, pipeline string) {
	t.Helper()
	pm := pass.NewManager(m.Context())
	pm.EnableVerifier(true)
	require.NoError(t, pass.ParsePipeline(pm, pipeline, pass.NewRegistry(transforms.Registrations()...)))
	require.NoError(t, pm.Run(m))
}

func opNames(op *ir.Operation) []string {
	var names []string
	op.Walk(func(o *ir.Operation) ir.WalkResult {
		names = append(names, o.Name())
		return ir.WalkAdvance
	})
	return names
}

func findFirst(op *ir.Operation, name string) *ir.Operation {
	var found *ir.Operation
	op.Walk(func(o *ir.Operation) ir.WalkResult {
		if o.Name() == name {
			found = o
			return ir.WalkInterrupt
		}
		return ir.WalkAdvance
	})
	return found
}

func TestCanonicalize_FoldsToFixedPoint(t *testing.T) {
	m := parse(t, foldable)
	runPipeline(t, m, "canonicalize")

	assert.Equal(t, []string{
		ir.ModuleOpName, dialects.FIRRTLCircuit, dialects.FIRRTLModule, dialects.FIRRTLConnect,
	}, opNames(m.Operation()))

	mod := findFirst(m.Operation(), dialects.FIRRTLModule)
	conn := findFirst(m.Operation(), dialects.FIRRTLConnect)
	assert.Same(t, mod.Body().Argument(0), conn.Operand(1))
}

func TestCanonicalize_SecondRunIsNoop(t *testing.T) {
	m := parse(t, foldable)
	runPipeline(t, m, "canonicalize")
	before := ir.MustFingerprint(m.Operation())

	mod := findFirst(m.Operation(), dialects.FIRRTLModule)
	res := transforms.ApplyPatternsGreedily(m.Context(), mod, transforms.GreedyConfig{TopDown: true, RegionSimplify: true})
	assert.False(t, res.Changed)
	assert.True(t, res.Converged)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, before, ir.MustFingerprint(m.Operation()))
}

func TestCanonicalize_BottomUpReachesSameResult(t *testing.T) {
	top := parse(t, foldable)
	runPipeline(t, top, "canonicalize{top-down=true}")
	bottom := parse(t, foldable)
	runPipeline(t, bottom, "canonicalize{top-down=false}")
	assert.True(t, ir.Equal(top.Operation(), bottom.Operation(), ir.EqualOptions{}))
}

func TestCanonicalize_IterationLimit(t *testing.T) {
	m := parse(t, foldable)
	mod := findFirst(m.Operation(), dialects.FIRRTLModule)
	res := transforms.ApplyPatternsGreedily(m.Context(), mod, transforms.GreedyConfig{
		TopDown: true, RegionSimplify: true, MaxIterations: 1,
	})
	assert.True(t, res.Changed)
	assert.False(t, res.Converged)
	assert.Equal(t, 1, res.Iterations)
	assert.Positive(t, res.Rewrites)
	assert.NoError(t, ir.Verify(m.Operation()))
}

func TestSimpleCanonicalize_KeepsDeadOps(t *testing.T) {
	m := parse(t, `firrtl.circuit @Top {
  firrtl.module @Top {portDirections = "io"} {
  ^(%in: !firrtl.uint<1>, %out: !firrtl.uint<1>):
    %dead = firrtl.constant {value = 1} : !firrtl.uint<1>
    firrtl.skip
    firrtl.connect(%out, %in)
  }
}
`)
	runPipeline(t, m, "simple-canonicalize")
	names := opNames(m.Operation())
	assert.Contains(t, names, dialects.FIRRTLConstant)
	assert.NotContains(t, names, dialects.FIRRTLSkip)
}

func TestCanonicalize_CombFolds(t *testing.T) {
	m := parse(t, `hw.module @M {inputNames = ["a"], outputNames = ["x", "y", "z"]} {
^(%a: i8):
  %c1 = hw.constant {value = 12} : i8
  %c2 = hw.constant {value = 10} : i8
  %k = comb.and(%c1, %c2) : i8
  %s = comb.or(%a) : i8
  %z = comb.xor(%a, %a) : i8
  hw.output(%k, %s, %z)
}
`)
	runPipeline(t, m, "canonicalize")

	out := findFirst(m.Operation(), dialects.HWOutput)
	require.NotNil(t, out)
	k, ok := out.Operand(0).DefiningOp().IntAttr("value")
	require.True(t, ok)
	assert.Equal(t, int64(8), k)
	assert.True(t, out.Operand(1).IsBlockArgument())
	z, ok := out.Operand(2).DefiningOp().IntAttr("value")
	require.True(t, ok)
	assert.Equal(t, int64(0), z)
	assert.NotContains(t, opNames(m.Operation()), dialects.CombAnd)
}

func TestCSE_MergesAcrossNestedRegions(t *testing.T) {
	m := parse(t, `hw.module @M {inputNames = ["a", "b"], outputNames = ["x", "y", "z"]} {
^(%a: i4, %b: i4):
  %x = comb.and(%a, %b) : i4
  %y = comb.and(%a, %b) : i4
  %w = comb.and(%b, %a) : i4
  hw.output(%x, %y, %w)
}
`)
	runPipeline(t, m, "cse")

	out := findFirst(m.Operation(), dialects.HWOutput)
	assert.Same(t, out.Operand(0), out.Operand(1))
	assert.NotSame(t, out.Operand(0), out.Operand(2), "operand order is part of the key")
}

func TestCSE_DoesNotMergeDifferentAttributes(t *testing.T) {
	m := parse(t, `hw.module @M {inputNames = [], outputNames = ["x", "y", "z"]} {
  %x = hw.constant {value = 1} : i4
  %y = hw.constant {value = 2} : i4
  %z = hw.constant {value = 1} : i4
  hw.output(%x, %y, %z)
}
`)
	runPipeline(t, m, "cse")

	out := findFirst(m.Operation(), dialects.HWOutput)
	assert.NotSame(t, out.Operand(0), out.Operand(1))
	assert.Same(t, out.Operand(0), out.Operand(2))
}

func TestCSE_SiblingRegionsStaySeparate(t *testing.T) {
	m := parse(t, `hw.module @A {inputNames = [], outputNames = ["x"]} {
  %x = hw.constant {value = 1} : i4
  hw.output(%x)
}
hw.module @B {inputNames = [], outputNames = ["x"]} {
  %x = hw.constant {value = 1} : i4
  hw.output(%x)
}
`)
	runPipeline(t, m, "cse")
	var consts int
	for _, name := range opNames(m.Operation()) {
		if name == dialects.HWConstant {
			consts++
		}
	}
	assert.Equal(t, 2, consts)
}

func TestStripDebugInfo(t *testing.T) {
	m := parse(t, foldable)
	runPipeline(t, m, "strip-debuginfo")
	m.Operation().Walk(func(o *ir.Operation) ir.WalkResult {
		assert.False(t, o.Loc().IsKnown(), o.Name())
		return ir.WalkAdvance
	})
}

func TestVerifyPass(t *testing.T) {
	m := parse(t, foldable)
	mod := findFirst(m.Operation(), dialects.FIRRTLModule)
	mod.SetAttr(dialects.PortDirectionsAttr, ir.StringAttr("ii"))
	require.NoError(t, ir.Verify(m.Operation()))

	mod.SetAttr(dialects.PortDirectionsAttr, ir.StringAttr("x"))
	pm := pass.NewManager(m.Context())
	require.NoError(t, pm.Add(transforms.NewVerify()))
	err := pm.Run(m)
	require.Error(t, err)
	assert.True(t, pass.IsPassFailure(err))
	assert.True(t, ir.IsVerifyError(err))
}

func TestRegistrations(t *testing.T) {
	m := parse(t, foldable)
	reg := pass.NewRegistry(transforms.Registrations()...)

	names := make([]string, 0)
	for _, r := range reg.All() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"canonicalize", "cse", "simple-canonicalize", "strip-debuginfo", "verify"}, names)

	pm := pass.NewManager(m.Context())
	require.NoError(t, pass.ParsePipeline(pm, "canonicalize{max-iterations=3}, simple-canonicalize, cse", reg))
	assert.Equal(t,
		"builtin.module(canonicalize{max-iterations=3 region-simplify=true top-down=true}, simple-canonicalize, cse)",
		pm.String())

	_, err := reg.Create("canonicalize", pass.Options{"max-iterations": "0"})
	assert.ErrorContains(t, err, "at least 1")
}

func TestDefaultCanonicalizeConfig(t *testing.T) {
	assert.Equal(t, transforms.CanonicalizeConfig{TopDown: true, RegionSimplify: true, MaxIterations: 10},
		transforms.DefaultCanonicalizeConfig())
	assert.False(t, transforms.NewSimpleCanonicalize().Config().RegionSimplify)
}
