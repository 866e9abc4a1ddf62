package pass_test

import (
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hwpipe/internal/dialects"
	"github.com/roach88/hwpipe/internal/ir"
	"github.com/roach88/hwpipe/internal/parser"
	"github.com/roach88/hwpipe/internal/pass"
	"github.com/roach88/hwpipe/internal/testutil"
	"github.com/roach88/hwpipe/internal/timing"
)

const twoModules = `firrtl.circuit @Top {
  firrtl.module @Top {portDirections = "io"} {
  ^(%in: !firrtl.uint<1>, %out: !firrtl.uint<1>):
    %s_a, %s_b = firrtl.instance {moduleName = @Sub} : !firrtl.uint<1>, !firrtl.uint<1>
  }
  firrtl.module @Sub {portDirections = "io"} {
  ^(%a: !firrtl.uint<1>, %b: !firrtl.uint<1>):
    firrtl.connect(%b, %a)
  }
}
`

func setup(t *testing.T, src string) (*ir.Context, *ir.Module, *ir.CollectHandler) {
	t.Helper()
	h := &ir.CollectHandler{}
	ctx, err := dialects.NewContext(ir.WithDiagnosticHandler(h))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctx.Close() })
	m, err := parser.Parse(ctx, "t.fir", src, parser.Options{})
	require.NoError(t, err)
	return ctx, m, h
}

// recorder returns a pass that appends "<name>@<symbol or op name>" to log.
func recorder(name string, log *[]string) pass.Pass {
	return &pass.Func{PassName: name, Fn: func(op *ir.Operation, _ *pass.State) error {
		target := op.Symbol()
		if target == "" {
			target = op.Name()
		}
		*log = append(*log, name+"@"+target)
		return nil
	}}
}

func TestManager_RunsInInsertionOrder(t *testing.T) {
	ctx, m, _ := setup(t, twoModules)
	var log []string
	pm := pass.NewManager(ctx)
	require.NoError(t, pm.Add(recorder("a", &log), recorder("b", &log)))
	circuit, err := pm.Nest(dialects.FIRRTLCircuit)
	require.NoError(t, err)
	mod, err := circuit.Nest(dialects.FIRRTLModule)
	require.NoError(t, err)
	require.NoError(t, mod.Add(recorder("c", &log)))
	require.NoError(t, pm.Add(recorder("d", &log)))

	require.NoError(t, pm.Run(m))
	assert.Equal(t, []string{"a@builtin.module", "b@builtin.module", "c@Top", "c@Sub", "d@builtin.module"}, log)
	assert.Equal(t, 4, pm.Size())
	assert.Equal(t, pass.EntryNested, pm.Entries()[2].Kind)
}

func TestManager_NestedDoesNotDescendIntoMatches(t *testing.T) {
	ctx, m, _ := setup(t, twoModules)
	var log []string
	pm := pass.NewManager(ctx)
	// firrtl.module is found directly under the circuit without nesting on
	// the circuit first.
	mod, err := pm.Nest(dialects.FIRRTLModule)
	require.NoError(t, err)
	require.NoError(t, mod.Add(recorder("x", &log)))
	require.NoError(t, pm.Run(m))
	assert.Equal(t, []string{"x@Top", "x@Sub"}, log)
}

func TestManager_NestUnknownKind(t *testing.T) {
	ctx, _, _ := setup(t, twoModules)
	pm := pass.NewManager(ctx)
	_, err := pm.Nest("nope.thing")
	assert.True(t, ir.IsUnregisteredDialect(err))
}

func TestManager_FailureAbortsEverything(t *testing.T) {
	ctx, m, h := setup(t, twoModules)
	var log []string
	pm := pass.NewManager(ctx)
	mod, err := pm.Nest(dialects.FIRRTLModule)
	require.NoError(t, err)
	boom := &pass.Func{PassName: "boom", Fn: func(op *ir.Operation, _ *pass.State) error {
		if op.Symbol() == "Top" {
			return errors.New("cannot handle Top")
		}
		return nil
	}}
	require.NoError(t, mod.Add(boom, recorder("after-boom", &log)))
	require.NoError(t, pm.Add(recorder("later", &log)))

	err = pm.Run(m)
	var pf *pass.PassFailure
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, "boom", pf.Pass)
	assert.Equal(t, dialects.FIRRTLModule, pf.OpName)
	assert.Equal(t, "Top", pf.Symbol)
	assert.Equal(t, 2, pf.Loc.Line)
	assert.Empty(t, log)
	assert.True(t, h.HasErrors())
	assert.Contains(t, err.Error(), "pass 'boom' failed on 'firrtl.module' @Top")

	// The module is released after a failed run.
	require.NoError(t, m.Acquire())
	m.Release()
}

func TestManager_OpErrorNamesInnerOperation(t *testing.T) {
	ctx, m, _ := setup(t, twoModules)
	pm := pass.NewManager(ctx)
	require.NoError(t, pm.Add(&pass.Func{PassName: "find-connect", Fn: func(op *ir.Operation, _ *pass.State) error {
		var found *ir.Operation
		op.Walk(func(o *ir.Operation) ir.WalkResult {
			if o.Name() == dialects.FIRRTLConnect {
				found = o
				return ir.WalkInterrupt
			}
			return ir.WalkAdvance
		})
		return pass.OpErrorf(found, "connect not allowed")
	}}))

	err := pm.Run(m)
	var pf *pass.PassFailure
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, dialects.FIRRTLConnect, pf.OpName)
	assert.Equal(t, 8, pf.Loc.Line)
	assert.EqualError(t, pf.Err, "connect not allowed")
}

func TestManager_AnchorMismatch(t *testing.T) {
	ctx, m, _ := setup(t, twoModules)
	pm := pass.NewManager(ctx)
	require.NoError(t, pm.Add(&pass.Func{PassName: "module-only", AnchorOn: dialects.FIRRTLModule,
		Fn: func(*ir.Operation, *pass.State) error { return nil }}))
	err := pm.Run(m)
	var pf *pass.PassFailure
	require.ErrorAs(t, err, &pf)
	assert.Contains(t, pf.Err.Error(), "anchored on 'firrtl.module'")
}

func TestManager_RootKindMismatch(t *testing.T) {
	ctx, m, _ := setup(t, twoModules)
	pm := pass.NewManagerOn(ctx, dialects.FIRRTLCircuit)
	err := pm.Run(m)
	require.Error(t, err)
	assert.False(t, pass.IsPassFailure(err))
}

func TestManager_MutationDuringRun(t *testing.T) {
	ctx, m, _ := setup(t, twoModules)
	pm := pass.NewManager(ctx)
	tm := timing.NewManager()
	var addErr, nestErr, timingErr, runErr error
	require.NoError(t, pm.Add(&pass.Func{PassName: "meddle", Fn: func(*ir.Operation, *pass.State) error {
		addErr = pm.Add(&pass.Func{PassName: "x"})
		_, nestErr = pm.Nest(dialects.FIRRTLModule)
		timingErr = pm.EnableTiming(tm.Root())
		runErr = pm.Run(m)
		return nil
	}}))
	require.NoError(t, pm.Run(m))
	assert.ErrorIs(t, addErr, pass.ErrRunInProgress)
	assert.ErrorIs(t, nestErr, pass.ErrRunInProgress)
	assert.ErrorIs(t, timingErr, pass.ErrRunInProgress)
	assert.ErrorIs(t, runErr, ir.ErrModuleBusy)
	assert.Equal(t, 1, pm.Size())
	assert.False(t, pm.IsRunning())
}

func TestManager_ModuleAlreadyOwned(t *testing.T) {
	ctx, m, _ := setup(t, twoModules)
	require.NoError(t, m.Acquire())
	defer m.Release()
	assert.ErrorIs(t, pass.NewManager(ctx).Run(m), ir.ErrModuleBusy)
}

func TestManager_VerifyEach(t *testing.T) {
	ctx, m, _ := setup(t, twoModules)
	breakIR := &pass.Func{PassName: "break-ports", AnchorOn: dialects.FIRRTLModule, Fn: func(op *ir.Operation, _ *pass.State) error {
		op.SetAttr(dialects.PortDirectionsAttr, ir.StringAttr("i"))
		return nil
	}}

	pm := pass.NewManager(ctx)
	mod, err := pm.Nest(dialects.FIRRTLModule)
	require.NoError(t, err)
	require.NoError(t, mod.Add(breakIR))
	require.NoError(t, pm.Run(m), "without verify-each the broken IR goes unnoticed")

	_, m2, _ := setup(t, twoModules)
	pm2 := pass.NewManager(m2.Context())
	pm2.EnableVerifier(true)
	mod2, err := pm2.Nest(dialects.FIRRTLModule)
	require.NoError(t, err)
	require.NoError(t, mod2.Add(breakIR))
	err = pm2.Run(m2)
	var pf *pass.PassFailure
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, "break-ports", pf.Pass)
	assert.True(t, ir.IsVerifyError(err))
}

func TestManager_Timing(t *testing.T) {
	ctx, m, _ := setup(t, twoModules)
	tm := timing.NewManager(timing.WithClock(testutil.NewFakeClock(time.Millisecond)))
	pm := pass.NewManager(ctx)
	require.NoError(t, pm.EnableTiming(tm.Root()))
	var log []string
	mod, err := pm.Nest(dialects.FIRRTLModule)
	require.NoError(t, err)
	require.NoError(t, mod.Add(recorder("inner", &log)))
	require.NoError(t, pm.Add(recorder("outer", &log)))
	require.NoError(t, pm.Run(m))

	var nodes []string
	counts := map[string]int{}
	tm.Walk(func(n timing.Node) {
		nodes = append(nodes, fmt.Sprintf("%d:%s", n.Depth, n.Name))
		counts[n.Name] = n.Count
	})
	assert.Equal(t, []string{"0:Total", "1:'firrtl.module' Pipeline", "2:inner", "1:outer"}, nodes)
	assert.Equal(t, 2, counts["inner"])
	assert.Equal(t, 1, counts["'firrtl.module' Pipeline"])
	assert.Greater(t, tm.Total(), time.Duration(0))
}

func TestManager_TimingDisabledByDefault(t *testing.T) {
	ctx, m, _ := setup(t, twoModules)
	pm := pass.NewManager(ctx)
	var sawEnabled bool
	require.NoError(t, pm.Add(&pass.Func{PassName: "probe", Fn: func(_ *ir.Operation, st *pass.State) error {
		sawEnabled = st.Timer().IsEnabled()
		return nil
	}}))
	require.NoError(t, pm.Run(m))
	assert.False(t, sawEnabled)
}

// optPass is a configurable pass for pipeline tests.
type optPass struct {
	name  string
	depth int
	fast  bool
}

func (p *optPass) Name() string                        { return p.name }
func (p *optPass) Run(*ir.Operation, *pass.State) error { return nil }
func (p *optPass) Options() []pass.KV {
	return []pass.KV{{Key: "depth", Value: strconv.Itoa(p.depth)}, {Key: "fast", Value: strconv.FormatBool(p.fast)}}
}

func testRegistry() *pass.Registry {
	newOpt := func(name string) pass.Registration {
		return pass.Registration{
			Name:    name,
			Summary: "configurable test pass",
			Options: []pass.OptionSpec{{Name: "depth", Default: "1"}, {Name: "fast", Default: "false"}},
			New: func(opts pass.Options) (pass.Pass, error) {
				depth, err := opts.Int("depth", 1)
				if err != nil {
					return nil, err
				}
				fast, err := opts.Bool("fast", false)
				if err != nil {
					return nil, err
				}
				return &optPass{name: name, depth: depth, fast: fast}, nil
			},
		}
	}
	return pass.NewRegistry(newOpt("tune"), pass.Registration{
		Name: "plain",
		New: func(pass.Options) (pass.Pass, error) {
			return &pass.Func{PassName: "plain", Fn: func(*ir.Operation, *pass.State) error { return nil }}, nil
		},
	})
}

func TestParsePipeline_RoundTrip(t *testing.T) {
	ctx, _, _ := setup(t, twoModules)
	reg := testRegistry()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare list", "plain, tune", "builtin.module(plain, tune{depth=1 fast=false})"},
		{"anchored", "builtin.module(tune{depth=3}, firrtl.circuit(firrtl.module(plain)))",
			"builtin.module(tune{depth=3 fast=false}, firrtl.circuit(firrtl.module(plain)))"},
		{"commas in options", "tune{fast=true, depth=2}", "builtin.module(tune{depth=2 fast=true})"},
		{"empty nested", "firrtl.circuit()", "builtin.module(firrtl.circuit())"},
		{"empty", "  ", "builtin.module()"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm := pass.NewManager(ctx)
			require.NoError(t, pass.ParsePipeline(pm, tt.in, reg))
			assert.Equal(t, tt.want, pm.String())

			again := pass.NewManager(ctx)
			require.NoError(t, pass.ParsePipeline(again, pm.String(), reg))
			assert.Equal(t, pm.String(), again.String())
		})
	}
}

func TestParsePipeline_Errors(t *testing.T) {
	ctx, _, _ := setup(t, twoModules)
	reg := testRegistry()

	tests := []struct {
		name    string
		in      string
		wantErr string
	}{
		{"unknown pass", "plain, nope", `unknown pass "nope"`},
		{"unknown option", "tune{speed=1}", `has no option "speed"`},
		{"bad option value", "tune{depth=deep}", "not an integer"},
		{"unterminated options", "tune{depth=1", "unterminated option list"},
		{"missing paren", "firrtl.circuit(plain", "expected ')'"},
		{"trailing comma", "plain,", "expected a pass name"},
		{"trailing text", "builtin.module(plain) plain", "unexpected trailing text"},
		{"unknown nest kind", "bogus.op(plain)", "unregistered dialect"},
		{"duplicate option", "tune{depth=1 depth=2}", "given twice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pass.ParsePipeline(pass.NewManager(ctx), tt.in, reg)
			var pe *pass.PipelineError
			require.ErrorAs(t, err, &pe)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRegistry(t *testing.T) {
	reg := testRegistry()
	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, "plain", all[0].Name)

	_, ok := reg.Lookup("tune")
	assert.True(t, ok)

	err := reg.Register(pass.Registration{Name: "plain", New: all[0].New})
	assert.Error(t, err)

	_, err = reg.Create("missing", nil)
	var upe *pass.UnknownPassError
	assert.ErrorAs(t, err, &upe)
}
