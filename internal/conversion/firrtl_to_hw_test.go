package conversion_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hwpipe/internal/conversion"
	"github.com/roach88/hwpipe/internal/dialects"
	"github.com/roach88/hwpipe/internal/ir"
	"github.com/roach88/hwpipe/internal/parser"
	"github.com/roach88/hwpipe/internal/pass"
)

const design = `firrtl.circuit @Top {
  firrtl.module @Top {portDirections = "iio"} {
  ^(%a: !firrtl.uint<4>, %b: !firrtl.uint<4>, %y: !firrtl.uint<4>):
    %w = firrtl.wire : !firrtl.uint<4>
    %s_in, %s_out = firrtl.instance {moduleName = @Inv} : !firrtl.uint<4>, !firrtl.uint<4>
    firrtl.connect(%y, %s_out)
    %x = firrtl.and(%a, %w) : !firrtl.uint<4>
    firrtl.connect(%s_in, %x)
    firrtl.connect(%w, %a)
    firrtl.connect(%w, %b)
  }
  firrtl.module @Inv {portDirections = "io"} {
  ^(%i: !firrtl.uint<4>, %o: !firrtl.uint<4>):
    %n = firrtl.not(%i) : !firrtl.uint<4>
    firrtl.connect(%o, %n)
  }
}
`

func setup(t *testing.T, src string, opts parser.Options) (*ir.Module, *ir.CollectHandler) {
	t.Helper()
	h := &ir.CollectHandler{}
	ctx, err := dialects.NewContext(ir.WithDiagnosticHandler(h))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctx.Close() })
	m, err := parser.Parse(ctx, "d.fir", src, opts)
	require.NoError(t, err)
	return m, h
}

func lower(t *testing.T, m *ir.Module, cfg conversion.LowerFIRRTLToHWConfig) error {
	t.Helper()
	pm := pass.NewManager(m.Context())
	pm.EnableVerifier(true)
	require.NoError(t, pm.Add(conversion.NewLowerFIRRTLToHW(cfg)))
	return pm.Run(m)
}

func render(t *testing.T, m *ir.Module) string {
	t.Helper()
	var sb strings.Builder
	require.NoError(t, ir.PrintOperation(&sb, m.Operation(), ir.PrintOptions{SkipLocations: true, Indent: "  "}))
	return sb.String()
}

func TestLower_LastConnectAndInstances(t *testing.T) {
	m, _ := setup(t, design, parser.Options{})
	require.NoError(t, lower(t, m, conversion.DefaultLowerFIRRTLToHWConfig()))

	want := `builtin.module {
  hw.module @Top {inputNames = ["a", "b"], outputNames = ["y"]} {
  ^(%a: i4, %b: i4):
    %x = comb.and(%a, %b) : i4
    %s_out = hw.instance(%x) {moduleName = @Inv} : i4
    hw.output(%s_out)
  }
  hw.module @Inv {inputNames = ["i"], outputNames = ["o"]} {
  ^(%i: i4):
    %0 = hw.constant {value = 15} : i4
    %n = comb.xor(%i, %0) : i4
    hw.output(%n)
  }
}
`
	assert.Equal(t, want, render(t, m))
}

func TestLower_KeepsLocations(t *testing.T) {
	m, _ := setup(t, design, parser.Options{})
	require.NoError(t, lower(t, m, conversion.DefaultLowerFIRRTLToHWConfig()))
	top := ir.LookupSymbol(m.Operation(), "Top")
	require.NotNil(t, top)
	assert.Equal(t, dialects.HWModule, top.Name())
	assert.Equal(t, 2, top.Loc().Line)
}

func TestLower_Failures(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		dirs     string
		wantOp   string
		wantLine int
		wantErr  string
	}{
		{
			name:     "undriven output",
			dirs:     "io",
			body:     "",
			wantOp:   dialects.FIRRTLModule,
			wantLine: 2,
			wantErr:  "output port %o is not driven",
		},
		{
			name:     "undriven wire",
			dirs:     "io",
			body:     "    %w = firrtl.wire : !firrtl.uint<1>\n    firrtl.connect(%o, %w)\n",
			wantOp:   dialects.FIRRTLWire,
			wantLine: 4,
			wantErr:  "wire %w is not driven",
		},
		{
			name:     "cycle through wires",
			dirs:     "io",
			body:     "    %w = firrtl.wire : !firrtl.uint<1>\n    %v = firrtl.wire : !firrtl.uint<1>\n    firrtl.connect(%w, %v)\n    firrtl.connect(%v, %w)\n    firrtl.connect(%o, %w)\n",
			wantOp:   dialects.FIRRTLWire,
			wantLine: 4,
			wantErr:  "combinational cycle",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "firrtl.circuit @Top {\n  firrtl.module @Top {portDirections = \"" + tt.dirs + "\"} {\n" +
				"  ^(%i: !firrtl.uint<1>, %o: !firrtl.uint<1>):\n" + tt.body + "  }\n}\n"
			m, h := setup(t, src, parser.Options{})
			err := lower(t, m, conversion.DefaultLowerFIRRTLToHWConfig())
			var pf *pass.PassFailure
			require.ErrorAs(t, err, &pf)
			assert.Equal(t, "lower-firrtl-to-hw", pf.Pass)
			assert.Equal(t, tt.wantOp, pf.OpName)
			assert.Equal(t, tt.wantLine, pf.Loc.Line)
			assert.Contains(t, pf.Err.Error(), tt.wantErr)
			assert.True(t, h.HasErrors())
		})
	}
}

func TestLower_NodesAndConstants(t *testing.T) {
	m, _ := setup(t, `firrtl.circuit @C {
  firrtl.module @C {portDirections = "o"} {
  ^(%out: !firrtl.sint<8>):
    %k = firrtl.constant {value = 5} : !firrtl.sint<8>
    %n = firrtl.node(%k) : !firrtl.sint<8>
    firrtl.connect(%out, %n)
  }
}
`, parser.Options{})
	require.NoError(t, lower(t, m, conversion.DefaultLowerFIRRTLToHWConfig()))
	assert.Contains(t, render(t, m), `%k = hw.constant {value = 5} : i8
    hw.output(%k)`)
}

func TestLower_WarnsOnUnprocessedAnnotations(t *testing.T) {
	opts := parser.Options{AnnotationSources: []parser.AnnotationSource{{
		Name: "annos.json",
		Text: `[{"class": "sifive.enterprise.firrtl.MarkDUTAnnotation", "target": "~Top|Top"}]`,
	}}}

	m, h := setup(t, design, opts)
	require.NoError(t, lower(t, m, conversion.LowerFIRRTLToHWConfig{WarnOnUnprocessedAnnotations: true}))
	require.Equal(t, 1, h.Count(ir.SeverityWarning))
	assert.Contains(t, h.Diagnostics[0].Message, "sifive.enterprise.firrtl.MarkDUTAnnotation")

	quiet, qh := setup(t, design, opts)
	require.NoError(t, lower(t, quiet, conversion.DefaultLowerFIRRTLToHWConfig()))
	assert.Zero(t, qh.Count(ir.SeverityWarning))
}

func TestLowerType(t *testing.T) {
	tests := []struct {
		in      ir.Type
		want    ir.Type
		wantErr bool
	}{
		{dialects.UIntType(7), ir.IntegerType(7), false},
		{dialects.SIntType(3), ir.IntegerType(3), false},
		{dialects.ClockType, ir.IntegerType(1), false},
		{ir.IntegerType(2), ir.IntegerType(2), false},
		{ir.Type("!firrtl.uint"), ir.NoType, true},
		{ir.Type("!hw.array<4>"), ir.NoType, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			got, err := conversion.LowerType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistration(t *testing.T) {
	reg := pass.NewRegistry(conversion.Registrations()...)
	p, err := reg.Create("lower-firrtl-to-hw", pass.Options{"warn-on-unprocessed-annotations": "true"})
	require.NoError(t, err)
	assert.Equal(t, []pass.KV{{Key: "warn-on-unprocessed-annotations", Value: "true"}}, p.(pass.Configurable).Options())
}
