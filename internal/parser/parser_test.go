package parser_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hwpipe/internal/dialects"
	"github.com/roach88/hwpipe/internal/ir"
	"github.com/roach88/hwpipe/internal/parser"
)

const passthrough = `// one input wired straight to one output
firrtl.circuit @Top {
  firrtl.module @Top {portDirections = "io"} {
  ^(%in: !firrtl.uint<1>, %out: !firrtl.uint<1>):
    firrtl.connect(%out, %in)
  }
}
`

func newContext(t *testing.T) (*ir.Context, *ir.CollectHandler) {
	t.Helper()
	h := &ir.CollectHandler{}
	ctx, err := dialects.NewContext(ir.WithDiagnosticHandler(h))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctx.Close() })
	return ctx, h
}

func TestParse_Passthrough(t *testing.T) {
	ctx, _ := newContext(t)
	m, err := parser.Parse(ctx, "top.fir", passthrough, parser.Options{})
	require.NoError(t, err)
	require.NoError(t, m.Verify())

	circuit := m.Body().Operations()[0]
	assert.Equal(t, dialects.FIRRTLCircuit, circuit.Name())
	assert.Equal(t, "Top", circuit.Symbol())
	assert.Equal(t, ir.FileLineCol("top.fir", 2, 1), circuit.Loc())

	mod := circuit.Body().Operations()[0]
	require.Equal(t, 2, mod.Body().NumArguments())
	assert.Equal(t, "in", mod.Body().Argument(0).Name())
	assert.Equal(t, dialects.UIntType(1), mod.Body().Argument(1).Type())

	connect := mod.Body().Operations()[0]
	assert.Same(t, mod.Body().Argument(1), connect.Operand(0))
	assert.Same(t, mod.Body().Argument(0), connect.Operand(1))
	assert.Equal(t, ir.FileLineCol("top.fir", 5, 5), connect.Loc())
}

func TestParse_ExplicitModuleRoot(t *testing.T) {
	ctx, _ := newContext(t)
	m, err := parser.Parse(ctx, "m.ir", "builtin.module {\n  %c = hw.constant {value = 3} : i4\n}\n", parser.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, m.Body().NumOperations())
	assert.Equal(t, ir.FileLineCol("m.ir", 1, 1), m.Operation().Loc())
}

func TestParse_RoundTrip(t *testing.T) {
	ctx, _ := newContext(t)
	src := `firrtl.circuit @Top {
  firrtl.module @Top {portDirections = "iio"} {
  ^(%a: !firrtl.uint<4>, %b: !firrtl.uint<4>, %y: !firrtl.uint<4>):
    %w = firrtl.wire : !firrtl.uint<4>
    %x = firrtl.and(%a, %b) : !firrtl.uint<4>
    %k = firrtl.constant {value = -1, note = "a \"quoted\" value", tags = [1, true, @Top, i8]} : !firrtl.uint<4>
    firrtl.connect(%w, %x) loc("orig.fir":10:2)
    firrtl.connect(%y, %w)
  }
}
`
	first, err := parser.Parse(ctx, "rt.fir", src, parser.Options{})
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, first.Print(&sb))
	second, err := parser.Parse(ctx, "snapshot.ir", sb.String(), parser.Options{})
	require.NoError(t, err, sb.String())

	assert.True(t, ir.Equal(first.Operation(), second.Operation(), ir.EqualOptions{}), sb.String())
	assert.Equal(t, ir.MustFingerprint(first.Operation()), ir.MustFingerprint(second.Operation()))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		line    int
		col     int
		message string
	}{
		{
			name:    "undefined value",
			src:     "firrtl.circuit @Top {\n  firrtl.module @Top {portDirections = \"\"} {\n    %n = firrtl.node(%missing) : !firrtl.uint<1>\n  }\n}\n",
			line:    3,
			col:     22,
			message: "use of undefined value %missing",
		},
		{
			name:    "undefined symbol",
			src:     "%i = hw.constant {value = 1, ref = @Nowhere} : i1\n",
			line:    1,
			col:     36,
			message: "undefined symbol @Nowhere",
		},
		{
			name:    "redefinition",
			src:     "%a = hw.constant {value = 1} : i1\n%a = hw.constant {value = 0} : i1\n",
			line:    2,
			col:     1,
			message: "redefinition of value %a",
		},
		{
			name:    "missing result types",
			src:     "%a = hw.constant {value = 1}\n",
			line:    1,
			col:     6,
			message: "declares 1 results but 0 result types",
		},
		{
			name:    "unterminated string",
			src:     "%a = hw.constant {value = \"oops} : i1\n",
			line:    1,
			col:     27,
			message: "unterminated string literal",
		},
		{
			name:    "unexpected token",
			src:     "hw.constant : ,\n",
			line:    1,
			col:     15,
			message: "expected type, found ','",
		},
		{
			name:    "unclosed region",
			src:     "firrtl.circuit @Top {\n",
			line:    2,
			col:     1,
			message: "expected '}', found end of input",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, h := newContext(t)
			m, err := parser.Parse(ctx, "bad.fir", tt.src, parser.Options{})
			assert.Nil(t, m)
			var pe *parser.ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, "bad.fir", pe.Loc.File)
			assert.Equal(t, tt.line, pe.Loc.Line, pe.Error())
			assert.Equal(t, tt.col, pe.Loc.Column, pe.Error())
			assert.Contains(t, pe.Message, tt.message)

			require.Len(t, h.Diagnostics, 1)
			assert.Equal(t, ir.SeverityError, h.Diagnostics[0].Severity)
			assert.Equal(t, pe.Loc, h.Diagnostics[0].Loc)
		})
	}
}

func TestParse_UnregisteredDialect(t *testing.T) {
	ctx, _ := newContext(t)
	_, err := parser.Parse(ctx, "x.ir", "\n  seq.firreg\n", parser.Options{})
	require.Error(t, err)
	assert.True(t, ir.IsUnregisteredDialect(err))
	var pe *parser.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Loc.Line)
	assert.Equal(t, 3, pe.Loc.Column)
}

func TestParse_IgnoreLocationInfo(t *testing.T) {
	ctx, _ := newContext(t)
	src := passthrough + "hw.constant {value = 0} : i1 loc(\"x.fir\":4:4)\n"
	src = strings.Replace(src, "hw.constant", "%z = hw.constant", 1)
	m, err := parser.Parse(ctx, "top.fir", src, parser.Options{IgnoreLocationInfo: true})
	require.NoError(t, err)

	m.Operation().Walk(func(op *ir.Operation) ir.WalkResult {
		assert.False(t, op.Loc().IsKnown(), op.Name())
		return ir.WalkAdvance
	})
}

func TestParse_IgnoreLocationInfoStillReportsErrorPositions(t *testing.T) {
	ctx, _ := newContext(t)
	_, err := parser.Parse(ctx, "e.fir", "\n\n   %x = comb.and(%y) : i1\n", parser.Options{IgnoreLocationInfo: true})
	var pe *parser.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ir.FileLineCol("e.fir", 3, 18), pe.Loc)
}

func TestParseFile_MissingInput(t *testing.T) {
	ctx, h := newContext(t)
	_, err := parser.ParseFile(ctx, filepath.Join(t.TempDir(), "nope.fir"), parser.Options{})
	var ioErr *parser.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.True(t, h.HasErrors())
}

func TestParseFile_WithAnnotationFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "top.fir")
	annos := filepath.Join(dir, "annos.json")
	require.NoError(t, os.WriteFile(input, []byte(passthrough), 0o644))
	require.NoError(t, os.WriteFile(annos, []byte(`[{"class": "test.B", "target": "~Top|Top"}]`), 0o644))

	ctx, _ := newContext(t)
	m, err := parser.ParseFile(ctx, input, parser.Options{
		AnnotationSources: []parser.AnnotationSource{{Name: "inline", Text: `[{"class": "test.A", "target": "~Top"}]`}},
		AnnotationFiles:   []string{annos},
	})
	require.NoError(t, err)

	attr, ok := m.Operation().Attr(parser.AnnotationsAttr)
	require.True(t, ok)
	arr := attr.(ir.ArrayAttr)
	require.Len(t, arr, 2)
	assert.Equal(t, "test.A", arr[0].(ir.DictAttr).GetString("class"))
	assert.Equal(t, "test.B", arr[1].(ir.DictAttr).GetString("class"))
}

func TestParse_Annotations(t *testing.T) {
	tests := []struct {
		name    string
		raw     bool
		json    string
		wantErr string
		line    int
		col     int
	}{
		{name: "legacy ok", json: `[{"class": "c", "target": "~Top|Top", "n": 3}]`},
		{name: "legacy missing target", json: "[\n  {\"class\": \"c\"}\n]", wantErr: "missing a string \"target\"", line: 2, col: 3},
		{name: "legacy unknown module", json: `[{"class": "c", "target": "~Top|Gone"}]`, wantErr: "unknown module @Gone", line: 1, col: 2},
		{name: "legacy bad target syntax", json: `[{"class": "c", "target": "Top"}]`, wantErr: "must start with '~'"},
		{name: "raw accepts missing target", raw: true, json: `[{"class": "c"}]`},
		{name: "raw skips resolution", raw: true, json: `[{"class": "c", "target": "~Gone"}]`},
		{name: "missing class", raw: true, json: `[{"target": "~Top"}]`, wantErr: "missing a string \"class\""},
		{name: "not an array", json: `{"class": "c"}`, wantErr: "must be a JSON array"},
		{name: "syntax error", json: "[\n{\"class\": }]", wantErr: "invalid annotation JSON"},
		{name: "truncated", json: `[{"class": "c", "target": "~Top"}`, wantErr: "invalid annotation JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, _ := newContext(t)
			m, err := parser.Parse(ctx, "top.fir", passthrough, parser.Options{
				RawAnnotationMode: tt.raw,
				AnnotationSources: []parser.AnnotationSource{{Name: "annos.json", Text: tt.json}},
			})
			if tt.wantErr == "" {
				require.NoError(t, err)
				_, ok := m.Operation().Attr(parser.AnnotationsAttr)
				assert.True(t, ok)
				return
			}
			var pe *parser.ParseError
			require.ErrorAs(t, err, &pe)
			assert.Contains(t, pe.Message, tt.wantErr)
			assert.Equal(t, "annos.json", pe.Loc.File)
			if tt.line > 0 {
				assert.Equal(t, tt.line, pe.Loc.Line)
				assert.Equal(t, tt.col, pe.Loc.Column)
			}
		})
	}
}

func TestParse_AnnotationValuesConverted(t *testing.T) {
	ctx, _ := newContext(t)
	m, err := parser.Parse(ctx, "top.fir", passthrough, parser.Options{
		RawAnnotationMode: true,
		AnnotationSources: []parser.AnnotationSource{{
			Name: "a.json",
			Text: `[{"class": "c", "z": 1.5, "b": [true, null, 7], "a": {"k": "v"}, "gone": null}]`,
		}},
	})
	require.NoError(t, err)
	attr, _ := m.Operation().Attr(parser.AnnotationsAttr)
	assert.Equal(t, `[{a = {k = "v"}, b = [true, 7], class = "c", z = "1.5"}]`, attr.String())
}

func TestParse_ClosedContext(t *testing.T) {
	ctx, _ := newContext(t)
	require.NoError(t, ctx.Close())
	_, err := parser.Parse(ctx, "x", passthrough, parser.Options{})
	assert.ErrorIs(t, err, ir.ErrContextClosed)
}
