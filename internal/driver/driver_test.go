package driver_test

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hwpipe/internal/dialects"
	"github.com/roach88/hwpipe/internal/driver"
	"github.com/roach88/hwpipe/internal/ir"
	"github.com/roach88/hwpipe/internal/parser"
	"github.com/roach88/hwpipe/internal/pass"
	"github.com/roach88/hwpipe/internal/testutil"
	"github.com/roach88/hwpipe/internal/timing"
)

const counter = `firrtl.circuit @Top {
  firrtl.module @Top {portDirections = "iio"} {
  ^(%a: !firrtl.uint<2>, %b: !firrtl.uint<2>, %y: !firrtl.uint<2>):
    %zero = firrtl.constant {value = 0} : !firrtl.uint<2>
    %t = firrtl.or(%a, %zero) : !firrtl.uint<2>
    %u = firrtl.xor(%t, %b) : !firrtl.uint<2>
    %v = firrtl.xor(%t, %b) : !firrtl.uint<2>
    %w = firrtl.and(%u, %v) : !firrtl.uint<2>
    firrtl.connect(%y, %w)
  }
}
`

func compile(t *testing.T, opts driver.Options) (*driver.Result, error) {
	t.Helper()
	res, err := driver.Compile(opts)
	t.Cleanup(func() { _ = res.Close() })
	return res, err
}

func TestCompile_DefaultPipeline(t *testing.T) {
	var out bytes.Buffer
	res, err := compile(t, driver.Options{Source: counter, InputName: "counter.fir", Output: &out})
	require.NoError(t, err)

	assert.Equal(t,
		"builtin.module(lower-firrtl-to-hw{warn-on-unprocessed-annotations=false}, canonicalize{max-iterations=10 region-simplify=true top-down=true}, cse)",
		res.Pipeline)
	assert.Equal(t, `module Top(
  input  [1:0] a,
  input  [1:0] b,
  output [1:0] y
);
  wire [1:0] u = a ^ b;
  wire [1:0] w = u & u;
  assign y = w;
endmodule
`, out.String())
	assert.Len(t, res.Fingerprint, 64)
	assert.Empty(t, res.Diagnostics)
	assert.True(t, res.Timing.IsEmpty(), "timing is off by default")
}

func TestCompile_FingerprintIsStable(t *testing.T) {
	var out bytes.Buffer
	a, err := compile(t, driver.Options{Source: counter, Output: &out})
	require.NoError(t, err)
	b, err := compile(t, driver.Options{Source: counter, Output: &out})
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)
}

func TestCompile_Timing(t *testing.T) {
	var out bytes.Buffer
	res, err := compile(t, driver.Options{
		Source: counter,
		Output: &out,
		Timing: true,
		Clock:  testutil.NewFakeClock(time.Millisecond),
	})
	require.NoError(t, err)

	var names []string
	res.Timing.Walk(func(n timing.Node) {
		names = append(names, fmt.Sprintf("%d:%s", n.Depth, n.Name))
	})
	assert.Equal(t, []string{
		"0:Total", "1:Parse", "1:Pipeline", "2:lower-firrtl-to-hw", "2:canonicalize", "2:cse", "1:Output",
	}, names)
	assert.Greater(t, res.Timing.Total(), time.Duration(0))
}

func TestCompile_FilesAndSnapshot(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "counter.fir")
	require.NoError(t, os.WriteFile(in, []byte(counter), 0o644))
	outPath := filepath.Join(dir, "counter.v")
	irPath := filepath.Join(dir, "counter.ir")

	res, err := compile(t, driver.Options{InputPath: in, OutputPath: outPath, IRPath: irPath})
	require.NoError(t, err)
	assert.True(t, res.IRWritten)

	v, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(v), "module Top(")

	snapshot, err := parser.ParseFile(res.Context, irPath, parser.Options{})
	require.NoError(t, err)
	assert.True(t, ir.Equal(res.Module.Operation(), snapshot.Operation(), ir.EqualOptions{}))
}

func TestCompile_ParseError(t *testing.T) {
	res, err := compile(t, driver.Options{Source: "firrtl.circuit @Top {\n  %x = firrtl.nope\n}\n", InputName: "bad.fir"})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Nil(t, res.Module)
	require.NotEmpty(t, res.Diagnostics)
	assert.Equal(t, ir.SeverityError, res.Diagnostics[0].Severity)
	assert.Equal(t, "bad.fir", res.Diagnostics[0].Loc.File)
}

func TestCompile_MissingInputFile(t *testing.T) {
	_, err := compile(t, driver.Options{InputPath: filepath.Join(t.TempDir(), "nope.fir")})
	var ioe *parser.IOError
	assert.ErrorAs(t, err, &ioe)
}

func TestCompile_PassFailureKeepsResult(t *testing.T) {
	src := "firrtl.circuit @Top {\n  firrtl.module @Top {portDirections = \"o\"} {\n  ^(%o: !firrtl.uint<1>):\n  }\n}\n"
	var out bytes.Buffer
	res, err := compile(t, driver.Options{Source: src, Output: &out})
	require.True(t, pass.IsPassFailure(err))
	require.NotNil(t, res.Module)
	assert.Empty(t, out.String())
	assert.Empty(t, res.Fingerprint)
	require.Len(t, res.Diagnostics, 1)
	assert.Contains(t, res.Diagnostics[0].Message, "not driven")
}

func TestCompile_CustomPipeline(t *testing.T) {
	res, err := compile(t, driver.Options{
		Source:      counter,
		Pipeline:    "firrtl.circuit(firrtl.module(canonicalize{region-simplify=false}))",
		SkipVerilog: true,
		VerifyEach:  true,
	})
	require.NoError(t, err)
	assert.Equal(t,
		"builtin.module(firrtl.circuit(firrtl.module(canonicalize{max-iterations=10 region-simplify=false top-down=true})))",
		res.Pipeline)
	assert.NotNil(t, ir.LookupSymbol(res.Module.Operation(), "Top"))
}

func TestCompile_BadPipeline(t *testing.T) {
	_, err := compile(t, driver.Options{Source: counter, Pipeline: "frobnicate", SkipVerilog: true})
	var pe *pass.PipelineError
	assert.ErrorAs(t, err, &pe)
}

func TestCompile_DialectVersions(t *testing.T) {
	_, err := compile(t, driver.Options{
		Source:          counter,
		SkipVerilog:     true,
		DialectVersions: map[string]string{dialects.FIRRTL: ">= 1.0, < 2.0", dialects.HW: "^1"},
	})
	require.NoError(t, err)

	_, err = compile(t, driver.Options{
		Source:          counter,
		SkipVerilog:     true,
		DialectVersions: map[string]string{dialects.FIRRTL: ">= 2.0"},
	})
	var dve *ir.DialectVersionError
	assert.ErrorAs(t, err, &dve)
}

func TestPassRegistry(t *testing.T) {
	var names []string
	for _, r := range driver.PassRegistry().All() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{
		"canonicalize", "cse", "export-verilog", "lower-firrtl-to-hw",
		"simple-canonicalize", "strip-debuginfo", "verify",
	}, names)
}
