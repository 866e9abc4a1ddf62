package diag_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hwpipe/internal/diag"
	"github.com/roach88/hwpipe/internal/dialects"
	"github.com/roach88/hwpipe/internal/ir"
	"github.com/roach88/hwpipe/internal/parser"
)

func TestVerifier_MatchesParseError(t *testing.T) {
	src := `firrtl.circuit @Top {
  firrtl.module @Top {portDirections = ""} {
    // expected-error@+1 {{use of undefined value %ghost}}
    %n = firrtl.node(%ghost) : !firrtl.uint<1>
  }
}
`
	v, err := diag.NewVerifier("bad.fir", src)
	require.NoError(t, err)
	require.Len(t, v.Expectations(), 1)
	assert.Equal(t, 4, v.Expectations()[0].Line)

	ctx, err := dialects.NewContext(ir.WithDiagnosticHandler(v))
	require.NoError(t, err)
	defer ctx.Close()

	_, err = parser.Parse(ctx, "bad.fir", src, parser.Options{})
	require.Error(t, err)
	assert.NoError(t, v.Verify())
}

func TestVerifier_WrongLineIsReported(t *testing.T) {
	src := "// expected-error {{undefined value}}\n\n%x = comb.and(%y) : i1\n"
	v, err := diag.NewVerifier("f.ir", src)
	require.NoError(t, err)

	ctx, err := dialects.NewContext(ir.WithDiagnosticHandler(v))
	require.NoError(t, err)
	defer ctx.Close()
	_, _ = parser.Parse(ctx, "f.ir", src, parser.Options{})

	err = v.Verify()
	var mm *diag.MismatchError
	require.ErrorAs(t, err, &mm)
	require.Len(t, mm.Missing, 1)
	assert.Equal(t, 1, mm.Missing[0].Line)
	require.Len(t, mm.Unexpected, 1)
	assert.Equal(t, 3, mm.Unexpected[0].Loc.Line)
	assert.Contains(t, err.Error(), "1 missing, 1 unexpected")
}

func TestVerifier_Offsets(t *testing.T) {
	src := "a\n// expected-warning@-1 {{first}} expected-note {{here}}\nc\n"
	v, err := diag.NewVerifier("f", src)
	require.NoError(t, err)
	exps := v.Expectations()
	require.Len(t, exps, 2)
	assert.Equal(t, ir.SeverityWarning, exps[0].Severity)
	assert.Equal(t, 1, exps[0].Line)
	assert.Equal(t, ir.SeverityNote, exps[1].Severity)
	assert.Equal(t, 2, exps[1].Line)

	v.Handle(ir.Diagnostic{Severity: ir.SeverityWarning, Loc: ir.FileLineCol("f", 1, 1), Message: "the first one"})
	v.Handle(ir.Diagnostic{Severity: ir.SeverityNote, Loc: ir.FileLineCol("f", 2, 1), Message: "declared here"})
	assert.NoError(t, v.Verify())
}

func TestVerifier_SeverityMustMatch(t *testing.T) {
	v, err := diag.NewVerifier("f", "x // expected-error {{boom}}\n")
	require.NoError(t, err)
	v.Handle(ir.Diagnostic{Severity: ir.SeverityWarning, Loc: ir.FileLineCol("f", 1, 1), Message: "boom"})
	assert.Error(t, v.Verify())
}

func TestVerifier_OffsetBeforeFirstLine(t *testing.T) {
	_, err := diag.NewVerifier("f", "// expected-error@-3 {{x}}\n")
	assert.Error(t, err)
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := diag.NewPrinter(&buf)
	p.AddSource("a.fir", "line one\n  bad thing\n")
	p.Handle(ir.Diagnostic{
		Severity: ir.SeverityError,
		Loc:      ir.FileLineCol("a.fir", 2, 3),
		Message:  "it broke",
		Notes:    []ir.Diagnostic{{Severity: ir.SeverityNote, Message: "see here"}},
	})
	assert.Equal(t, "a.fir:2:3: error: it broke\n  bad thing\n  ^\nnote: see here\n", buf.String())
}

func TestPrinter_ForcedColors(t *testing.T) {
	var buf bytes.Buffer
	p := diag.NewPrinter(&buf, diag.WithColors(true))
	p.Handle(ir.Diagnostic{Severity: ir.SeverityWarning, Message: "careful"})
	assert.Contains(t, buf.String(), "\x1b[")
	assert.Contains(t, buf.String(), "careful")
}
