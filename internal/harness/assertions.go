package harness

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
)

// AssertionError is returned when an assertion expression cannot be
// compiled or evaluated.
type AssertionError struct {
	Expr string
	Err  error
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion %q: %v", e.Expr, e.Err)
}

func (e *AssertionError) Unwrap() error { return e.Err }

// check applies the scenario's expectations and assertions to r.
func check(s *Scenario, r *Result) {
	e := s.Expect
	switch {
	case e.ParseError != nil:
		checkParseError(e.ParseError, r)
	case e.FailingPass != "":
		if r.FailedPass != e.FailingPass {
			r.AddError("expected pass %q to fail, got %s", e.FailingPass, outcome(r))
		}
	default:
		if !r.Succeeded {
			r.AddError("expected compilation to succeed, got %s", outcome(r))
		}
	}

	for _, want := range e.OutputContains {
		if !strings.Contains(r.Verilog, want) {
			r.AddError("output does not contain %q", want)
		}
	}
	for _, unwanted := range e.OutputExcludes {
		if strings.Contains(r.Verilog, unwanted) {
			r.AddError("output contains %q", unwanted)
		}
	}
	checkDiagnostics(e.Diagnostics, r)

	env := r.Env()
	for _, src := range s.Assertions {
		ok, err := Evaluate(src, env)
		if err != nil {
			r.AddError("%v", err)
			continue
		}
		if !ok {
			r.AddError("assertion failed: %s", src)
		}
	}
}

func checkParseError(want *PositionExpect, r *Result) {
	got := r.ParseError
	if got == nil {
		r.AddError("expected a parse error at line %d, got %s", want.Line, outcome(r))
		return
	}
	if got.Line != want.Line || (want.Column != 0 && got.Column != want.Column) {
		r.AddError("expected parse error at %d:%d, got %d:%d", want.Line, want.Column, got.Line, got.Column)
	}
	if !strings.Contains(got.Message, want.Message) {
		r.AddError("expected parse error containing %q, got %q", want.Message, got.Message)
	}
}

// checkDiagnostics requires each expectation to match a distinct reported
// diagnostic. Unexpected diagnostics are not an error here; assertions can
// count them.
func checkDiagnostics(expected []DiagnosticExpect, r *Result) {
	used := make([]bool, len(r.Diagnostics))
	for _, want := range expected {
		found := false
		for i, d := range r.Diagnostics {
			if used[i] || d.Severity != want.Severity {
				continue
			}
			if want.Line != 0 && d.Line != want.Line {
				continue
			}
			if strings.Contains(d.Message, want.Message) {
				used[i], found = true, true
				break
			}
		}
		if !found {
			if want.Line != 0 {
				r.AddError("expected %s on line %d containing %q", want.Severity, want.Line, want.Message)
			} else {
				r.AddError("expected %s containing %q", want.Severity, want.Message)
			}
		}
	}
}

func outcome(r *Result) string {
	switch {
	case r.Succeeded:
		return "success"
	case r.FailedPass != "":
		return fmt.Sprintf("failure of pass %q", r.FailedPass)
	default:
		return fmt.Sprintf("error %q", r.Error)
	}
}

// Evaluate compiles src as a boolean expression against env and runs it.
func Evaluate(src string, env map[string]any) (bool, error) {
	prg, err := expr.Compile(src, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, &AssertionError{Expr: src, Err: err}
	}
	out, err := expr.Run(prg, env)
	if err != nil {
		return false, &AssertionError{Expr: src, Err: err}
	}
	ok, _ := out.(bool)
	return ok, nil
}
