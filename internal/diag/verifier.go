package diag

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/hwpipe/internal/ir"
)

// Expectation is one "expected-<severity>" annotation found in a source
// comment.
type Expectation struct {
	Severity ir.Severity
	File     string
	Line     int // line the diagnostic must be reported on
	Text     string
	Decl     int // line holding the annotation
	matched  bool
}

func (e Expectation) String() string {
	return fmt.Sprintf("%s:%d: expected %s %q", e.File, e.Line, e.Severity, e.Text)
}

// expectationRE matches annotations such as
//
//	// expected-error {{use of undefined value}}
//	// expected-warning@+1 {{unused}}
var expectationRE = regexp.MustCompile(`expected-(error|warning|note|remark)(?:@([+-]\d+))?\s*\{\{(.*?)\}\}`)

var severities = map[string]ir.Severity{
	"error":   ir.SeverityError,
	"warning": ir.SeverityWarning,
	"note":    ir.SeverityNote,
	"remark":  ir.SeverityRemark,
}

// Verifier is a diagnostic handler that checks reported diagnostics
// against expectations embedded in the source. A diagnostic matches an
// expectation with the same severity, file and line whose text is a
// substring of the message. Every expectation must be matched exactly once
// and every diagnostic must match some expectation.
type Verifier struct {
	expected   []*Expectation
	unexpected []ir.Diagnostic
}

// NewVerifier creates a verifier with the expectations of one buffer.
func NewVerifier(file, source string) (*Verifier, error) {
	v := &Verifier{}
	if err := v.AddSource(file, source); err != nil {
		return nil, err
	}
	return v, nil
}

// AddSource collects the expectations of another buffer.
func (v *Verifier) AddSource(file, source string) error {
	for i, line := range strings.Split(source, "\n") {
		idx := strings.Index(line, "//")
		if idx < 0 {
			continue
		}
		comment := line[idx:]
		for _, m := range expectationRE.FindAllStringSubmatch(comment, -1) {
			target := i + 1
			if m[2] != "" {
				off, err := strconv.Atoi(m[2])
				if err != nil {
					return fmt.Errorf("%s:%d: invalid expectation offset %q", file, i+1, m[2])
				}
				target += off
			}
			if target < 1 {
				return fmt.Errorf("%s:%d: expectation refers to line %d", file, i+1, target)
			}
			v.expected = append(v.expected, &Expectation{
				Severity: severities[m[1]],
				File:     file,
				Line:     target,
				Text:     m[3],
				Decl:     i + 1,
			})
		}
	}
	return nil
}

// Expectations returns the collected expectations.
func (v *Verifier) Expectations() []Expectation {
	out := make([]Expectation, len(v.expected))
	for i, e := range v.expected {
		out[i] = *e
	}
	return out
}

// Handle implements ir.Handler.
func (v *Verifier) Handle(d ir.Diagnostic) {
	for _, e := range v.expected {
		if e.matched || e.Severity != d.Severity || e.Line != d.Loc.Line {
			continue
		}
		if d.Loc.File != "" && e.File != d.Loc.File {
			continue
		}
		if strings.Contains(d.Message, e.Text) {
			e.matched = true
			return
		}
	}
	v.unexpected = append(v.unexpected, d)
}

// Verify returns a *MismatchError when an expectation was not produced or
// an unexpected diagnostic was reported.
func (v *Verifier) Verify() error {
	var missing []Expectation
	for _, e := range v.expected {
		if !e.matched {
			missing = append(missing, *e)
		}
	}
	if len(missing) == 0 && len(v.unexpected) == 0 {
		return nil
	}
	return &MismatchError{Missing: missing, Unexpected: v.unexpected}
}

// MismatchError lists the differences found by a Verifier.
type MismatchError struct {
	Missing    []Expectation
	Unexpected []ir.Diagnostic
}

func (e *MismatchError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "diagnostic verification failed (%d missing, %d unexpected)", len(e.Missing), len(e.Unexpected))
	for _, m := range e.Missing {
		fmt.Fprintf(&sb, "\n  %s was not produced", m)
	}
	for _, d := range e.Unexpected {
		fmt.Fprintf(&sb, "\n  unexpected %s", d)
	}
	return sb.String()
}
