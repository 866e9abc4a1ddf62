package harness

import "fmt"

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Errors lists the failed checks. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Parsed reports whether the input parsed.
	Parsed bool `json:"parsed"`

	// Succeeded reports whether the whole compilation succeeded.
	Succeeded bool `json:"succeeded"`

	// Error is the compilation error, if any.
	Error string `json:"error,omitempty"`

	// ParseError is set when parsing failed with a located error.
	ParseError *ErrorPosition `json:"parse_error,omitempty"`

	// FailedPass names the pass that signalled failure.
	FailedPass string `json:"failed_pass,omitempty"`

	Pipeline    string             `json:"pipeline,omitempty"`
	Fingerprint string             `json:"fingerprint,omitempty"`
	Verilog     string             `json:"verilog,omitempty"`
	IR          string             `json:"ir,omitempty"`
	Modules     []string           `json:"modules,omitempty"`
	Passes      []string           `json:"passes,omitempty"`
	Diagnostics []DiagnosticRecord `json:"diagnostics,omitempty"`
}

// ErrorPosition locates a parse error.
type ErrorPosition struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
}

// DiagnosticRecord is a reported diagnostic.
type DiagnosticRecord struct {
	Severity string `json:"severity"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	Message  string `json:"message"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true, Errors: []string{}}
}

// AddError adds a failed check and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Count returns how many diagnostics of the given severity were reported.
func (r *Result) Count(severity string) int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Severity == severity {
			n++
		}
	}
	return n
}

// Env returns the variables available to assertion expressions:
//
//	parsed, succeeded     bool
//	error, failed_pass    string
//	pipeline, fingerprint string
//	verilog, ir           string
//	modules, passes       []string
//	errors, warnings      int
//	diagnostics           list of {severity, line, column, message}
func (r *Result) Env() map[string]any {
	diags := make([]map[string]any, len(r.Diagnostics))
	for i, d := range r.Diagnostics {
		diags[i] = map[string]any{
			"severity": d.Severity,
			"line":     d.Line,
			"column":   d.Column,
			"message":  d.Message,
		}
	}
	modules := r.Modules
	if modules == nil {
		modules = []string{}
	}
	passes := r.Passes
	if passes == nil {
		passes = []string{}
	}
	return map[string]any{
		"parsed":      r.Parsed,
		"succeeded":   r.Succeeded,
		"error":       r.Error,
		"failed_pass": r.FailedPass,
		"pipeline":    r.Pipeline,
		"fingerprint": r.Fingerprint,
		"verilog":     r.Verilog,
		"ir":          r.IR,
		"modules":     modules,
		"passes":      passes,
		"errors":      r.Count("error"),
		"warnings":    r.Count("warning"),
		"diagnostics": diags,
	}
}
