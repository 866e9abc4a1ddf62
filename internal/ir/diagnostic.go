package ir

import (
	"fmt"
	"strings"
)

// Severity classifies a diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityNote
	SeverityRemark
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityNote:
		return "note"
	case SeverityRemark:
		return "remark"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Diagnostic is a message about a source location, reported through the
// Context's Handler by the parser, verifier and passes.
type Diagnostic struct {
	Severity Severity
	Loc      Location
	Message  string
	Notes    []Diagnostic
}

// String formats the diagnostic as "loc: severity: message".
func (d Diagnostic) String() string {
	var sb strings.Builder
	if d.Loc.IsKnown() {
		sb.WriteString(d.Loc.String())
		sb.WriteString(": ")
	}
	sb.WriteString(d.Severity.String())
	sb.WriteString(": ")
	sb.WriteString(d.Message)
	for _, n := range d.Notes {
		sb.WriteString("\n")
		sb.WriteString(n.String())
	}
	return sb.String()
}

// Handler receives diagnostics.
// Implementations live in internal/diag (printing, expectation checking);
// CollectHandler below is the in-memory variant used by the driver and tests.
type Handler interface {
	Handle(d Diagnostic)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(Diagnostic)

// Handle calls f(d).
func (f HandlerFunc) Handle(d Diagnostic) { f(d) }

// CollectHandler records every diagnostic it receives.
type CollectHandler struct {
	Diagnostics []Diagnostic
}

// Handle appends d.
func (h *CollectHandler) Handle(d Diagnostic) {
	h.Diagnostics = append(h.Diagnostics, d)
}

// Count returns how many diagnostics of the given severity were recorded.
func (h *CollectHandler) Count(sev Severity) int {
	n := 0
	for _, d := range h.Diagnostics {
		if d.Severity == sev {
			n++
		}
	}
	return n
}

// HasErrors reports whether any error diagnostic was recorded.
func (h *CollectHandler) HasErrors() bool {
	return h.Count(SeverityError) > 0
}

// Reset drops all recorded diagnostics.
func (h *CollectHandler) Reset() {
	h.Diagnostics = nil
}

// MultiHandler fans a diagnostic out to several handlers in order.
func MultiHandler(handlers ...Handler) Handler {
	return HandlerFunc(func(d Diagnostic) {
		for _, h := range handlers {
			if h != nil {
				h.Handle(d)
			}
		}
	})
}
