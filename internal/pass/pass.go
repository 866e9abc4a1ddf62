// Package pass defines compiler passes and the pass manager that runs them.
//
// A Manager is a tree: each entry is either a pass or a nested manager
// anchored on an operation kind. Running a manager executes its entries in
// insertion order on one operation; a nested entry runs its manager on
// every matching operation below.
package pass

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/hwpipe/internal/ir"
	"github.com/roach88/hwpipe/internal/timing"
)

// Pass transforms or checks the IR rooted at one operation.
type Pass interface {
	// Name is the pipeline name of the pass, e.g. "canonicalize".
	Name() string
	// Run mutates op in place. A non-nil error aborts the pipeline.
	Run(op *ir.Operation, st *State) error
}

// Anchored is implemented by passes that only run on one operation kind.
type Anchored interface {
	Anchor() string
}

// Configurable is implemented by passes with options, so that the pipeline
// can be printed back in textual form.
type Configurable interface {
	Options() []KV
}

// KV is one pass option in textual form.
type KV struct {
	Key   string
	Value string
}

// State is handed to a running pass.
type State struct {
	ctx    *ir.Context
	logger *slog.Logger
	timer  timing.Scope
}

// NewState creates a pass state. Used by the manager and by tests that run
// a pass directly.
func NewState(ctx *ir.Context, logger *slog.Logger, timer timing.Scope) *State {
	if logger == nil {
		logger = slog.Default()
	}
	return &State{ctx: ctx, logger: logger, timer: timer}
}

// Context returns the IR context.
func (s *State) Context() *ir.Context { return s.ctx }

// Logger returns the pipeline logger.
func (s *State) Logger() *slog.Logger { return s.logger }

// Timer returns the pass's timing scope for finer-grained sub-timers.
// It is disabled when timing is off.
func (s *State) Timer() timing.Scope { return s.timer }

// OpError marks err as caused by a specific operation. The manager reports
// that operation in the resulting PassFailure instead of the operation the
// pass was run on.
func OpError(op *ir.Operation, err error) error {
	return &opError{op: op, err: err}
}

// OpErrorf is OpError with a formatted message.
func OpErrorf(op *ir.Operation, format string, args ...any) error {
	return OpError(op, fmt.Errorf(format, args...))
}

type opError struct {
	op  *ir.Operation
	err error
}

func (e *opError) Error() string { return e.err.Error() }
func (e *opError) Unwrap() error { return e.err }

// ErrRunInProgress is returned when a manager is modified or reconfigured
// while it is running.
var ErrRunInProgress = errors.New("pass manager is running")

// PassFailure reports the first pass that failed during a run.
type PassFailure struct {
	Pass   string
	OpName string
	Symbol string
	Loc    ir.Location
	Err    error
}

func (e *PassFailure) Error() string {
	target := "'" + e.OpName + "'"
	if e.Symbol != "" {
		target += " @" + e.Symbol
	}
	if e.Loc.IsKnown() {
		return fmt.Sprintf("%s: pass '%s' failed on %s: %v", e.Loc, e.Pass, target, e.Err)
	}
	return fmt.Sprintf("pass '%s' failed on %s: %v", e.Pass, target, e.Err)
}

func (e *PassFailure) Unwrap() error { return e.Err }

// IsPassFailure reports whether err wraps a PassFailure.
// Uses errors.As to handle wrapped errors.
func IsPassFailure(err error) bool {
	var pf *PassFailure
	return errors.As(err, &pf)
}

func newFailure(p Pass, op *ir.Operation, err error) *PassFailure {
	var oe *opError
	if errors.As(err, &oe) && oe.op != nil {
		op = oe.op
	}
	return &PassFailure{Pass: p.Name(), OpName: op.Name(), Symbol: op.Symbol(), Loc: op.Loc(), Err: err}
}

// Func adapts a function into a Pass. Used for one-off passes in tests and
// by the driver.
type Func struct {
	PassName string
	AnchorOn string
	Fn       func(op *ir.Operation, st *State) error
}

func (f *Func) Name() string                           { return f.PassName }
func (f *Func) Anchor() string                         { return f.AnchorOn }
func (f *Func) Run(op *ir.Operation, st *State) error { return f.Fn(op, st) }
