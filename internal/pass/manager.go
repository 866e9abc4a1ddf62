package pass

import (
	"fmt"
	"log/slog"

	"github.com/roach88/hwpipe/internal/ir"
	"github.com/roach88/hwpipe/internal/timing"
)

// EntryKind tags a Manager entry.
type EntryKind int

const (
	EntryPass EntryKind = iota
	EntryNested
)

// Entry is one element of a pipeline: a pass, or a nested manager that runs
// on every operation of its anchor kind.
type Entry struct {
	Kind   EntryKind
	Pass   Pass
	Nested *Manager
}

// shared is the configuration common to a manager and all managers nested
// inside it.
type shared struct {
	running    bool
	verifyEach bool
	timer      timing.Scope
	logger     *slog.Logger
}

// Manager runs an ordered pipeline of passes on operations of one kind.
//
// Thread-safety: a Manager is used by one goroutine at a time.
type Manager struct {
	ctx     *ir.Context
	anchor  string
	entries []Entry
	parent  *Manager
	shared  *shared
}

// NewManager creates a top-level manager anchored on builtin.module.
func NewManager(ctx *ir.Context) *Manager {
	return NewManagerOn(ctx, ir.ModuleOpName)
}

// NewManagerOn creates a top-level manager anchored on the given kind.
func NewManagerOn(ctx *ir.Context, anchor string) *Manager {
	return &Manager{
		ctx:    ctx,
		anchor: anchor,
		shared: &shared{logger: slog.Default()},
	}
}

// Context returns the manager's IR context.
func (pm *Manager) Context() *ir.Context { return pm.ctx }

// Anchor returns the operation kind the manager runs on.
func (pm *Manager) Anchor() string { return pm.anchor }

// Parent returns the enclosing manager, or nil at the top level.
func (pm *Manager) Parent() *Manager { return pm.parent }

// SetLogger sets the logger used by the whole manager tree.
func (pm *Manager) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.Default()
	}
	pm.shared.logger = l
}

// Add appends passes to the pipeline.
func (pm *Manager) Add(passes ...Pass) error {
	if pm.shared.running {
		return ErrRunInProgress
	}
	for _, p := range passes {
		if p == nil {
			return fmt.Errorf("add to '%s' pipeline: nil pass", pm.anchor)
		}
		pm.entries = append(pm.entries, Entry{Kind: EntryPass, Pass: p})
	}
	return nil
}

// Nest appends a nested manager that runs on every operation of kind below
// the operation this manager runs on, and returns it.
func (pm *Manager) Nest(kind string) (*Manager, error) {
	if pm.shared.running {
		return nil, ErrRunInProgress
	}
	if _, err := pm.ctx.LookupOp(kind); err != nil {
		return nil, fmt.Errorf("nest '%s' in '%s' pipeline: %w", kind, pm.anchor, err)
	}
	child := &Manager{ctx: pm.ctx, anchor: kind, parent: pm, shared: pm.shared}
	pm.entries = append(pm.entries, Entry{Kind: EntryNested, Nested: child})
	return child, nil
}

// EnableVerifier turns verification after every pass on or off for the
// whole manager tree.
func (pm *Manager) EnableVerifier(enabled bool) {
	pm.shared.verifyEach = enabled
}

// VerifierEnabled reports whether verify-each is on.
func (pm *Manager) VerifierEnabled() bool {
	return pm.shared.verifyEach
}

// EnableTiming attaches a timing scope. Each run starts and stops it, and
// every pass and nested pipeline gets a child timer.
func (pm *Manager) EnableTiming(scope timing.Scope) error {
	if pm.shared.running {
		return ErrRunInProgress
	}
	pm.shared.timer = scope
	return nil
}

// Entries returns a copy of the manager's entries.
func (pm *Manager) Entries() []Entry {
	out := make([]Entry, len(pm.entries))
	copy(out, pm.entries)
	return out
}

// Size returns the number of entries.
func (pm *Manager) Size() int { return len(pm.entries) }

// IsRunning reports whether a run of the manager tree is in progress.
func (pm *Manager) IsRunning() bool { return pm.shared.running }

// Run executes the pipeline on m, which it owns for the duration of the
// run. The root operation must be of the manager's anchor kind.
//
// The first failing pass aborts the run and is returned as a *PassFailure.
// The module is mutated in place and not restored on failure.
func (pm *Manager) Run(m *ir.Module) error {
	if pm.parent != nil {
		return fmt.Errorf("run on nested '%s' pipeline: only the top-level manager can run", pm.anchor)
	}
	if m.Context() != pm.ctx {
		return fmt.Errorf("module belongs to a different context")
	}
	if err := m.Acquire(); err != nil {
		return err
	}
	defer m.Release()

	root := m.Operation()
	if root.Name() != pm.anchor {
		return fmt.Errorf("'%s' pipeline cannot run on '%s'", pm.anchor, root.Name())
	}

	pm.shared.running = true
	defer func() { pm.shared.running = false }()

	timer := pm.shared.timer
	timer.Start()
	defer timer.Stop()

	pm.shared.logger.Debug("pipeline starting", "anchor", pm.anchor, "pipeline", pm.String())
	if err := pm.runOn(root, timer); err != nil {
		pm.shared.logger.Debug("pipeline failed", "error", err)
		return err
	}
	pm.shared.logger.Debug("pipeline finished", "anchor", pm.anchor)
	return nil
}

func (pm *Manager) runOn(op *ir.Operation, timer timing.Scope) error {
	for _, e := range pm.entries {
		switch e.Kind {
		case EntryPass:
			if err := pm.runPass(e.Pass, op, timer); err != nil {
				return err
			}
		case EntryNested:
			if err := e.Nested.runNested(op, timer); err != nil {
				return err
			}
		}
	}
	return nil
}

// runNested collects every operation of the nested anchor kind below scope
// (not descending into a match) and then runs the pipeline on each.
func (pm *Manager) runNested(scope *ir.Operation, timer timing.Scope) error {
	var targets []*ir.Operation
	for _, r := range scope.Regions() {
		for _, b := range r.Blocks() {
			for _, op := range b.Operations() {
				op.Walk(func(o *ir.Operation) ir.WalkResult {
					if o.Name() == pm.anchor {
						targets = append(targets, o)
						return ir.WalkSkip
					}
					return ir.WalkAdvance
				})
			}
		}
	}

	pipeTimer := timer.Nest(fmt.Sprintf("'%s' Pipeline", pm.anchor))
	pipeTimer.Start()
	defer pipeTimer.Stop()

	for _, target := range targets {
		if target.IsErased() {
			continue
		}
		if err := pm.runOn(target, pipeTimer); err != nil {
			return err
		}
	}
	return nil
}

func (pm *Manager) runPass(p Pass, op *ir.Operation, timer timing.Scope) error {
	if a, ok := p.(Anchored); ok && a.Anchor() != "" && a.Anchor() != op.Name() {
		err := fmt.Errorf("pass is anchored on '%s' and cannot run on '%s'", a.Anchor(), op.Name())
		return pm.fail(newFailure(p, op, err))
	}

	passTimer := timer.Nest(p.Name())
	passTimer.Start()
	pm.shared.logger.Debug("running pass", "pass", p.Name(), "op", op.Describe())
	err := p.Run(op, NewState(pm.ctx, pm.shared.logger, passTimer))
	passTimer.Stop()
	if err != nil {
		return pm.fail(newFailure(p, op, err))
	}

	if pm.shared.verifyEach {
		vt := timer.Nest("(verify)")
		vt.Start()
		err := ir.Verify(op)
		vt.Stop()
		if err != nil {
			return pm.fail(newFailure(p, op, fmt.Errorf("verification after pass failed: %w", err)))
		}
	}
	return nil
}

func (pm *Manager) fail(f *PassFailure) error {
	pm.ctx.Emit(ir.Diagnostic{
		Severity: ir.SeverityError,
		Loc:      f.Loc,
		Message:  fmt.Sprintf("pass '%s' failed: %v", f.Pass, f.Err),
	})
	pm.shared.logger.Warn("pass failed", "pass", f.Pass, "op", f.OpName, "symbol", f.Symbol, "error", f.Err)
	return f
}
