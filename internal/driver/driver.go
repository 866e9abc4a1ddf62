// Package driver runs a whole compilation: parse, pass pipeline, Verilog
// output and optional IR snapshot, with timing and diagnostics collected
// along the way.
package driver

import (
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/roach88/hwpipe/internal/conversion"
	"github.com/roach88/hwpipe/internal/dialects"
	"github.com/roach88/hwpipe/internal/emit"
	"github.com/roach88/hwpipe/internal/ir"
	"github.com/roach88/hwpipe/internal/parser"
	"github.com/roach88/hwpipe/internal/pass"
	"github.com/roach88/hwpipe/internal/timing"
	"github.com/roach88/hwpipe/internal/transforms"
)

// DefaultPipeline lowers firrtl to hw and cleans up the result.
const DefaultPipeline = "builtin.module(lower-firrtl-to-hw, canonicalize, cse)"

// PassRegistry returns every pass that can appear in a textual pipeline.
func PassRegistry() *pass.Registry {
	var regs []pass.Registration
	regs = append(regs, transforms.Registrations()...)
	regs = append(regs, conversion.Registrations()...)
	regs = append(regs, emit.Registrations()...)
	return pass.NewRegistry(regs...)
}

// Options configures Compile.
type Options struct {
	// InputPath is read when Source is empty.
	InputPath string
	// Source is the input text; InputName names it in locations.
	Source    string
	InputName string

	// Pipeline is a textual pass pipeline. Empty means DefaultPipeline.
	Pipeline string

	// OutputPath receives the Verilog. Empty means Output.
	OutputPath string
	// Output is the fallback sink for Verilog. Nil means standard output.
	Output io.Writer
	// SkipVerilog stops after the pipeline.
	SkipVerilog bool
	// IRPath, when set, receives a snapshot of the final IR.
	IRPath string

	Timing bool
	// Clock overrides the timing clock.
	Clock      timing.Clock
	VerifyEach bool
	Parse      parser.Options

	// DialectVersions maps dialect namespaces to semver constraints that
	// the loaded dialects must satisfy.
	DialectVersions map[string]string

	Logger *slog.Logger
	// Diagnostics also receives every diagnostic, e.g. a terminal printer.
	Diagnostics ir.Handler
}

// Result is what a compilation produced. Close releases the context.
type Result struct {
	Context     *ir.Context
	Module      *ir.Module
	Pipeline    string
	Timing      *timing.Manager
	Diagnostics []ir.Diagnostic
	Fingerprint string
	// IRWritten reports whether the requested IR snapshot was written.
	IRWritten bool
}

// Close releases the result's context.
func (r *Result) Close() error {
	if r == nil || r.Context == nil {
		return nil
	}
	return r.Context.Close()
}

// Compile runs a full compilation. Once the context exists the returned
// Result is non-nil even if a later step fails, so that callers can report
// diagnostics and timing; Module is nil when parsing failed.
func Compile(opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collect := &ir.CollectHandler{}
	var handler ir.Handler = collect
	if opts.Diagnostics != nil {
		handler = ir.MultiHandler(collect, opts.Diagnostics)
	}

	ctx, err := dialects.NewContext(ir.WithDiagnosticHandler(handler))
	if err != nil {
		return nil, err
	}
	if err := requireVersions(ctx, opts.DialectVersions); err != nil {
		ctx.Close()
		return nil, err
	}

	var topts []timing.Option
	if opts.Clock != nil {
		topts = append(topts, timing.WithClock(opts.Clock))
	}
	tm := timing.NewManager(topts...)
	root := timing.Scope{}
	if opts.Timing {
		root = tm.Root()
	}
	res := &Result{Context: ctx, Timing: tm}
	finish := func(err error) (*Result, error) {
		res.Diagnostics = collect.Diagnostics
		return res, err
	}

	err = root.Time("Parse", func() error {
		var perr error
		if opts.Source != "" || opts.InputPath == "" {
			name := opts.InputName
			if name == "" {
				name = "<stdin>"
			}
			res.Module, perr = parser.Parse(ctx, name, opts.Source, opts.Parse)
		} else {
			res.Module, perr = parser.ParseFile(ctx, opts.InputPath, opts.Parse)
		}
		return perr
	})
	if err != nil {
		return finish(err)
	}

	pm := pass.NewManager(ctx)
	pm.SetLogger(logger)
	pm.EnableVerifier(opts.VerifyEach)
	text := opts.Pipeline
	if text == "" {
		text = DefaultPipeline
	}
	if err := pass.ParsePipeline(pm, text, PassRegistry()); err != nil {
		return finish(err)
	}
	res.Pipeline = pm.String()
	if err := pm.EnableTiming(root.Nest("Pipeline")); err != nil {
		return finish(err)
	}

	logger.Debug("running pipeline", "pipeline", res.Pipeline)
	if err := pm.Run(res.Module); err != nil {
		return finish(err)
	}

	if !opts.SkipVerilog {
		err := root.Time("Output", func() error {
			return emit.Emit(res.Module, emit.Destination{Path: opts.OutputPath, Fallback: opts.Output, Logger: logger})
		})
		if err != nil {
			return finish(err)
		}
	}
	if opts.IRPath != "" {
		res.IRWritten = emit.EmitIR(res.Module, emit.Destination{Path: opts.IRPath, Logger: logger})
	}

	fp, err := ir.Fingerprint(res.Module.Operation())
	if err != nil {
		return finish(fmt.Errorf("fingerprint: %w", err))
	}
	res.Fingerprint = fp
	return finish(nil)
}

func requireVersions(ctx *ir.Context, constraints map[string]string) error {
	namespaces := make([]string, 0, len(constraints))
	for ns := range constraints {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)
	for _, ns := range namespaces {
		if err := ctx.RequireDialect(ns, constraints[ns]); err != nil {
			return err
		}
	}
	return nil
}
