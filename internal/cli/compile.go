package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/hwpipe/internal/config"
	"github.com/roach88/hwpipe/internal/diag"
	"github.com/roach88/hwpipe/internal/driver"
	"github.com/roach88/hwpipe/internal/emit"
	"github.com/roach88/hwpipe/internal/ir"
	"github.com/roach88/hwpipe/internal/parser"
	"github.com/roach88/hwpipe/internal/pass"
	"github.com/roach88/hwpipe/internal/store"
	"github.com/roach88/hwpipe/internal/timing"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	ConfigPath string
	Watch      bool
	NoColor    bool

	// flags receives the config-mirroring flags; only flags that were set
	// override the config file.
	flags config.Config
}

// CompileReport describes one compilation.
type CompileReport struct {
	Input       string              `json:"input"`
	Pipeline    string              `json:"pipeline,omitempty"`
	Fingerprint string              `json:"fingerprint,omitempty"`
	Output      string              `json:"output,omitempty"`
	Verilog     string              `json:"verilog,omitempty"`
	IRSnapshot  string              `json:"ir_snapshot,omitempty"`
	Diagnostics []DiagnosticJSON    `json:"diagnostics,omitempty"`
	Timing      *timing.ReportEntry `json:"timing,omitempty"`
	RunID       string              `json:"run_id,omitempty"`
	// SameAsRun is the latest earlier successful run with the same
	// fingerprint.
	SameAsRun string `json:"same_as_run,omitempty"`
}

// DiagnosticJSON is the JSON form of a diagnostic.
type DiagnosticJSON struct {
	Severity string `json:"severity"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	Message  string `json:"message"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <input>",
		Short: "Compile firrtl IR to Verilog",
		Long: `Parse an IR file, run it through a pass pipeline and export Verilog.

Settings can come from a YAML or CUE config file (--config); flags that
are set explicitly override the file.

Exit codes:
  0 - Compilation succeeded
  1 - Parse error, failing pass or unexportable IR
  2 - Command error (unreadable input, bad pipeline or config, etc.)

Examples:
  hwpipe compile top.fir
  hwpipe compile top.fir -o top.v --timing
  hwpipe compile top.fir --pipeline 'builtin.module(lower-firrtl-to-hw, cse)'
  hwpipe compile top.fir --config hwpipe.cue --db runs.db
  hwpipe compile top.fir -o top.v --watch`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.ConfigPath, "config", "c", "", "YAML or CUE config file")
	f.BoolVarP(&opts.Watch, "watch", "w", false, "recompile whenever the input changes")
	f.BoolVar(&opts.NoColor, "no-color", false, "disable colored diagnostics")
	f.StringVarP(&opts.flags.Pipeline, "pipeline", "p", "", "textual pass pipeline (default "+strconv.Quote(driver.DefaultPipeline)+")")
	f.StringSliceVar(&opts.flags.Passes, "pass", nil, "pass to run, repeatable (alternative to --pipeline)")
	f.StringVarP(&opts.flags.Output, "output", "o", "", "Verilog output file (default standard output)")
	f.StringVar(&opts.flags.EmitIR, "emit-ir", "", "write the final IR to this file")
	f.BoolVar(&opts.flags.Timing, "timing", false, "report pass execution times on standard error")
	f.StringVar(&opts.flags.TimingFormat, "timing-format", "text", "timing report format (text|json)")
	f.BoolVar(&opts.flags.VerifyEach, "verify-each", false, "verify the IR after every pass")
	f.BoolVar(&opts.flags.RawAnnotations, "raw-annotations", false, "accept annotations without resolving targets")
	f.BoolVar(&opts.flags.IgnoreLocations, "ignore-locations", false, "drop source locations from the IR")
	f.StringSliceVar(&opts.flags.AnnotationFiles, "annotations", nil, "JSON annotation file, repeatable")
	f.StringToStringVar(&opts.flags.Dialects, "dialect", nil, "dialect version constraint, e.g. firrtl=^1.0")
	f.StringVar(&opts.flags.RecordDB, "db", "", "record the run in this SQLite database")

	return cmd
}

func runCompile(opts *CompileOptions, input string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := resolveConfig(opts, cmd)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err, nil)
	}

	if !opts.Watch {
		_, err := compileOnce(cmd.Context(), opts, cfg, input, cmd)
		return err
	}
	return watch(cmd.Context(), opts, cfg, input, cmd)
}

// resolveConfig loads the config file, if any, and applies the flags that
// were set on the command line.
func resolveConfig(opts *CompileOptions, cmd *cobra.Command) (*config.Config, error) {
	cfg := &config.Config{}
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	fl := opts.flags
	changed := cmd.Flags().Changed
	if changed("pipeline") {
		cfg.Pipeline = fl.Pipeline
		if !changed("pass") {
			cfg.Passes = nil
		}
	}
	if changed("pass") {
		cfg.Passes = fl.Passes
		if !changed("pipeline") {
			cfg.Pipeline = ""
		}
	}
	if changed("output") {
		cfg.Output = fl.Output
	}
	if changed("emit-ir") {
		cfg.EmitIR = fl.EmitIR
	}
	if changed("timing") {
		cfg.Timing = fl.Timing
	}
	if changed("timing-format") {
		cfg.TimingFormat = fl.TimingFormat
	}
	if changed("verify-each") {
		cfg.VerifyEach = fl.VerifyEach
	}
	if changed("raw-annotations") {
		cfg.RawAnnotations = fl.RawAnnotations
	}
	if changed("ignore-locations") {
		cfg.IgnoreLocations = fl.IgnoreLocations
	}
	if changed("annotations") {
		cfg.AnnotationFiles = fl.AnnotationFiles
	}
	if changed("dialect") {
		if cfg.Dialects == nil {
			cfg.Dialects = make(map[string]string)
		}
		for ns, c := range fl.Dialects {
			cfg.Dialects[ns] = c
		}
	}
	if changed("db") {
		cfg.RecordDB = fl.RecordDB
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// compileOnce runs one compilation and reports it. The returned error is
// an *ExitError for every failure.
func compileOnce(ctx context.Context, opts *CompileOptions, cfg *config.Config, input string, cmd *cobra.Command) (*CompileReport, error) {
	formatter := opts.formatter(cmd)
	logger := opts.logger(cmd.ErrOrStderr())
	jsonOut := opts.Format == "json"

	src, err := os.ReadFile(input)
	if err != nil {
		return nil, formatter.fail(ExitCommandError, ErrCodeNotFound, "cannot read input", err, nil)
	}
	popts := parser.Options{
		IgnoreLocationInfo: cfg.IgnoreLocations,
		RawAnnotationMode:  cfg.RawAnnotations,
	}
	for _, f := range cfg.AnnotationFiles {
		text, err := os.ReadFile(f)
		if err != nil {
			return nil, formatter.fail(ExitCommandError, ErrCodeNotFound, "cannot read annotation file", err, nil)
		}
		popts.AnnotationSources = append(popts.AnnotationSources, parser.AnnotationSource{Name: f, Text: string(text)})
	}

	printer := diag.NewPrinter(cmd.ErrOrStderr())
	if opts.NoColor {
		printer = diag.NewPrinter(cmd.ErrOrStderr(), diag.WithColors(false))
	}
	printer.AddSource(input, string(src))

	// JSON output carries the Verilog in the response unless it goes to a file.
	var verilog bytes.Buffer
	var out io.Writer = cmd.OutOrStdout()
	if jsonOut {
		out = &verilog
	}

	formatter.VerboseLog("Compiling %s", input)
	res, cerr := driver.Compile(driver.Options{
		Source:          string(src),
		InputName:       input,
		Pipeline:        cfg.PipelineText(),
		OutputPath:      cfg.Output,
		Output:          out,
		IRPath:          cfg.EmitIR,
		Timing:          cfg.Timing || cfg.RecordDB != "",
		VerifyEach:      cfg.VerifyEach,
		Parse:           popts,
		DialectVersions: cfg.Dialects,
		Logger:          logger,
		Diagnostics:     printer,
	})
	defer res.Close()

	report := &CompileReport{Input: input, Output: cfg.Output}
	if res != nil {
		report.Pipeline = res.Pipeline
		report.Fingerprint = res.Fingerprint
		report.Diagnostics = diagnosticsJSON(res.Diagnostics)
		if res.IRWritten {
			report.IRSnapshot = cfg.EmitIR
		}
		if jsonOut {
			report.Verilog = verilog.String()
		}
		if cfg.Timing {
			if jsonOut {
				report.Timing = res.Timing.Tree()
			} else if err := reportTiming(res.Timing, cfg.TimingFormat, cmd.ErrOrStderr()); err != nil {
				return nil, formatter.fail(ExitCommandError, ErrCodeGeneric, "cannot write timing report", err, nil)
			}
		}
		if cfg.RecordDB != "" {
			if err := recordRun(ctx, cfg, input, res, cerr, report); err != nil {
				return nil, formatter.fail(ExitCommandError, ErrCodeDatabase, "cannot record run", err, nil)
			}
			formatter.VerboseLog("Recorded run %s in %s", report.RunID, cfg.RecordDB)
			if report.SameAsRun != "" {
				logger.Info("output unchanged since an earlier run", "run", report.SameAsRun)
			}
		}
	}

	if cerr != nil {
		exit, code := classify(cerr)
		return report, formatter.fail(exit, code, "compilation failed", cerr, report)
	}

	if jsonOut {
		return report, formatter.Success(report)
	}
	if cfg.Output != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Compiled %s to %s\n", input, cfg.Output)
	}
	formatter.VerboseLog("Pipeline: %s", report.Pipeline)
	formatter.VerboseLog("Fingerprint: %s", report.Fingerprint)
	return report, nil
}

func reportTiming(tm *timing.Manager, format string, w io.Writer) error {
	if format == "" {
		format = string(timing.FormatText)
	}
	f, err := timing.ParseFormat(format)
	if err != nil {
		return err
	}
	return tm.Report(w, f)
}

// classify maps a compilation error to an exit code and an error code.
func classify(err error) (int, string) {
	var (
		pe  *parser.ParseError
		pf  *pass.PassFailure
		ee  *emit.ExportError
		ple *pass.PipelineError
		dve *ir.DialectVersionError
		eio *emit.IOError
		pio *parser.IOError
	)
	switch {
	case errors.As(err, &pe):
		return ExitFailure, ErrCodeParse
	case errors.As(err, &pf):
		return ExitFailure, ErrCodePassFailure
	case errors.As(err, &ee):
		return ExitFailure, ErrCodeExport
	case errors.As(err, &ple):
		return ExitCommandError, ErrCodeBadPipeline
	case errors.As(err, &dve):
		return ExitCommandError, ErrCodeDialect
	case errors.As(err, &eio):
		return ExitCommandError, ErrCodeWriteFailed
	case errors.As(err, &pio):
		return ExitCommandError, ErrCodeNotFound
	default:
		return ExitCommandError, ErrCodeGeneric
	}
}

func runStatus(err error) store.Status {
	switch {
	case err == nil:
		return store.StatusOK
	case parser.IsParseError(err):
		return store.StatusParseError
	case pass.IsPassFailure(err):
		return store.StatusPassFailure
	default:
		return store.StatusError
	}
}

// recordRun stores the run and fills report.RunID and report.SameAsRun.
func recordRun(ctx context.Context, cfg *config.Config, input string, res *driver.Result, cerr error, report *CompileReport) error {
	st, err := store.Open(cfg.RecordDB)
	if err != nil {
		return err
	}
	defer st.Close()

	if cerr == nil && res.Fingerprint != "" {
		prev, err := st.LatestByFingerprint(ctx, res.Fingerprint)
		switch {
		case err == nil:
			report.SameAsRun = prev.ID
		case !errors.Is(err, store.ErrRunNotFound):
			return err
		}
	}

	pipeline := res.Pipeline
	if pipeline == "" {
		pipeline = cfg.PipelineText()
	}
	if pipeline == "" {
		pipeline = driver.DefaultPipeline
	}
	run := store.Run{
		Input:       input,
		Pipeline:    pipeline,
		Fingerprint: res.Fingerprint,
		Status:      runStatus(cerr),
		Total:       res.Timing.Total(),
		Options: map[string]string{
			"verify_each":      strconv.FormatBool(cfg.VerifyEach),
			"ignore_locations": strconv.FormatBool(cfg.IgnoreLocations),
			"raw_annotations":  strconv.FormatBool(cfg.RawAnnotations),
			"annotation_files": strconv.Itoa(len(cfg.AnnotationFiles)),
		},
		Timings: store.TimingsFrom(res.Timing),
	}
	if cerr != nil {
		run.Failure = cerr.Error()
	}
	recorded, err := st.RecordRun(ctx, run)
	if err != nil {
		return err
	}
	report.RunID = recorded.ID
	return nil
}

func diagnosticsJSON(diags []ir.Diagnostic) []DiagnosticJSON {
	if len(diags) == 0 {
		return nil
	}
	out := make([]DiagnosticJSON, len(diags))
	for i, d := range diags {
		out[i] = DiagnosticJSON{
			Severity: d.Severity.String(),
			File:     d.Loc.File,
			Line:     d.Loc.Line,
			Column:   d.Loc.Column,
			Message:  d.Message,
		}
	}
	return out
}
