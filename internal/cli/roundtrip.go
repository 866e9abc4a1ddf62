package cli

import (
	"fmt"
	"os"
	"strings"

	diffpatch "github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"

	"github.com/roach88/hwpipe/internal/diag"
	"github.com/roach88/hwpipe/internal/driver"
	"github.com/roach88/hwpipe/internal/ir"
)

// RoundTripOptions holds flags for the roundtrip command.
type RoundTripOptions struct {
	*RootOptions
	Pipeline        string
	IgnoreLocations bool
}

// RoundTripReport is the result of the roundtrip command.
type RoundTripReport struct {
	Input       string `json:"input"`
	Pipeline    string `json:"pipeline"`
	Equal       bool   `json:"equal"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Diff        string `json:"diff,omitempty"`
}

// NewRoundTripCommand creates the roundtrip command.
func NewRoundTripCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RoundTripOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "roundtrip <input>",
		Short: "Check that printed IR parses back to the same IR",
		Long: `Parse an IR file, optionally run a pipeline, print the result and parse
the printed text again. The two IRs must be structurally equal and print
identically; otherwise a line diff of the two printed forms is shown.

Exit codes:
  0 - Round trip preserved the IR
  1 - The IRs differ, or the input does not compile
  2 - Command error

Examples:
  hwpipe roundtrip top.fir
  hwpipe roundtrip top.fir --pipeline 'lower-firrtl-to-hw, canonicalize'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoundTrip(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Pipeline, "pipeline", "p", defaultVerifyPipeline, "textual pass pipeline to run before printing")
	cmd.Flags().BoolVar(&opts.IgnoreLocations, "ignore-locations", false, "compare without source locations")

	return cmd
}

func runRoundTrip(opts *RoundTripOptions, input string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger(cmd.ErrOrStderr())

	src, err := os.ReadFile(input)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeNotFound, "cannot read input", err, nil)
	}
	printer := diag.NewPrinter(cmd.ErrOrStderr())
	printer.AddSource(input, string(src))

	first, err := driver.Compile(driver.Options{
		Source:      string(src),
		InputName:   input,
		Pipeline:    opts.Pipeline,
		SkipVerilog: true,
		Logger:      logger,
		Diagnostics: printer,
	})
	defer first.Close()
	if err != nil {
		exit, code := classify(err)
		return formatter.fail(exit, code, "compilation failed", err, nil)
	}
	printed, err := printIR(first.Module, ir.PrintOptions{SkipLocations: opts.IgnoreLocations})
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, "cannot print IR", err, nil)
	}

	second, err := driver.Compile(driver.Options{
		Source:      printed,
		InputName:   input + " (printed)",
		Pipeline:    defaultVerifyPipeline,
		SkipVerilog: true,
		Logger:      logger,
		Diagnostics: printer,
	})
	defer second.Close()
	if err != nil {
		return formatter.fail(ExitFailure, ErrCodeRoundTrip, "printed IR does not parse", err, nil)
	}

	// Operations without a location are given their position in the
	// printed text when parsed back, so only known locations must survive.
	textOpts := ir.PrintOptions{SkipLocations: true}
	before, err := printIR(first.Module, textOpts)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, "cannot print IR", err, nil)
	}
	after, err := printIR(second.Module, textOpts)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, "cannot print IR", err, nil)
	}
	a, b := first.Module.Operation(), second.Module.Operation()
	report := &RoundTripReport{
		Input:       input,
		Pipeline:    first.Pipeline,
		Fingerprint: first.Fingerprint,
		Equal: before == after &&
			ir.Equal(a, b, ir.EqualOptions{IgnoreLocations: true}) &&
			(opts.IgnoreLocations || knownLocationsKept(a, b)),
	}
	if !report.Equal {
		report.Diff = lineDiff(before, after)
		if opts.Format != "json" {
			fmt.Fprint(cmd.ErrOrStderr(), report.Diff)
		}
		return formatter.fail(ExitFailure, ErrCodeRoundTrip, "round trip changed the IR", nil, report)
	}

	if opts.Format == "json" {
		return formatter.Success(report)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s round-trips (fingerprint %s)\n", input, report.Fingerprint)
	return nil
}

func printIR(m *ir.Module, opts ir.PrintOptions) (string, error) {
	var sb strings.Builder
	if err := ir.PrintOperation(&sb, m.Operation(), opts); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// knownLocationsKept reports whether every operation of a with a known
// location has the same location in b. a and b must be structurally equal.
func knownLocationsKept(a, b *ir.Operation) bool {
	as, bs := preorder(a), preorder(b)
	if len(as) != len(bs) {
		return false
	}
	for i, op := range as {
		if op.Loc().IsKnown() && op.Loc() != bs[i].Loc() {
			return false
		}
	}
	return true
}

func preorder(root *ir.Operation) []*ir.Operation {
	var ops []*ir.Operation
	root.Walk(func(op *ir.Operation) ir.WalkResult {
		ops = append(ops, op)
		return ir.WalkAdvance
	})
	return ops
}

// lineDiff renders a line-oriented diff of a and b, prefixing removed lines
// with "-", added lines with "+" and unchanged lines with a space.
func lineDiff(a, b string) string {
	dmp := diffpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)

	var sb strings.Builder
	sb.WriteString("--- before\n+++ after\n")
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffpatch.DiffInsert:
			prefix = "+"
		case diffpatch.DiffDelete:
			prefix = "-"
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			sb.WriteString(prefix)
			sb.WriteString(line)
			if !strings.HasSuffix(line, "\n") {
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}
