package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/hwpipe/internal/diag"
	"github.com/roach88/hwpipe/internal/driver"
	"github.com/roach88/hwpipe/internal/ir"
	"github.com/roach88/hwpipe/internal/parser"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Pipeline          string
	VerifyDiagnostics bool
	IgnoreLocations   bool
}

// VerifyReport is the result of the verify command.
type VerifyReport struct {
	Input       string           `json:"input"`
	Pipeline    string           `json:"pipeline"`
	Valid       bool             `json:"valid"`
	Expected    int              `json:"expected,omitempty"`
	Missing     []string         `json:"missing,omitempty"`
	Unexpected  []DiagnosticJSON `json:"unexpected,omitempty"`
	Diagnostics []DiagnosticJSON `json:"diagnostics,omitempty"`
}

// defaultVerifyPipeline only checks the parsed IR.
const defaultVerifyPipeline = "verify"

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify <input>",
		Short: "Parse and verify IR, optionally checking expected diagnostics",
		Long: `Parse an IR file and run a pipeline over it without exporting Verilog.

With --verify-diagnostics the diagnostics produced are compared against
expectations written in the input's comments:

  firrtl.connect(%o, %x) // expected-error {{use of undefined value}}
  // expected-warning@+1 {{unprocessed annotation}}

Every expectation must be matched by a diagnostic of the same severity on
the expected line whose message contains the text, and every diagnostic
must be expected.

Exit codes:
  0 - IR is valid (or all diagnostics matched)
  1 - Invalid IR (or diagnostics did not match)
  2 - Command error (unreadable input, bad pipeline)

Examples:
  hwpipe verify top.fir
  hwpipe verify bad.fir --verify-diagnostics
  hwpipe verify top.fir --pipeline 'lower-firrtl-to-hw' --verify-diagnostics`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Pipeline, "pipeline", "p", defaultVerifyPipeline, "textual pass pipeline to run after parsing")
	cmd.Flags().BoolVar(&opts.VerifyDiagnostics, "verify-diagnostics", false, "check diagnostics against expected-* comments")
	cmd.Flags().BoolVar(&opts.IgnoreLocations, "ignore-locations", false, "drop source locations from the IR")

	return cmd
}

func runVerify(opts *VerifyOptions, input string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	src, err := os.ReadFile(input)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeNotFound, "cannot read input", err, nil)
	}

	var handler ir.Handler
	var verifier *diag.Verifier
	if opts.VerifyDiagnostics {
		verifier, err = diag.NewVerifier(input, string(src))
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeGeneric, "invalid expectation", err, nil)
		}
		handler = verifier
	} else {
		printer := diag.NewPrinter(cmd.ErrOrStderr())
		printer.AddSource(input, string(src))
		handler = printer
	}

	res, cerr := driver.Compile(driver.Options{
		Source:      string(src),
		InputName:   input,
		Pipeline:    opts.Pipeline,
		SkipVerilog: true,
		VerifyEach:  true,
		Parse:       parser.Options{IgnoreLocationInfo: opts.IgnoreLocations},
		Logger:      opts.logger(cmd.ErrOrStderr()),
		Diagnostics: handler,
	})
	defer res.Close()

	report := &VerifyReport{Input: input, Pipeline: opts.Pipeline}
	if res != nil {
		report.Diagnostics = diagnosticsJSON(res.Diagnostics)
		if res.Pipeline != "" {
			report.Pipeline = res.Pipeline
		}
	}

	// Without a verifier any failure is final; with one, a failing run is
	// fine as long as its diagnostics were expected. Command errors never
	// are.
	if cerr != nil {
		exit, code := classify(cerr)
		if verifier == nil || exit == ExitCommandError {
			return formatter.fail(exit, code, "verification failed", cerr, report)
		}
	}

	if verifier != nil {
		report.Expected = len(verifier.Expectations())
		if err := verifier.Verify(); err != nil {
			var mm *diag.MismatchError
			if errors.As(err, &mm) {
				for _, m := range mm.Missing {
					report.Missing = append(report.Missing, m.String())
				}
				report.Unexpected = diagnosticsJSON(mm.Unexpected)
			}
			if opts.Format != "json" {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
			}
			return formatter.fail(ExitFailure, ErrCodeVerification, "diagnostics did not match expectations", nil, report)
		}
	}

	report.Valid = true
	if opts.Format == "json" {
		return formatter.Success(report)
	}
	if verifier != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s: %d expected diagnostic(s) matched\n", input, report.Expected)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is valid\n", input)
	}
	return nil
}
