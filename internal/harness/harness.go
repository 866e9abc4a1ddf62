package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/hwpipe/internal/driver"
	"github.com/roach88/hwpipe/internal/ir"
	"github.com/roach88/hwpipe/internal/parser"
	"github.com/roach88/hwpipe/internal/pass"
	"github.com/roach88/hwpipe/internal/testutil"
	"github.com/roach88/hwpipe/internal/timing"
)

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	logger *slog.Logger
}

// WithLogger sets the logger handed to the driver. Logs are discarded by
// default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *runConfig) { c.logger = logger }
}

// Run compiles the scenario's input and checks the outcome.
//
// The returned error is reserved for problems with the scenario itself,
// such as an unreadable input file. A compilation that fails is a normal
// result, checked against the scenario's expectations like any other.
func Run(s *Scenario, opts ...Option) (*Result, error) {
	cfg := &runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(cfg)
	}

	source, name, err := s.input()
	if err != nil {
		return nil, err
	}
	popts := parser.Options{RawAnnotationMode: s.RawAnnotations}
	for i, a := range s.Annotations {
		aname := a.Name
		if aname == "" {
			aname = fmt.Sprintf("annotations[%d]", i)
		}
		popts.AnnotationSources = append(popts.AnnotationSources, parser.AnnotationSource{Name: aname, Text: a.Text})
	}
	for _, f := range s.AnnotationFiles {
		data, err := os.ReadFile(s.resolve(f))
		if err != nil {
			return nil, fmt.Errorf("failed to read annotation file: %w", err)
		}
		popts.AnnotationSources = append(popts.AnnotationSources, parser.AnnotationSource{Name: filepath.Base(f), Text: string(data)})
	}

	var out bytes.Buffer
	res, cerr := driver.Compile(driver.Options{
		Source:     source,
		InputName:  name,
		Pipeline:   s.Pipeline,
		Output:     &out,
		Timing:     true,
		Clock:      testutil.NewFakeClock(time.Millisecond),
		VerifyEach: true,
		Parse:      popts,
		Logger:     cfg.logger,
	})
	defer res.Close()
	if res == nil {
		return nil, fmt.Errorf("failed to create context: %w", cerr)
	}

	result := NewResult()
	collect(result, res, cerr, out.String())
	check(s, result)
	return result, nil
}

func (s *Scenario) input() (source, name string, err error) {
	if s.Source != "" {
		return s.Source, s.Name + ".mlir", nil
	}
	data, err := os.ReadFile(s.resolve(s.Input))
	if err != nil {
		return "", "", fmt.Errorf("failed to read input: %w", err)
	}
	return string(data), filepath.Base(s.Input), nil
}

// collect fills r from a driver result.
func collect(r *Result, res *driver.Result, err error, verilog string) {
	r.Parsed = res.Module != nil
	r.Succeeded = err == nil
	r.Pipeline = res.Pipeline
	r.Fingerprint = res.Fingerprint
	if err != nil {
		r.Error = err.Error()
	}

	var pe *parser.ParseError
	if errors.As(err, &pe) {
		r.ParseError = &ErrorPosition{Line: pe.Loc.Line, Column: pe.Loc.Column, Message: pe.Message}
	}
	var pf *pass.PassFailure
	if errors.As(err, &pf) {
		r.FailedPass = pf.Pass
	}
	if err == nil {
		r.Verilog = verilog
	}

	if res.Module != nil {
		var sb strings.Builder
		if perr := ir.PrintOperation(&sb, res.Module.Operation(), ir.PrintOptions{SkipLocations: true}); perr == nil {
			r.IR = sb.String()
		}
		for _, op := range res.Module.Body().Operations() {
			if sym := op.Symbol(); sym != "" {
				r.Modules = append(r.Modules, sym)
			}
		}
	}

	res.Timing.Walk(func(n timing.Node) {
		if n.Depth == 2 && len(n.Path) > 1 && n.Path[1] == "Pipeline" {
			r.Passes = append(r.Passes, n.Name)
		}
	})

	for _, d := range res.Diagnostics {
		r.Diagnostics = append(r.Diagnostics, DiagnosticRecord{
			Severity: d.Severity.String(),
			Line:     d.Loc.Line,
			Column:   d.Loc.Column,
			Message:  d.Message,
		})
	}
}
