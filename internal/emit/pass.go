package emit

import (
	"errors"

	"github.com/roach88/hwpipe/internal/ir"
	"github.com/roach88/hwpipe/internal/pass"
)

// ExportVerilogConfig configures export-verilog.
type ExportVerilogConfig struct {
	OutputFile string
}

// DefaultExportVerilogConfig writes to standard output.
func DefaultExportVerilogConfig() ExportVerilogConfig {
	return ExportVerilogConfig{}
}

// ExportVerilog writes Verilog for the module it runs on.
type ExportVerilog struct {
	config   ExportVerilogConfig
	fallback Destination
}

// NewExportVerilog creates the pass.
func NewExportVerilog(cfg ExportVerilogConfig) *ExportVerilog {
	return &ExportVerilog{config: cfg}
}

// WithFallback overrides the fallback writer, mainly for tests.
func (p *ExportVerilog) WithFallback(d Destination) *ExportVerilog {
	p.fallback = d
	return p
}

func (*ExportVerilog) Name() string   { return "export-verilog" }
func (*ExportVerilog) Anchor() string { return ir.ModuleOpName }

func (p *ExportVerilog) Options() []pass.KV {
	if p.config.OutputFile == "" {
		return nil
	}
	return []pass.KV{{Key: "output-file", Value: p.config.OutputFile}}
}

func (p *ExportVerilog) Run(op *ir.Operation, st *pass.State) error {
	dest := p.fallback
	dest.Path = p.config.OutputFile
	if dest.Logger == nil {
		dest.Logger = st.Logger()
	}
	err := emitOp(op, dest)
	var ee *ExportError
	if errors.As(err, &ee) {
		return pass.OpError(findOp(op, ee), err)
	}
	return err
}

// findOp locates the operation named by an export error so that the pass
// failure points at it.
func findOp(root *ir.Operation, ee *ExportError) *ir.Operation {
	found := root
	root.Walk(func(o *ir.Operation) ir.WalkResult {
		if o.Name() == ee.Op && o.Loc() == ee.Loc {
			found = o
			return ir.WalkInterrupt
		}
		return ir.WalkAdvance
	})
	return found
}

// Registrations returns the pass registrations of this package.
func Registrations() []pass.Registration {
	return []pass.Registration{{
		Name:    "export-verilog",
		Summary: "Write Verilog for every hw.module",
		Options: []pass.OptionSpec{{Name: "output-file", Help: "output path; standard output when empty"}},
		New: func(opts pass.Options) (pass.Pass, error) {
			cfg := DefaultExportVerilogConfig()
			cfg.OutputFile = opts.String("output-file", cfg.OutputFile)
			return NewExportVerilog(cfg), nil
		},
	}}
}
