package transforms

import (
	"fmt"

	"github.com/roach88/hwpipe/internal/pass"
)

// Registrations returns the pass registrations of this package.
func Registrations() []pass.Registration {
	return []pass.Registration{
		{
			Name:    "canonicalize",
			Summary: "Apply canonicalization patterns to a fixed point",
			Options: []pass.OptionSpec{
				{Name: "top-down", Default: "true", Help: "visit operations in pre-order"},
				{Name: "region-simplify", Default: "true", Help: "erase unused side-effect free operations"},
				{Name: "max-iterations", Default: fmt.Sprint(DefaultMaxIterations), Help: "maximum number of sweeps"},
			},
			New: func(opts pass.Options) (pass.Pass, error) {
				cfg := DefaultCanonicalizeConfig()
				var err error
				if cfg.TopDown, err = opts.Bool("top-down", cfg.TopDown); err != nil {
					return nil, err
				}
				if cfg.RegionSimplify, err = opts.Bool("region-simplify", cfg.RegionSimplify); err != nil {
					return nil, err
				}
				if cfg.MaxIterations, err = opts.Int("max-iterations", cfg.MaxIterations); err != nil {
					return nil, err
				}
				if cfg.MaxIterations < 1 {
					return nil, fmt.Errorf("max-iterations must be at least 1, got %d", cfg.MaxIterations)
				}
				return NewCanonicalize(cfg), nil
			},
		},
		{
			Name:    "simple-canonicalize",
			Summary: "Top-down canonicalization without region simplification",
			New: func(pass.Options) (pass.Pass, error) {
				return NewSimpleCanonicalize(), nil
			},
		},
		{
			Name:    "cse",
			Summary: "Eliminate common subexpressions",
			New: func(pass.Options) (pass.Pass, error) {
				return NewCSE(), nil
			},
		},
		{
			Name:    "verify",
			Summary: "Check that the IR is well formed",
			New: func(pass.Options) (pass.Pass, error) {
				return NewVerify(), nil
			},
		},
		{
			Name:    "strip-debuginfo",
			Summary: "Drop all source locations",
			New: func(pass.Options) (pass.Pass, error) {
				return NewStripDebugInfo(), nil
			},
		},
	}
}
