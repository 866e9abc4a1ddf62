package transforms

import (
	"strconv"

	"github.com/roach88/hwpipe/internal/ir"
	"github.com/roach88/hwpipe/internal/pass"
)

// CanonicalizeConfig configures the canonicalize pass.
type CanonicalizeConfig struct {
	TopDown        bool
	RegionSimplify bool
	MaxIterations  int
}

// DefaultCanonicalizeConfig returns top-down traversal with region
// simplification and the default iteration limit.
func DefaultCanonicalizeConfig() CanonicalizeConfig {
	return CanonicalizeConfig{TopDown: true, RegionSimplify: true, MaxIterations: DefaultMaxIterations}
}

// SimpleCanonicalizeConfig is the configuration of simple-canonicalize:
// top-down with region simplification disabled.
func SimpleCanonicalizeConfig() CanonicalizeConfig {
	return CanonicalizeConfig{TopDown: true, RegionSimplify: false, MaxIterations: DefaultMaxIterations}
}

// Canonicalize applies every dialect's canonicalization patterns to a
// fixed point.
type Canonicalize struct {
	name   string
	config CanonicalizeConfig
}

// NewCanonicalize creates the canonicalize pass.
func NewCanonicalize(cfg CanonicalizeConfig) *Canonicalize {
	return &Canonicalize{name: "canonicalize", config: cfg}
}

// NewSimpleCanonicalize creates the simple-canonicalize pass.
func NewSimpleCanonicalize() *Canonicalize {
	return &Canonicalize{name: "simple-canonicalize", config: SimpleCanonicalizeConfig()}
}

// Config returns the pass configuration.
func (c *Canonicalize) Config() CanonicalizeConfig { return c.config }

func (c *Canonicalize) Name() string { return c.name }

// Options implements pass.Configurable.
func (c *Canonicalize) Options() []pass.KV {
	if c.name == "simple-canonicalize" {
		return nil
	}
	return []pass.KV{
		{Key: "max-iterations", Value: strconv.Itoa(c.config.MaxIterations)},
		{Key: "region-simplify", Value: strconv.FormatBool(c.config.RegionSimplify)},
		{Key: "top-down", Value: strconv.FormatBool(c.config.TopDown)},
	}
}

func (c *Canonicalize) Run(op *ir.Operation, st *pass.State) error {
	res := ApplyPatternsGreedily(st.Context(), op, GreedyConfig{
		TopDown:        c.config.TopDown,
		RegionSimplify: c.config.RegionSimplify,
		MaxIterations:  c.config.MaxIterations,
	})
	st.Logger().Debug("canonicalization finished",
		"pass", c.name,
		"op", op.Describe(),
		"iterations", res.Iterations,
		"rewrites", res.Rewrites,
		"erased", res.Erased,
		"converged", res.Converged,
	)
	if !res.Converged {
		st.Logger().Warn("canonicalization did not converge",
			"pass", c.name,
			"max_iterations", c.config.MaxIterations,
		)
	}
	return nil
}
