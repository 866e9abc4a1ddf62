// Package harness runs compilation scenarios described in YAML files.
//
// A scenario names an input (a file or inline source), an optional pass
// pipeline and annotation buffers, and what the run must produce:
//
//	name: inverter
//	input: inverter.fir
//	expect:
//	  output_contains: ["module Inv("]
//	assertions:
//	  - 'warnings == 0 && "Inv" in modules'
//	golden: inverter
//
// Expectations cover parse errors (with position), a failing pass, expected
// diagnostics and substrings of the Verilog output. Assertions are boolean
// expr-lang expressions evaluated over the run result; see Result.Env for
// the variables they can use. Golden comparison of the Verilog output uses
// goldie files under testdata/golden.
//
// Every scenario runs in a fresh context with a fake clock, so results and
// timing trees are reproducible.
package harness
