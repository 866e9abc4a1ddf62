package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden runs a scenario, fails the test on any failed check and
// compares the Verilog output against testdata/golden/<golden>.v.golden
// when the scenario names a golden file.
//
// To regenerate golden files, run:
//
//	go test ./... -update
func RunWithGolden(t *testing.T, s *Scenario) *Result {
	t.Helper()

	result, err := Run(s)
	if err != nil {
		t.Fatalf("scenario %s: %v", s.Name, err)
	}
	for _, e := range result.Errors {
		t.Errorf("scenario %s: %s", s.Name, e)
	}
	if result.Succeeded && s.Golden != "" {
		AssertGolden(t, s.Golden, result)
	}
	return result
}

// AssertGolden compares result's Verilog output against a golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".v.golden"),
	)
	g.Assert(t, name, []byte(result.Verilog))
}
