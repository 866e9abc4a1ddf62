package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines one compilation run and its expected outcome.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario checks.
	Description string `yaml:"description,omitempty"`

	// Input is the path of the IR file to compile, relative to the
	// scenario file. Exactly one of Input and Source is set.
	Input string `yaml:"input,omitempty"`

	// Source is inline IR text.
	Source string `yaml:"source,omitempty"`

	// Pipeline is a textual pass pipeline. Empty means the driver default.
	Pipeline string `yaml:"pipeline,omitempty"`

	// Annotations are inline JSON annotation buffers, applied in order
	// before AnnotationFiles.
	Annotations []Annotation `yaml:"annotations,omitempty"`

	// AnnotationFiles are JSON annotation files relative to the scenario.
	AnnotationFiles []string `yaml:"annotation_files,omitempty"`

	// RawAnnotations accepts annotations without resolving their targets.
	RawAnnotations bool `yaml:"raw_annotations,omitempty"`

	// Expect describes the outcome. A scenario without parse_error or
	// failing_pass must compile cleanly.
	Expect Expect `yaml:"expect,omitempty"`

	// Assertions are boolean expressions over the run result.
	Assertions []string `yaml:"assertions,omitempty"`

	// Golden names a golden file holding the expected Verilog output.
	Golden string `yaml:"golden,omitempty"`

	// dir is the directory of the scenario file.
	dir string
}

// Annotation is one inline annotation buffer.
type Annotation struct {
	Name string `yaml:"name"`
	Text string `yaml:"text"`
}

// Expect lists the checks applied to a run.
type Expect struct {
	ParseError     *PositionExpect    `yaml:"parse_error,omitempty"`
	FailingPass    string             `yaml:"failing_pass,omitempty"`
	OutputContains []string           `yaml:"output_contains,omitempty"`
	OutputExcludes []string           `yaml:"output_excludes,omitempty"`
	Diagnostics    []DiagnosticExpect `yaml:"diagnostics,omitempty"`
}

// PositionExpect matches a parse error by position and message substring.
type PositionExpect struct {
	Line    int    `yaml:"line"`
	Column  int    `yaml:"column,omitempty"`
	Message string `yaml:"message,omitempty"`
}

// DiagnosticExpect matches one reported diagnostic. Line 0 matches any
// line; Message is a substring.
type DiagnosticExpect struct {
	Severity string `yaml:"severity"`
	Line     int    `yaml:"line,omitempty"`
	Message  string `yaml:"message"`
}

var validSeverities = map[string]bool{"error": true, "warning": true, "note": true, "remark": true}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	s.dir = filepath.Dir(path)
	if s.Input != "" {
		if _, err := os.Stat(s.resolve(s.Input)); err != nil {
			return nil, fmt.Errorf("invalid scenario: input file not found: %s", s.Input)
		}
	}
	return s, nil
}

// ParseScenario parses scenario YAML. Relative paths in the result are
// resolved against the current directory.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func (s *Scenario) resolve(path string) string {
	if filepath.IsAbs(path) || s.dir == "" {
		return path
	}
	return filepath.Join(s.dir, path)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if (s.Input == "") == (s.Source == "") {
		return fmt.Errorf("exactly one of input and source is required")
	}
	for i, a := range s.Annotations {
		if a.Text == "" {
			return fmt.Errorf("annotations[%d]: text is required", i)
		}
	}

	e := s.Expect
	if e.ParseError != nil && e.FailingPass != "" {
		return fmt.Errorf("expect: parse_error and failing_pass are mutually exclusive")
	}
	if e.ParseError != nil && e.ParseError.Line < 1 {
		return fmt.Errorf("expect.parse_error: line must be positive")
	}
	failing := e.ParseError != nil || e.FailingPass != ""
	if failing && (len(e.OutputContains) > 0 || s.Golden != "") {
		return fmt.Errorf("expect: output checks require a successful run")
	}
	for i, d := range e.Diagnostics {
		if !validSeverities[d.Severity] {
			return fmt.Errorf("expect.diagnostics[%d]: unknown severity %q", i, d.Severity)
		}
		if d.Message == "" {
			return fmt.Errorf("expect.diagnostics[%d]: message is required", i)
		}
	}
	for i, a := range s.Assertions {
		if a == "" {
			return fmt.Errorf("assertions[%d]: expression is empty", i)
		}
	}
	return nil
}
