// Package config loads driver configuration files.
//
// Two formats are accepted, chosen by file extension: YAML (.yaml, .yml)
// decoded with strict field checking, and CUE (.cue) unified with the
// embedded #Config schema. Both produce the same Config.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Config is a driver configuration. Path-valued fields are resolved
// relative to the directory of the file they were loaded from.
type Config struct {
	Pipeline        string            `yaml:"pipeline" json:"pipeline,omitempty"`
	Passes          []string          `yaml:"passes" json:"passes,omitempty"`
	Output          string            `yaml:"output" json:"output,omitempty"`
	EmitIR          string            `yaml:"emit_ir" json:"emit_ir,omitempty"`
	Timing          bool              `yaml:"timing" json:"timing,omitempty"`
	TimingFormat    string            `yaml:"timing_format" json:"timing_format,omitempty"`
	VerifyEach      bool              `yaml:"verify_each" json:"verify_each,omitempty"`
	RawAnnotations  bool              `yaml:"raw_annotations" json:"raw_annotations,omitempty"`
	IgnoreLocations bool              `yaml:"ignore_locations" json:"ignore_locations,omitempty"`
	AnnotationFiles []string          `yaml:"annotation_files" json:"annotation_files,omitempty"`
	Dialects        map[string]string `yaml:"dialects" json:"dialects,omitempty"`
	RecordDB        string            `yaml:"record_db" json:"record_db,omitempty"`
}

// LoadError reports an invalid configuration file, with a position when
// one is known.
type LoadError struct {
	Path    string
	Line    int
	Column  int
	Message string
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Load reads a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg *Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		cfg, err = parseYAML(path, data)
	case ".cue":
		cfg, err = parseCUE(path, data)
	default:
		return nil, &LoadError{Path: path, Message: fmt.Sprintf("unsupported config format %q (want .yaml, .yml or .cue)", ext)}
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, &LoadError{Path: path, Message: err.Error()}
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

func parseYAML(path string, data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &cfg, nil
		}
		return nil, &LoadError{Path: path, Message: err.Error()}
	}
	return &cfg, nil
}

func parseCUE(path string, data []byte) (*Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("config schema: %w", err)
	}
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, cueLoadError(path, err)
	}
	unified := schema.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, cueLoadError(path, err)
	}
	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return nil, cueLoadError(path, err)
	}
	return &cfg, nil
}

// cueLoadError keeps the first CUE error and its position in the config
// file.
func cueLoadError(path string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Path: path, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{Path: path, Message: first.Error()}
	for _, pos := range cueerrors.Positions(first) {
		if pos.Filename() == path {
			le.Line, le.Column = pos.Line(), pos.Column()
			break
		}
	}
	return le
}

// Validate checks field combinations.
func (c *Config) Validate() error {
	if c.Pipeline != "" && len(c.Passes) > 0 {
		return fmt.Errorf("pipeline and passes are mutually exclusive")
	}
	switch c.TimingFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid timing_format %q: must be text or json", c.TimingFormat)
	}
	return nil
}

// PipelineText returns the textual pipeline: Pipeline, or Passes joined
// into a bare list. Empty means the driver default.
func (c *Config) PipelineText() string {
	if c.Pipeline != "" {
		return c.Pipeline
	}
	return strings.Join(c.Passes, ", ")
}

func (c *Config) resolvePaths(dir string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) || dir == "" {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.Output = resolve(c.Output)
	c.EmitIR = resolve(c.EmitIR)
	c.RecordDB = resolve(c.RecordDB)
	for i, f := range c.AnnotationFiles {
		c.AnnotationFiles[i] = resolve(f)
	}
}
