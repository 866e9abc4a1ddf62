package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const yamlConfig = `pipeline: "builtin.module(lower-firrtl-to-hw, cse)"
output: out/top.v
timing: true
timing_format: json
verify_each: true
annotation_files: [annos.json]
dialects:
  firrtl: "^1.0"
record_db: /var/tmp/history.db
`

const cueConfig = `pipeline: "builtin.module(lower-firrtl-to-hw, cse)"
output: "out/top.v"
timing: true
timing_format: "json"
verify_each: true
annotation_files: ["annos.json"]
dialects: firrtl: "^1.0"
record_db: "/var/tmp/history.db"
`

func TestLoad_YAMLAndCUEAgree(t *testing.T) {
	y, err := Load(writeFile(t, "hwpipe.yaml", yamlConfig))
	require.NoError(t, err)
	c, err := Load(writeFile(t, "hwpipe.cue", cueConfig))
	require.NoError(t, err)

	// Paths differ only by their temp directory.
	assert.Equal(t, "top.v", filepath.Base(y.Output))
	assert.Equal(t, "top.v", filepath.Base(c.Output))
	y.Output, c.Output = "", ""
	y.AnnotationFiles[0] = filepath.Base(y.AnnotationFiles[0])
	c.AnnotationFiles[0] = filepath.Base(c.AnnotationFiles[0])
	assert.Equal(t, y, c)

	assert.Equal(t, "/var/tmp/history.db", y.RecordDB)
	assert.Equal(t, map[string]string{"firrtl": "^1.0"}, y.Dialects)
	assert.True(t, y.Timing)
}

func TestLoad_ResolvesRelativePaths(t *testing.T) {
	path := writeFile(t, "hwpipe.yml", "output: top.v\nemit_ir: snap/top.ir\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	dir := filepath.Dir(path)
	assert.Equal(t, filepath.Join(dir, "top.v"), cfg.Output)
	assert.Equal(t, filepath.Join(dir, "snap", "top.ir"), cfg.EmitIR)
}

func TestLoad_EmptyYAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "empty.yaml", ""))
	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
		wantPos bool
	}{
		{"yaml unknown field", "c.yaml", "pipeline: cse\nverbose: true\n", "field verbose not found", false},
		{"yaml wrong type", "c.yaml", "timing: maybe\n", "cannot unmarshal", false},
		{"cue unknown field", "c.cue", "pipeline: \"cse\"\nverbose: true\n", "not allowed", true},
		{"cue wrong type", "c.cue", "timing: \"yes\"\n", "conflicting values", true},
		{"cue bad timing format", "c.cue", "timing_format: \"xml\"\n", "timing_format", false},
		{"yaml bad timing format", "c.yaml", "timing_format: xml\n", "invalid timing_format", false},
		{"pipeline and passes", "c.yaml", "pipeline: cse\npasses: [canonicalize]\n", "mutually exclusive", false},
		{"unsupported extension", "c.toml", "pipeline = 'cse'\n", "unsupported config format", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			var le *LoadError
			require.ErrorAs(t, err, &le)
			assert.Contains(t, err.Error(), tt.wantErr)
			if tt.wantPos {
				assert.Positive(t, le.Line)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPipelineText(t *testing.T) {
	assert.Equal(t, "", (&Config{}).PipelineText())
	assert.Equal(t, "cse", (&Config{Pipeline: "cse"}).PipelineText())
	assert.Equal(t, "canonicalize, cse", (&Config{Passes: []string{"canonicalize", "cse"}}).PipelineText())
}
