package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	input := writeInput(t, "counter.fir", counter)

	tests := []struct {
		name string
		args []string
	}{
		{"parsed", nil},
		{"lowered", []string{"--pipeline", "lower-firrtl-to-hw, canonicalize, cse"}},
		{"without locations", []string{"--ignore-locations"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"roundtrip", input}, tt.args...)
			stdout, stderr, err := execute(t, args...)
			require.NoError(t, err, stderr)
			assert.Contains(t, stdout, "round-trips")
		})
	}
}

func TestRoundTrip_JSON(t *testing.T) {
	input := writeInput(t, "counter.fir", counter)

	stdout, _, err := execute(t, "roundtrip", input, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string          `json:"status"`
		Data   RoundTripReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Equal)
	assert.Empty(t, resp.Data.Diff)
	assert.Equal(t, "builtin.module(verify)", resp.Data.Pipeline)
}

func TestRoundTrip_InputError(t *testing.T) {
	input := writeInput(t, "undriven.fir", undriven)

	_, _, err := execute(t, "roundtrip", input, "--pipeline", "lower-firrtl-to-hw")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestLineDiff(t *testing.T) {
	diff := lineDiff("a\nb\nc\n", "a\nx\nc\n")
	assert.Equal(t, "--- before\n+++ after\n a\n-b\n+x\n c\n", diff)
}

func TestLineDiff_MissingTrailingNewline(t *testing.T) {
	diff := lineDiff("a", "b")
	assert.Equal(t, "--- before\n+++ after\n-a\n+b\n", diff)
}
