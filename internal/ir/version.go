package ir

// Version constants for the IR snapshot format and the tool.
const (
	// IRVersion is the generic textual IR format version.
	IRVersion = "1"

	// ToolVersion is the hwpipe version stamped into emitted output.
	ToolVersion = "0.1.0"
)
