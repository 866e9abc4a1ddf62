package parser

// Options configures parsing.
type Options struct {
	// IgnoreLocationInfo drops every source location: operations get the
	// unknown location and explicit loc(...) suffixes are parsed and
	// discarded. Parse errors still report token positions.
	IgnoreLocationInfo bool

	// RawAnnotationMode accepts any annotation object with a string
	// "class" and leaves its target unresolved. The default (legacy) mode
	// also requires a "target" naming an existing symbol.
	RawAnnotationMode bool

	// AnnotationSources are in-memory annotation buffers, applied in order.
	AnnotationSources []AnnotationSource

	// AnnotationFiles are read by ParseFile and applied after
	// AnnotationSources, in order.
	AnnotationFiles []string
}

// AnnotationSource is one JSON annotation buffer.
type AnnotationSource struct {
	Name string
	Text string
}

// NumAnnotationSources returns how many annotation buffers will be applied.
func (o Options) NumAnnotationSources() int {
	return len(o.AnnotationSources) + len(o.AnnotationFiles)
}
