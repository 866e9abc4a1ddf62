// Package dialects provides the operation vocabularies used by the
// pipeline: firrtl (input level), hw and comb (structural output level).
//
// Each dialect is versioned with a semantic version so that drivers can
// pin the vocabulary they were written against. Registry returns the
// catalogue of all of them; nothing is registered through init side
// effects.
package dialects
