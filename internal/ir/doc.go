// Package ir provides the in-memory intermediate representation for hwpipe.
//
// The IR is a tree: a Module wraps a single builtin.module Operation, every
// Operation owns zero or more Regions, every Region owns Blocks, and every
// Block owns an ordered list of Operations plus its arguments. Values are
// either operation results or block arguments and keep use lists so that
// rewrites can replace all uses of a value in one step.
//
// All IR objects belong to a Context. The Context holds the set of loaded
// dialects and the diagnostic handler; it must outlive every Module created
// in it. This package imports nothing internal: parser, pass, transforms and
// emit all build on top of it.
//
// Key constraints:
//   - The IR is single-threaded. A Context and its Modules may be used by
//     one goroutine at a time.
//   - Dialects are loaded before the first Module is created.
//   - Region nesting is a tree, never a graph.
package ir
