// Package transforms holds the dialect-independent passes: greedy
// canonicalization, common subexpression elimination, explicit
// verification and debug-info stripping.
package transforms
