// Package emit writes compilation results: structural Verilog for lowered
// hw modules and generic IR snapshots.
//
// Output destinations follow one recovery rule. When the requested file
// cannot be opened the failure is logged and the output goes to the
// fallback writer (standard output unless overridden). Only a failure to
// write the final sink is returned.
package emit
