// Package conversion lowers between dialect abstraction levels. The only
// conversion today is lower-firrtl-to-hw.
package conversion
