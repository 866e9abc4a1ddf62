package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDGenerator generates predictable run IDs.
//
// This enables deterministic store tests and golden comparisons: the n-th
// call returns "00000000-0000-7000-8000-<n as 12 hex digits>", which has the
// shape of a version 7 UUID.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialIDGenerator struct {
	mu   sync.Mutex
	next uint64
}

// NewSequentialIDGenerator creates a generator whose first ID ends in 1.
func NewSequentialIDGenerator() *SequentialIDGenerator {
	return &SequentialIDGenerator{}
}

// Generate returns the next ID.
func (g *SequentialIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("00000000-0000-7000-8000-%012x", g.next)
}
