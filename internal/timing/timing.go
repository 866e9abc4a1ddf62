// Package timing measures where compilation time goes.
//
// A Manager owns a tree of timers. A Scope is a handle on one node of the
// tree: Nest returns the child with the given name, creating it on first
// use and reusing it afterwards, so repeated runs of the same pass at the
// same position accumulate into one node with an invocation count.
//
// The zero Scope is disabled: every method is a no-op. Code that may or
// may not be timed can therefore always call Nest/Start/Stop.
package timing

import (
	"time"
)

// Manager owns a timer tree.
//
// Thread-safety: a Manager is used by one goroutine at a time, like the
// pipeline it measures.
type Manager struct {
	clock Clock
	root  *node
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock injects the time source.
func WithClock(c Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// NewManager creates a Manager whose root timer is named "Total".
func NewManager(opts ...Option) *Manager {
	m := &Manager{clock: SystemClock{}}
	for _, opt := range opts {
		opt(m)
	}
	m.root = newNode("Total", nil)
	return m
}

// Root returns the scope of the root timer.
func (m *Manager) Root() Scope {
	return Scope{m: m, n: m.root}
}

// Reset discards all recorded timers.
func (m *Manager) Reset() {
	m.root = newNode("Total", nil)
}

type node struct {
	name     string
	parent   *node
	children []*node
	index    map[string]*node
	total    time.Duration
	count    int
	depth    int // nesting of Start calls, so re-entrant use measures once
	started  time.Time
}

func newNode(name string, parent *node) *node {
	return &node{name: name, parent: parent, index: make(map[string]*node)}
}

func (n *node) child(name string) *node {
	if c, ok := n.index[name]; ok {
		return c
	}
	c := newNode(name, n)
	n.index[name] = c
	n.children = append(n.children, c)
	return c
}

// elapsed returns the accumulated duration including a running interval.
func (n *node) elapsed(now time.Time) time.Duration {
	d := n.total
	if n.depth > 0 {
		if run := now.Sub(n.started); run > 0 {
			d += run
		}
	}
	return d
}

// Scope is a handle on a timer node. The zero value is disabled.
type Scope struct {
	m *Manager
	n *node
}

// IsEnabled reports whether the scope records anything.
func (s Scope) IsEnabled() bool {
	return s.n != nil
}

// Name returns the timer name, or "" for a disabled scope.
func (s Scope) Name() string {
	if s.n == nil {
		return ""
	}
	return s.n.name
}

// Nest returns the child timer called name, creating it on first use.
func (s Scope) Nest(name string) Scope {
	if s.n == nil {
		return Scope{}
	}
	return Scope{m: s.m, n: s.n.child(name)}
}

// Start begins an interval. Start/Stop pairs may nest; only the outermost
// pair is measured and counted.
func (s Scope) Start() {
	if s.n == nil {
		return
	}
	if s.n.depth == 0 {
		s.n.started = s.m.clock.Now()
		s.n.count++
	}
	s.n.depth++
}

// Stop ends the interval begun by the matching Start.
func (s Scope) Stop() {
	if s.n == nil || s.n.depth == 0 {
		return
	}
	s.n.depth--
	if s.n.depth == 0 {
		if d := s.m.clock.Now().Sub(s.n.started); d > 0 {
			s.n.total += d
		}
	}
}

// Time runs fn inside a Start/Stop pair of the child timer name.
func (s Scope) Time(name string, fn func() error) error {
	child := s.Nest(name)
	child.Start()
	defer child.Stop()
	return fn()
}

// Duration returns the time accumulated so far.
func (s Scope) Duration() time.Duration {
	if s.n == nil {
		return 0
	}
	return s.n.elapsed(s.m.clock.Now())
}

// Count returns how many intervals were started.
func (s Scope) Count() int {
	if s.n == nil {
		return 0
	}
	return s.n.count
}

// Node is a timer as seen by Walk.
type Node struct {
	Depth    int
	Path     []string
	Name     string
	Duration time.Duration
	Count    int
}

// Walk visits every timer below the root in depth-first pre-order, children
// in creation order. The root itself is reported with depth 0.
func (m *Manager) Walk(fn func(Node)) {
	now := m.clock.Now()
	var visit func(n *node, depth int, path []string)
	visit = func(n *node, depth int, path []string) {
		path = append(path[:len(path):len(path)], n.name)
		d := n.elapsed(now)
		if n == m.root {
			d = m.Total()
		}
		fn(Node{Depth: depth, Path: path, Name: n.name, Duration: d, Count: n.count})
		for _, c := range n.children {
			visit(c, depth+1, path)
		}
	}
	visit(m.root, 0, nil)
}

// Total returns the root duration. When the root was never started it is
// the sum of its children.
func (m *Manager) Total() time.Duration {
	now := m.clock.Now()
	if m.root.count > 0 {
		return m.root.elapsed(now)
	}
	var sum time.Duration
	for _, c := range m.root.children {
		sum += c.elapsed(now)
	}
	return sum
}

// IsEmpty reports whether no timer below the root was ever created.
func (m *Manager) IsEmpty() bool {
	return len(m.root.children) == 0
}
