package timing_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hwpipe/internal/testutil"
	"github.com/roach88/hwpipe/internal/timing"
)

func TestScope_ReuseAccumulates(t *testing.T) {
	m := timing.NewManager(timing.WithClock(testutil.NewFakeClock(time.Millisecond)))
	root := m.Root()

	root.Start()
	for i := 0; i < 2; i++ {
		a := root.Nest("canonicalize")
		a.Start()
		a.Stop()
	}
	root.Stop()

	var nodes []timing.Node
	m.Walk(func(n timing.Node) { nodes = append(nodes, n) })
	require.Len(t, nodes, 2)
	assert.Equal(t, "Total", nodes[0].Name)
	assert.Equal(t, 5*time.Millisecond, nodes[0].Duration)
	assert.Equal(t, "canonicalize", nodes[1].Name)
	assert.Equal(t, 1, nodes[1].Depth)
	assert.Equal(t, 2, nodes[1].Count)
	assert.Equal(t, 2*time.Millisecond, nodes[1].Duration)
	assert.Equal(t, []string{"Total", "canonicalize"}, nodes[1].Path)
}

func TestScope_ParentCoversChildren(t *testing.T) {
	m := timing.NewManager(timing.WithClock(testutil.NewFakeClock(time.Microsecond)))
	root := m.Root()
	root.Start()
	pipe := root.Nest("'firrtl.circuit' Pipeline")
	pipe.Start()
	for _, name := range []string{"cse", "canonicalize", "cse"} {
		require.NoError(t, pipe.Time(name, func() error { return nil }))
	}
	pipe.Stop()
	root.Stop()

	var sum time.Duration
	m.Walk(func(n timing.Node) {
		assert.GreaterOrEqual(t, n.Duration, time.Duration(0))
		if n.Depth == 2 {
			sum += n.Duration
		}
	})
	assert.GreaterOrEqual(t, pipe.Duration(), sum)
	assert.GreaterOrEqual(t, root.Duration(), pipe.Duration())
	assert.Equal(t, 2, pipe.Nest("cse").Count())
}

func TestScope_SameNameDifferentPositions(t *testing.T) {
	m := timing.NewManager(timing.WithClock(testutil.NewFakeClock(time.Millisecond)))
	root := m.Root()
	root.Nest("cse").Start()
	root.Nest("cse").Stop()
	nested := root.Nest("'hw.module' Pipeline")
	nested.Nest("cse").Start()
	nested.Nest("cse").Stop()

	var names []string
	m.Walk(func(n timing.Node) { names = append(names, strings.Join(n.Path, "/")) })
	assert.Equal(t, []string{"Total", "Total/cse", "Total/'hw.module' Pipeline", "Total/'hw.module' Pipeline/cse"}, names)
}

func TestScope_NestedStartMeasuresOnce(t *testing.T) {
	m := timing.NewManager(timing.WithClock(testutil.NewFakeClock(time.Millisecond)))
	s := m.Root().Nest("x")
	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
	s.Stop() // unmatched stop is ignored
	assert.Equal(t, 1, s.Count())
	assert.Equal(t, time.Millisecond, s.Duration())
}

func TestScope_ZeroValueIsNoop(t *testing.T) {
	var s timing.Scope
	assert.False(t, s.IsEnabled())
	child := s.Nest("anything")
	child.Start()
	child.Stop()
	assert.False(t, child.IsEnabled())
	assert.Equal(t, time.Duration(0), child.Duration())
	assert.Equal(t, "", child.Name())
}

func TestManager_TotalWithoutRootStart(t *testing.T) {
	m := timing.NewManager(timing.WithClock(testutil.NewFakeClock(time.Millisecond)))
	assert.True(t, m.IsEmpty())
	c := m.Root().Nest("verify")
	c.Start()
	c.Stop()
	assert.False(t, m.IsEmpty())
	assert.Equal(t, time.Millisecond, m.Total())

	m.Reset()
	assert.True(t, m.IsEmpty())
}

func TestReport_Text(t *testing.T) {
	m := timing.NewManager(timing.WithClock(testutil.NewFakeClock(time.Millisecond)))
	root := m.Root()
	root.Start()
	_ = root.Time("parse", func() error { return nil })
	_ = root.Time("cse", func() error { return nil })
	_ = root.Time("cse", func() error { return nil })
	root.Stop()

	var buf bytes.Buffer
	require.NoError(t, m.Report(&buf, timing.FormatText))
	out := buf.String()
	assert.Contains(t, out, "Execution time report")
	assert.Contains(t, out, "Total Execution Time: 0.0070 seconds")
	assert.Contains(t, out, "parse\n")
	assert.Contains(t, out, "cse (2 runs)")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.True(t, strings.HasSuffix(lines[len(lines)-1], "Total"), "root line comes last")
}

func TestReport_JSON(t *testing.T) {
	m := timing.NewManager(timing.WithClock(testutil.NewFakeClock(time.Millisecond)))
	root := m.Root()
	root.Start()
	pipe := root.Nest("'firrtl.circuit' Pipeline")
	pipe.Start()
	_ = pipe.Time("canonicalize", func() error { return nil })
	pipe.Stop()
	root.Stop()

	var buf bytes.Buffer
	require.NoError(t, m.Report(&buf, timing.FormatJSON))

	var tree timing.ReportEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &tree))
	assert.Equal(t, "Total", tree.Name)
	require.Len(t, tree.Children, 1)
	require.Len(t, tree.Children[0].Children, 1)
	assert.Equal(t, "canonicalize", tree.Children[0].Children[0].Name)
	assert.Equal(t, int64(time.Millisecond), tree.Children[0].Children[0].WallTimeNs)
}

func TestParseFormat(t *testing.T) {
	f, err := timing.ParseFormat("json")
	require.NoError(t, err)
	assert.Equal(t, timing.FormatJSON, f)
	_, err = timing.ParseFormat("xml")
	assert.Error(t, err)
}
