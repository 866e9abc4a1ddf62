package timing

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Format selects the report layout.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, FormatJSON:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown timing report format %q (want text or json)", s)
	}
}

// Report writes an execution-time report of the timer tree.
func (m *Manager) Report(w io.Writer, format Format) error {
	switch format {
	case FormatJSON:
		return m.reportJSON(w)
	case FormatText, "":
		return m.reportText(w)
	default:
		return fmt.Errorf("unknown timing report format %q", format)
	}
}

const reportRule = "===" + "-------------------------------------------------------------------------" + "==="

func (m *Manager) reportText(w io.Writer) error {
	total := m.Total()
	var sb strings.Builder
	sb.WriteString(reportRule + "\n")
	title := "... Execution time report ..."
	pad := (len(reportRule) - len(title)) / 2
	sb.WriteString(strings.Repeat(" ", pad) + title + "\n")
	sb.WriteString(reportRule + "\n")
	fmt.Fprintf(&sb, "  Total Execution Time: %.4f seconds\n\n", total.Seconds())
	sb.WriteString("  ----Wall Time----  ----Name----\n")

	var rootLine string
	m.Walk(func(n Node) {
		line := fmt.Sprintf("  %s  %s%s", formatShare(n.Duration, total), strings.Repeat("  ", max(n.Depth-1, 0)), n.Name)
		if n.Count > 1 {
			line += fmt.Sprintf(" (%d runs)", n.Count)
		}
		if n.Depth == 0 {
			rootLine = line
			return
		}
		sb.WriteString(line + "\n")
	})
	sb.WriteString(rootLine + "\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

func formatShare(d, total time.Duration) string {
	pct := 100.0
	if total > 0 {
		pct = float64(d) / float64(total) * 100
	}
	return fmt.Sprintf("%8.4f (%5.1f%%)", d.Seconds(), pct)
}

// ReportEntry is the JSON form of a timer.
type ReportEntry struct {
	Name       string         `json:"name"`
	WallTimeNs int64          `json:"wall_time_ns"`
	Count      int            `json:"count"`
	Children   []*ReportEntry `json:"children,omitempty"`
}

// Tree returns the timer tree as report entries rooted at "Total".
func (m *Manager) Tree() *ReportEntry {
	var stack []*ReportEntry
	var root *ReportEntry
	m.Walk(func(n Node) {
		e := &ReportEntry{Name: n.Name, WallTimeNs: n.Duration.Nanoseconds(), Count: n.Count}
		stack = stack[:n.Depth]
		if n.Depth == 0 {
			root = e
		} else {
			parent := stack[n.Depth-1]
			parent.Children = append(parent.Children, e)
		}
		stack = append(stack, e)
	})
	return root
}

func (m *Manager) reportJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m.Tree())
}
