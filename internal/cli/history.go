package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/hwpipe/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Limit    int
	RunID    string
}

// RunJSON is the JSON form of a recorded run.
type RunJSON struct {
	ID          string            `json:"id"`
	Seq         int64             `json:"seq"`
	Input       string            `json:"input"`
	Pipeline    string            `json:"pipeline"`
	Fingerprint string            `json:"fingerprint,omitempty"`
	Status      string            `json:"status"`
	Failure     string            `json:"failure,omitempty"`
	TotalNs     int64             `json:"total_ns"`
	Options     map[string]string `json:"options,omitempty"`
	Timings     []TimingJSON      `json:"timings,omitempty"`
}

// TimingJSON is the JSON form of one stored timer.
type TimingJSON struct {
	Depth      int    `json:"depth"`
	Name       string `json:"name"`
	DurationNs int64  `json:"duration_ns"`
	Count      int    `json:"count"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded compilation runs",
		Long: `List the runs recorded by 'compile --db', newest first, or show one run
with its per-pass timings.

Exit codes:
  0 - Success
  2 - Command error (database not found, unknown run, etc.)

Examples:
  hwpipe history --db runs.db
  hwpipe history --db runs.db --limit 5
  hwpipe history --db runs.db --run 0190f5d2-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "number of runs to list (0 for all)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show one run with its timings")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	// Opening creates missing databases; a history query never should.
	if _, err := os.Stat(opts.Database); err != nil {
		return formatter.fail(ExitCommandError, ErrCodeNotFound, "database not found", err, nil)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err, nil)
	}
	defer st.Close()
	ctx := cmd.Context()

	if opts.RunID != "" {
		run, err := st.ReadRun(ctx, opts.RunID)
		if errors.Is(err, store.ErrRunNotFound) {
			return formatter.fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("run %s not found", opts.RunID), nil, nil)
		}
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeDatabase, "failed to read run", err, nil)
		}
		if opts.Format == "json" {
			return formatter.Success(runJSON(run))
		}
		writeRunDetail(cmd, run)
		return nil
	}

	runs, err := st.ListRuns(ctx, opts.Limit)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeDatabase, "failed to list runs", err, nil)
	}
	if opts.Format == "json" {
		out := make([]RunJSON, len(runs))
		for i, r := range runs {
			out[i] = runJSON(r)
		}
		return formatter.Success(out)
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return nil
	}
	w := cmd.OutOrStdout()
	for _, r := range runs {
		mark := "✓"
		if r.Status != store.StatusOK {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s #%d %s  %s  %s  %v\n", mark, r.Seq, r.ID, r.Input, r.Status, r.Total.Round(time.Microsecond))
	}
	return nil
}

func writeRunDetail(cmd *cobra.Command, r store.Run) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run #%d %s\n", r.Seq, r.ID)
	fmt.Fprintf(w, "  Input:       %s\n", r.Input)
	fmt.Fprintf(w, "  Pipeline:    %s\n", r.Pipeline)
	fmt.Fprintf(w, "  Status:      %s\n", r.Status)
	if r.Failure != "" {
		fmt.Fprintf(w, "  Failure:     %s\n", r.Failure)
	}
	if r.Fingerprint != "" {
		fmt.Fprintf(w, "  Fingerprint: %s\n", r.Fingerprint)
	}
	fmt.Fprintf(w, "  Total:       %v\n", r.Total)
	if len(r.Timings) > 0 {
		fmt.Fprintln(w, "  Timings:")
		for _, t := range r.Timings {
			fmt.Fprintf(w, "    %*s%s  %v (%d)\n", 2*t.Depth, "", t.Name, t.Duration, t.Count)
		}
	}
}

func runJSON(r store.Run) RunJSON {
	out := RunJSON{
		ID:          r.ID,
		Seq:         r.Seq,
		Input:       r.Input,
		Pipeline:    r.Pipeline,
		Fingerprint: r.Fingerprint,
		Status:      string(r.Status),
		Failure:     r.Failure,
		TotalNs:     r.Total.Nanoseconds(),
		Options:     r.Options,
	}
	for _, t := range r.Timings {
		out.Timings = append(out.Timings, TimingJSON{Depth: t.Depth, Name: t.Name, DurationNs: t.Duration.Nanoseconds(), Count: t.Count})
	}
	return out
}
