package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/hwpipe/internal/driver"
)

// PassInfo describes one registered pass.
type PassInfo struct {
	Name    string       `json:"name"`
	Summary string       `json:"summary"`
	Options []OptionInfo `json:"options,omitempty"`
}

// OptionInfo describes one pass option.
type OptionInfo struct {
	Name    string `json:"name"`
	Default string `json:"default,omitempty"`
	Help    string `json:"help,omitempty"`
}

// NewPassesCommand creates the passes command.
func NewPassesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "passes",
		Short: "List the passes available in pipelines",
		Long: `List every pass that can be named in a textual pipeline, with its
options and their defaults.

Examples:
  hwpipe passes
  hwpipe passes --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPasses(rootOpts, cmd)
		},
	}
}

func runPasses(opts *RootOptions, cmd *cobra.Command) error {
	regs := driver.PassRegistry().All()
	infos := make([]PassInfo, 0, len(regs))
	for _, reg := range regs {
		info := PassInfo{Name: reg.Name, Summary: reg.Summary}
		for _, o := range reg.Options {
			info.Options = append(info.Options, OptionInfo{Name: o.Name, Default: o.Default, Help: o.Help})
		}
		infos = append(infos, info)
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(infos)
	}

	w := cmd.OutOrStdout()
	for _, info := range infos {
		fmt.Fprintf(w, "%s\n    %s\n", info.Name, info.Summary)
		for _, o := range info.Options {
			def := ""
			if o.Default != "" {
				def = fmt.Sprintf(" (default %s)", o.Default)
			}
			fmt.Fprintf(w, "    --%s%s: %s\n", o.Name, def, o.Help)
		}
	}
	return nil
}
