package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amaret/converge/internal/diff"
	"github.com/amaret/converge/internal/record"
)

// diffReport is the JSON shape of one record diff.
type diffReport struct {
	Model   string         `json:"model"`
	ID      int64          `json:"id"`
	IsNew   bool           `json:"is_new,omitempty"`
	Changes []changeReport `json:"changes"`
}

type changeReport struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	New   any    `json:"new"`
	Old   any    `json:"old,omitempty"`
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &pipelineFlags{}
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Show field-level differences between desired and actual state",
		Args:  cobra.NoArgs,

		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(rootOpts, *flags, cmd)
		},
	}
	registerPipelineFlags(cmd, flags)
	return cmd
}

func runDiff(opts *RootOptions, flags pipelineFlags, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	pipeline, err := LoadPipeline(flags, formatter)
	if err != nil {
		formatter.Error(err.Error(), nil)
		return err
	}
	defer pipeline.Close()

	diffs, err := pipeline.Diffs(cmd.Context())
	if err != nil {
		formatter.Error(err.Error(), nil)
		return err
	}

	return formatter.Success(formatDiffs(diffs), diffReports(diffs))
}

// diffReports converts diffs to their JSON shape with native values.
func diffReports(diffs []diff.RecordDiff) []diffReport {
	reports := make([]diffReport, len(diffs))
	for i, d := range diffs {
		changes := make([]changeReport, len(d.Changes))
		for j, c := range d.Changes {
			changes[j] = changeReport{
				Field: c.Path,
				Op:    string(c.Op),
				New:   record.ToNative(c.NewValue),
				Old:   record.ToNative(c.OldValue),
			}
		}
		reports[i] = diffReport{Model: d.Model, ID: d.ID, IsNew: d.IsNew, Changes: changes}
	}
	return reports
}

// formatDiffs renders diffs as indented text, one record per block.
func formatDiffs(diffs []diff.RecordDiff) string {
	if len(diffs) == 0 {
		return "No differences: actual state already matches desired state\n"
	}

	var b strings.Builder
	for _, d := range diffs {
		if d.IsNew {
			fmt.Fprintf(&b, "%s(%d) (new):\n", d.Model, d.ID)
		} else {
			fmt.Fprintf(&b, "%s(%d):\n", d.Model, d.ID)
		}
		for _, c := range d.Changes {
			if c.Op == diff.OpCreate {
				fmt.Fprintf(&b, "  + %s: %s\n", c.Path, record.Render(c.NewValue))
			} else {
				fmt.Fprintf(&b, "  ~ %s: %s -> %s\n", c.Path, record.Render(c.OldValue), record.Render(c.NewValue))
			}
		}
	}
	return b.String()
}
