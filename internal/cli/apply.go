package cli

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/amaret/converge/internal/apply"
	"github.com/amaret/converge/internal/plan"
	"github.com/amaret/converge/internal/store"
)

// applyReport is the JSON shape of an apply run.
type applyReport struct {
	RunToken  string           `json:"run_token"`
	Total     int              `json:"total"`
	Applied   int              `json:"applied"`
	Failed    int              `json:"failed"`
	Success   bool             `json:"success"`
	DryRun    bool             `json:"dry_run"`
	Duration  string           `json:"duration"`
	IDMapping map[string]int64 `json:"id_mapping,omitempty"`
	Failures  []failureReport  `json:"failures,omitempty"`
}

type failureReport struct {
	Type  string   `json:"type"`
	Model string   `json:"model"`
	ID    string   `json:"id"`
	Error string   `json:"error"`
	Fixes []string `json:"fixes,omitempty"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &pipelineFlags{}
	var (
		dryRun          bool
		continueOnError bool
		batch           bool
		maxOps          int
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Execute the plan against the record store",
		Args:  cobra.NoArgs,

		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(rootOpts, *flags, applyFlags{
				dryRun:          dryRun,
				continueOnError: continueOnError,
				batch:           batch,
				maxOps:          maxOps,
			}, cmd)
		},
	}
	registerPipelineFlags(cmd, flags)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "resolve and walk the plan without mutating the store")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "keep executing after an operation fails")
	cmd.Flags().BoolVar(&batch, "batch", false, "merge adjacent identical updates into one write")
	cmd.Flags().IntVar(&maxOps, "max-ops", 0, "fail when the plan exceeds this many operations (0 = no cap)")
	return cmd
}

type applyFlags struct {
	dryRun          bool
	continueOnError bool
	batch           bool
	maxOps          int
}

func runApply(opts *RootOptions, flags pipelineFlags, aflags applyFlags, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if flags.DBPath == "" && !aflags.dryRun {
		err := NewExitError(ExitCommandError, "apply requires --db (or --dry-run)")
		formatter.Error(err.Error(), nil)
		return err
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

	p, err := plan.NewBuilder(pipeline.Schema).Build(cmd.Context(), diffs, plan.BuildOptions{MaxOperations: aflags.maxOps})
	if err != nil {
		err = WrapExitError(ExitFailure, "building plan", err)
		formatter.Error(err.Error(), nil)
		return err
	}

	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	stopOnError := !aflags.continueOnError
	var backend store.Store
	if pipeline.Store != nil {
		backend = pipeline.Store
	}
	executor := apply.New(backend, logger)
	result, err := executor.Apply(cmd.Context(), p, apply.Options{
		DryRun:         aflags.dryRun,
		StopOnError:    &stopOnError,
		EnableBatching: aflags.batch,
	})
	if err != nil {
		err = WrapExitError(ExitFailure, "applying plan", err)
		formatter.Error(err.Error(), nil)
		return err
	}

	if outErr := formatter.Success(formatApplyResult(result, aflags.dryRun), applyToReport(result, aflags.dryRun)); outErr != nil {
		return outErr
	}
	if !result.Success {
		return NewExitError(ExitFailure, "apply failed")
	}
	return nil
}

// formatApplyResult renders the run outcome for operators.
func formatApplyResult(result *apply.Result, dryRun bool) string {
	var b strings.Builder
	verb := "Applied"
	if dryRun {
		verb = "Would apply"
	}
	fmt.Fprintf(&b, "%s %d of %d operations in %s\n", verb, result.Applied, result.Total, result.Duration.Round(time.Millisecond))

	for _, op := range result.Operations {
		if op.Success {
			continue
		}
		fmt.Fprintf(&b, "\nFAILED %s %s(%s): %v\n", op.Operation.Type, op.Operation.Model, op.Operation.ID, op.Err)
		for _, fix := range plan.SuggestErrorFixes(op.Err, &op.Operation) {
			fmt.Fprintf(&b, "  - %s\n", fix)
		}
	}
	return b.String()
}

// applyToReport converts a run result to its JSON shape.
func applyToReport(result *apply.Result, dryRun bool) applyReport {
	report := applyReport{
		RunToken:  result.RunToken,
		Total:     result.Total,
		Applied:   result.Applied,
		Failed:    result.Failed,
		Success:   result.Success,
		DryRun:    dryRun,
		Duration:  result.Duration.String(),
		IDMapping: result.IDMapping,
	}
	for _, op := range result.Operations {
		if op.Success {
			continue
		}
		report.Failures = append(report.Failures, failureReport{
			Type:  string(op.Operation.Type),
			Model: op.Operation.Model,
			ID:    op.Operation.ID,
			Error: op.Err.Error(),
			Fixes: plan.SuggestErrorFixes(op.Err, &op.Operation),
		})
	}
	return report
}
