package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/amaret/converge/internal/plan"
	"github.com/amaret/converge/internal/record"
)

// planReport is the JSON shape of an execution plan.
type planReport struct {
	PlanID         string            `json:"plan_id"`
	AffectedModels []string          `json:"affected_models"`
	TotalChanges   int               `json:"total_changes"`
	Summary        plan.Summary      `json:"summary"`
	Operations     []operationReport `json:"operations"`
}

type operationReport struct {
	Type   string         `json:"type"`
	Model  string         `json:"model"`
	ID     string         `json:"id"`
	Values map[string]any `json:"values,omitempty"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &pipelineFlags{}
	var maxOps int

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Build the dependency-ordered execution plan",
		Args:  cobra.NoArgs,

		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(rootOpts, *flags, maxOps, cmd)
		},
	}
	registerPipelineFlags(cmd, flags)
	cmd.Flags().IntVar(&maxOps, "max-ops", 0, "fail when the plan exceeds this many operations (0 = no cap)")
	return cmd
}

func runPlan(opts *RootOptions, flags pipelineFlags, maxOps int, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	p, err := buildPlan(cmd.Context(), flags, maxOps, formatter)
	if err != nil {
		formatter.Error(err.Error(), nil)
		return err
	}

	return formatter.Success(plan.FormatPlan(p), planToReport(p))
}

// buildPlan runs the shared load, diff and build steps.
func buildPlan(ctx context.Context, flags pipelineFlags, maxOps int, formatter *OutputFormatter) (*plan.Plan, error) {
	pipeline, err := LoadPipeline(flags, formatter)
	if err != nil {
		return nil, err
	}
	defer pipeline.Close()

	diffs, err := pipeline.Diffs(ctx)
	if err != nil {
		return nil, err
	}

	p, err := plan.NewBuilder(pipeline.Schema).Build(ctx, diffs, plan.BuildOptions{MaxOperations: maxOps})
	if err != nil {
		return nil, WrapExitError(ExitFailure, "building plan", err)
	}
	formatter.VerboseLog("plan %s: %d operations", p.Metadata().PlanID, p.Len())
	return p, nil
}

// planToReport converts a plan to its JSON shape with native values.
func planToReport(p *plan.Plan) planReport {
	meta := p.Metadata()
	ops := p.Operations()
	reports := make([]operationReport, len(ops))
	for i, op := range ops {
		r := operationReport{Type: string(op.Type), Model: op.Model, ID: op.ID}
		if op.Values.Len() > 0 {
			r.Values = record.FieldsToNative(op.Values)
		}
		reports[i] = r
	}
	return planReport{
		PlanID:         meta.PlanID,
		AffectedModels: meta.AffectedModels,
		TotalChanges:   meta.TotalChanges,
		Summary:        p.Summary(),
		Operations:     reports,
	}
}
