package cli

import (
	"github.com/spf13/cobra"

	"github.com/amaret/converge/internal/plan"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &pipelineFlags{}
	var maxOps int

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Build a plan and statically validate its references",
		Long: "Validate builds the execution plan and checks every placeholder\n" +
			"reference against the creates that define it. With --db, plain-id\n" +
			"references are also verified against the store; missing records\n" +
			"warn without invalidating the plan.",
		Args: cobra.NoArgs,

		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, *flags, maxOps, cmd)
		},
	}
	registerPipelineFlags(cmd, flags)
	cmd.Flags().IntVar(&maxOps, "max-ops", 0, "fail when the plan exceeds this many operations (0 = no cap)")
	return cmd
}

func runValidate(opts *RootOptions, flags pipelineFlags, maxOps int, cmd *cobra.Command) error {
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

	p, err := plan.NewBuilder(pipeline.Schema).Build(cmd.Context(), diffs, plan.BuildOptions{MaxOperations: maxOps})
	if err != nil {
		err = WrapExitError(ExitFailure, "building plan", err)
		formatter.Error(err.Error(), nil)
		return err
	}

	validator := &plan.Validator{Schema: pipeline.Schema}
	if pipeline.Store != nil {
		validator.Store = pipeline.Store
	}
	result := validator.ValidateReferences(cmd.Context(), p)

	if err := formatter.Success(plan.FormatValidationErrors(result), result); err != nil {
		return err
	}
	if !result.IsValid {
		return NewExitError(ExitFailure, "plan validation failed")
	}
	return nil
}
