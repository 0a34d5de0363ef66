package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amaret/converge/internal/diff"
	"github.com/amaret/converge/internal/record"
	"github.com/amaret/converge/internal/schema"
	"github.com/amaret/converge/internal/snapshot"
	"github.com/amaret/converge/internal/store"
)

// pipelineFlags are the input flags shared by every command.
type pipelineFlags struct {
	SchemaDir string
	Desired   string
	DBPath    string
}

// registerPipelineFlags wires the shared input flags onto a command.
func registerPipelineFlags(cmd *cobra.Command, flags *pipelineFlags) {
	cmd.Flags().StringVar(&flags.SchemaDir, "schema", "", "directory with CUE model definitions (required)")
	cmd.Flags().StringVar(&flags.Desired, "desired", "", "YAML desired-state file (required)")
	cmd.Flags().StringVar(&flags.DBPath, "db", "", "SQLite store path (omit for an empty actual state)")
	_ = cmd.MarkFlagRequired("schema")
	_ = cmd.MarkFlagRequired("desired")
}

// Pipeline bundles the loaded collaborators every command needs.
type Pipeline struct {
	Schema  *schema.Static
	Desired map[string]map[int64]*record.Fields

	// Store is nil when no --db was given; the actual state is then
	// empty and every desired record diffs as a create.
	Store *store.SQLite
}

// Close releases the pipeline's store, if any.
func (p *Pipeline) Close() error {
	if p.Store == nil {
		return nil
	}
	return p.Store.Close()
}

// LoadPipeline loads the schema directory, the desired-state file and
// optionally the local store. All failures map to ExitCommandError.
func LoadPipeline(flags pipelineFlags, formatter *OutputFormatter) (*Pipeline, error) {
	provider, errs := schema.Load(flags.SchemaDir)
	if provider == nil {
		return nil, WrapExitError(ExitCommandError, "loading schema", joinErrors(errs))
	}
	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, err := range errs {
			msgs[i] = err.Error()
		}
		return nil, NewExitError(ExitCommandError,
			fmt.Sprintf("schema has %d definition errors:\n  %s", len(errs), strings.Join(msgs, "\n  ")))
	}
	formatter.VerboseLog("loaded %d models from %s", len(provider.Models()), flags.SchemaDir)

	desired, err := snapshot.LoadDesired(flags.Desired)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "loading desired state", err)
	}
	formatter.VerboseLog("loaded desired state for %d models from %s", len(desired), flags.Desired)

	p := &Pipeline{Schema: provider, Desired: desired}
	if flags.DBPath != "" {
		db, err := store.OpenSQLite(flags.DBPath)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "opening store", err)
		}
		p.Store = db
	}
	return p, nil
}

// Diffs runs the comparator for every desired model against the actual
// state read back through the store.
func (p *Pipeline) Diffs(ctx context.Context) ([]diff.RecordDiff, error) {
	var diffs []diff.RecordDiff
	for _, model := range snapshot.Models(p.Desired) {
		fields, err := p.Schema.Fields(ctx, model)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("schema for %s", model), err)
		}

		records := p.Desired[model]
		var actual map[int64]*record.Fields
		if p.Store != nil {
			actual, err = snapshot.ReadActual(ctx, p.Store, p.Schema, model, snapshot.IDs(records))
			if err != nil {
				return nil, WrapExitError(ExitCommandError, fmt.Sprintf("reading actual state of %s", model), err)
			}
		}

		diffs = append(diffs, diff.CompareRecords(model, records, actual, &diff.Options{Fields: fields})...)
	}
	return diffs, nil
}

// joinErrors flattens a loader error list into one error.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	sort.Strings(msgs)
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
