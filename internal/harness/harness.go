package harness

import (
	"context"
	"fmt"
	"sort"

	"github.com/amaret/converge/internal/diff"
	"github.com/amaret/converge/internal/plan"
	"github.com/amaret/converge/internal/record"
	"github.com/amaret/converge/internal/schema"
	"github.com/amaret/converge/internal/snapshot"
	"github.com/amaret/converge/internal/store"
)

// Result is the full pipeline output for one scenario run.
type Result struct {
	Scenario   *Scenario
	Diffs      []diff.RecordDiff
	Plan       *plan.Plan
	Validation plan.ValidationResult

	// Store is the in-memory store the scenario ran against, seeded with
	// the scenario's actual state, for follow-up apply assertions.
	Store *store.Memory
}

// Run executes the compare, build and validate pipeline for a scenario
// against a fresh in-memory store.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()
	provider := schema.NewStatic(scenario.Schema)

	mem := store.NewMemory()
	actual := make(map[string]map[int64]*record.Fields)
	for model, node := range scenario.Actual {
		node := node
		recs, err := snapshot.DecodeRecords(model, &node)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: actual: %w", scenario.Name, err)
		}
		actual[model] = recs
		for id, fields := range recs {
			mem.Seed(model, id, fields)
		}
	}

	desired := make(map[string]map[int64]*record.Fields)
	models := make([]string, 0, len(scenario.Desired))
	for model, node := range scenario.Desired {
		node := node
		recs, err := snapshot.DecodeRecords(model, &node)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: desired: %w", scenario.Name, err)
		}
		desired[model] = recs
		models = append(models, model)
	}
	sort.Strings(models)

	var diffs []diff.RecordDiff
	for _, model := range models {
		fields, err := provider.Fields(ctx, model)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: schema for %s: %w", scenario.Name, model, err)
		}
		diffs = append(diffs, diff.CompareRecords(model, desired[model], actual[model], &diff.Options{Fields: fields})...)
	}

	deletes := make([]plan.DeleteRequest, len(scenario.Deletes))
	for i, del := range scenario.Deletes {
		deletes[i] = plan.DeleteRequest{Model: del.Model, ID: del.ID}
	}

	p, err := plan.NewBuilder(provider).Build(ctx, diffs, plan.BuildOptions{Deletes: deletes})
	if err != nil {
		return nil, fmt.Errorf("scenario %s: build: %w", scenario.Name, err)
	}

	v := &plan.Validator{Store: mem, Schema: provider}
	vr := v.ValidateReferences(ctx, p)

	return &Result{
		Scenario:   scenario,
		Diffs:      diffs,
		Plan:       p,
		Validation: vr,
		Store:      mem,
	}, nil
}

// Check compares the result against the scenario's Expect clause and
// returns every mismatch.
func (r *Result) Check() []error {
	var errs []error
	e := r.Scenario.Expect
	if e.Ops != nil && r.Plan.Len() != *e.Ops {
		errs = append(errs, fmt.Errorf("expected %d operations, got %d", *e.Ops, r.Plan.Len()))
	}
	if e.Valid != nil && r.Validation.IsValid != *e.Valid {
		errs = append(errs, fmt.Errorf("expected valid=%v, got %v", *e.Valid, r.Validation.IsValid))
	}
	if e.Errors != nil && len(r.Validation.Errors) != *e.Errors {
		errs = append(errs, fmt.Errorf("expected %d validation errors, got %d", *e.Errors, len(r.Validation.Errors)))
	}
	if e.Warnings != nil && len(r.Validation.Warnings) != *e.Warnings {
		errs = append(errs, fmt.Errorf("expected %d validation warnings, got %d", *e.Warnings, len(r.Validation.Warnings)))
	}
	return errs
}

// Render produces the deterministic text form of a result: the plan
// listing followed by the validation report. Plan id and timestamp are
// excluded, so the rendering is golden-stable.
func (r *Result) Render() string {
	return plan.FormatPlan(r.Plan) + "\n" + plan.FormatValidationErrors(r.Validation)
}
