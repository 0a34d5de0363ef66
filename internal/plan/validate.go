package plan

import (
	"context"
	"fmt"
	"sort"

	"github.com/amaret/converge/internal/record"
	"github.com/amaret/converge/internal/schema"
	"github.com/amaret/converge/internal/store"
)

// Severity grades a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationIssue is one finding from static plan analysis.
type ValidationIssue struct {
	Message        string   `json:"message"`
	OperationID    string   `json:"operation_id,omitempty"`
	FieldName      string   `json:"field_name,omitempty"`
	Severity       Severity `json:"severity"`
	SuggestedFixes []string `json:"suggested_fixes,omitempty"`
}

// RecordRef names an existing record a plan references by plain id.
type RecordRef struct {
	Model string `json:"model"`
	ID    int64  `json:"id"`
}

// ValidationResult is the outcome of static plan analysis. Warnings
// never affect IsValid.
type ValidationResult struct {
	IsValid         bool              `json:"is_valid"`
	Errors          []ValidationIssue `json:"errors,omitempty"`
	Warnings        []ValidationIssue `json:"warnings,omitempty"`
	RecordsToVerify []RecordRef       `json:"records_to_verify,omitempty"`
}

// Validator statically analyzes an execution plan for referential
// integrity before anything is sent anywhere.
//
// Store and Schema are both optional: without a schema, plain-id
// reference collection is skipped (placeholder analysis needs no
// metadata); without a store, collected references are reported but not
// verified.
type Validator struct {
	Store  store.Reader
	Schema schema.Provider
}

// ValidateReferences checks every placeholder reference against the
// creates that define them and collects plain-id references for
// optional existence verification.
//
// A placeholder must resolve to a create positioned strictly before the
// operation using it: absence anywhere in the plan is a missing-record
// error, presence only at or after the current position is a circular
// (or created-later) dependency error. Verification failures are
// non-blocking warnings; they never invalidate an otherwise-consistent
// plan.
func (v *Validator) ValidateReferences(ctx context.Context, p *Plan) ValidationResult {
	result := ValidationResult{}
	ops := p.Operations()

	// Index every placeholder token defined by a create, by position.
	definedAt := make(map[record.TempID]int)
	for i, op := range ops {
		if op.Type == OpCreate {
			definedAt[record.TempID(op.ID)] = i
		}
	}

	seen := make(map[RecordRef]bool)
	for i, op := range ops {
		fields := v.fieldsFor(ctx, op.Model)
		for _, name := range op.Values.Keys() {
			value, _ := op.Values.Get(name)
			v.checkValue(value, name, i, op, fields, definedAt, seen, &result)
		}
	}

	v.verifyRecords(ctx, &result)
	result.IsValid = len(result.Errors) == 0
	return result
}

// checkValue analyzes one field value, scalar or list.
func (v *Validator) checkValue(
	value record.Value,
	fieldName string,
	pos int,
	op Operation,
	fields map[string]schema.FieldInfo,
	definedAt map[record.TempID]int,
	seen map[RecordRef]bool,
	result *ValidationResult,
) {
	switch val := value.(type) {
	case record.TempID:
		v.checkToken(val, fieldName, pos, op, definedAt, result)
	case record.List:
		for _, elem := range val {
			v.checkValue(elem, fieldName, pos, op, fields, definedAt, seen, result)
		}
	default:
		info, ok := fields[fieldName]
		if !ok || !info.Relational() || info.RelationTarget == "" {
			return
		}
		id, isID := record.RelationID(value)
		if !isID {
			return
		}
		ref := RecordRef{Model: info.RelationTarget, ID: id}
		if !seen[ref] {
			seen[ref] = true
			result.RecordsToVerify = append(result.RecordsToVerify, ref)
		}
	}
}

// checkToken validates one placeholder reference against the token index.
func (v *Validator) checkToken(
	tok record.TempID,
	fieldName string,
	pos int,
	op Operation,
	definedAt map[record.TempID]int,
	result *ValidationResult,
) {
	defPos, defined := definedAt[tok]
	if !defined {
		result.Errors = append(result.Errors, ValidationIssue{
			Message:     fmt.Sprintf("field %q references non-existent temporary record %q", fieldName, tok),
			OperationID: op.ID,
			FieldName:   fieldName,
			Severity:    SeverityError,
			SuggestedFixes: []string{
				"create the referenced record first",
				"verify the model name in the reference",
			},
		})
		return
	}
	if defPos >= pos {
		result.Errors = append(result.Errors, ValidationIssue{
			Message:     fmt.Sprintf("field %q references temporary record %q that is created later in the plan (circular dependency)", fieldName, tok),
			OperationID: op.ID,
			FieldName:   fieldName,
			Severity:    SeverityError,
			SuggestedFixes: []string{
				"break the dependency cycle between the records",
				"create the referenced record in an earlier plan",
			},
		})
	}
}

// verifyRecords performs the optional existence check for plain-id
// references. Lookup failures produce non-blocking warnings.
func (v *Validator) verifyRecords(ctx context.Context, result *ValidationResult) {
	if v.Store == nil || len(result.RecordsToVerify) == 0 {
		return
	}

	byModel := make(map[string][]int64)
	for _, ref := range result.RecordsToVerify {
		byModel[ref.Model] = append(byModel[ref.Model], ref.ID)
	}
	models := make([]string, 0, len(byModel))
	for m := range byModel {
		models = append(models, m)
	}
	sort.Strings(models)

	for _, model := range models {
		ids := byModel[model]
		found, err := v.Store.Search(ctx, model, store.IDsIn(ids))
		if err != nil {
			result.Warnings = append(result.Warnings, ValidationIssue{
				Message:        fmt.Sprintf("failed to verify records in %s", model),
				Severity:       SeverityWarning,
				SuggestedFixes: []string{"check read permissions"},
			})
			continue
		}

		exists := make(map[int64]bool, len(found))
		for _, id := range found {
			exists[id] = true
		}
		for _, id := range ids {
			if !exists[id] {
				result.Warnings = append(result.Warnings, ValidationIssue{
					Message:        fmt.Sprintf("referenced record %s(%d) was not found", model, id),
					Severity:       SeverityWarning,
					SuggestedFixes: []string{"verify the referenced id exists in the target model"},
				})
			}
		}
	}
}

// fieldsFor fetches schema metadata, nil when unavailable.
func (v *Validator) fieldsFor(ctx context.Context, model string) map[string]schema.FieldInfo {
	if v.Schema == nil {
		return nil
	}
	fields, err := v.Schema.Fields(ctx, model)
	if err != nil {
		return nil
	}
	return fields
}
