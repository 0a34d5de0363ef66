package plan

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/amaret/converge/internal/diff"
	"github.com/amaret/converge/internal/record"
	"github.com/amaret/converge/internal/schema"
)

// DeleteRequest names an existing record to remove. Deletions are
// ordered strictly after all creates and updates so no reference breaks
// mid-plan.
type DeleteRequest struct {
	Model string
	ID    int64
}

// BuildOptions configures one plan build.
type BuildOptions struct {
	// MaxOperations caps the plan size. Exceeding it is a fatal,
	// non-recoverable failure raised before anything is sent anywhere.
	// Zero means no cap.
	MaxOperations int

	// ReplaceFields names fields whose domain semantics require full
	// replacement: their values are forwarded exactly as diffed, with no
	// placeholder rewriting. The builder itself never special-cases
	// field names; callers own this list.
	ReplaceFields map[string]bool

	// Deletes lists records to remove after all creates and updates.
	Deletes []DeleteRequest
}

// PlanTooLargeError is returned when a build exceeds MaxOperations.
type PlanTooLargeError struct {
	Operations int
	Max        int
}

func (e *PlanTooLargeError) Error() string {
	return fmt.Sprintf("plan too large: %d operations exceeds the cap of %d", e.Operations, e.Max)
}

// Builder converts a diff set into an ordered execution plan.
type Builder struct {
	schema schema.Provider
	now    func() time.Time
}

// NewBuilder creates a Builder. The schema provider resolves relation
// targets for placeholder rewriting; nil disables rewriting.
func NewBuilder(provider schema.Provider) *Builder {
	return &Builder{schema: provider, now: time.Now}
}

// identity keys a record within one plan build.
type identity struct {
	model string
	id    int64
}

// Build converts diffs into an execution plan.
//
// Each new record becomes one create operation under a freshly minted
// placeholder token; each changed record becomes one update carrying
// only its changed fields. Relational values pointing at another diff's
// newly-created identity are rewritten to that target's token; ids
// outside the plan pass through as plain ids.
//
// Operations are ordered by a dependency-respecting stable topological
// sort (ties broken by original diff order). Cycles are not rejected
// here: a best-effort order is emitted with Summary.HasErrors set, and
// rejection is delegated to the validator.
func (b *Builder) Build(ctx context.Context, diffs []diff.RecordDiff, opts BuildOptions) (*Plan, error) {
	total := len(diffs) + len(opts.Deletes)
	if opts.MaxOperations > 0 && total > opts.MaxOperations {
		return nil, &PlanTooLargeError{Operations: total, Max: opts.MaxOperations}
	}

	// Mint placeholder tokens for every new record, in diff order. The
	// counter is never reused within a build, even across models.
	tokens := make(map[identity]record.TempID)
	next := 1
	for _, d := range diffs {
		if d.IsNew {
			tokens[identity{d.Model, d.ID}] = record.MakeTempID(d.Model, next)
			next++
		}
	}

	fieldCache := make(map[string]map[string]schema.FieldInfo)
	fieldsFor := func(model string) map[string]schema.FieldInfo {
		if b.schema == nil {
			return nil
		}
		if cached, ok := fieldCache[model]; ok {
			return cached
		}
		fields, err := b.schema.Fields(ctx, model)
		if err != nil {
			fields = nil
		}
		fieldCache[model] = fields
		return fields
	}

	// Build one operation per diff, rewriting cross-references to
	// newly-created identities into their placeholder tokens.
	ops := make([]Operation, 0, total)
	totalChanges := 0
	for _, d := range diffs {
		totalChanges += len(d.Changes)
		fields := fieldsFor(d.Model)

		values := record.NewFields()
		for _, change := range d.Changes {
			v := change.NewValue
			if opts.ReplaceFields == nil || !opts.ReplaceFields[change.Path] {
				v = rewriteValue(v, fields[change.Path], tokens)
			}
			values.Set(change.Path, v)
		}

		op := Operation{Model: d.Model, Values: values}
		if d.IsNew {
			op.Type = OpCreate
			op.ID = string(tokens[identity{d.Model, d.ID}])
		} else {
			op.Type = OpUpdate
			op.ID = strconv.FormatInt(d.ID, 10)
		}
		ops = append(ops, op)
	}

	ordered, acyclic := orderByDependencies(ops)
	hasErrors := !acyclic

	// A placeholder no create in this plan defines can only come from
	// caller-supplied values; flag it so the summary is honest, and let
	// the validator produce the actual error.
	defined := make(map[record.TempID]bool, len(tokens))
	for _, tok := range tokens {
		defined[tok] = true
	}
	for _, op := range ordered {
		for _, tok := range collectTokens(op.Values) {
			if !defined[tok] {
				hasErrors = true
			}
		}
	}

	for _, del := range opts.Deletes {
		totalChanges++
		ordered = append(ordered, Operation{
			Type:  OpDelete,
			Model: del.Model,
			ID:    strconv.FormatInt(del.ID, 10),
		})
	}

	return &Plan{
		ops: ordered,
		metadata: Metadata{
			PlanID:         uuid.Must(uuid.NewV7()).String(),
			Timestamp:      b.now(),
			AffectedModels: affectedModels(ordered),
			TotalChanges:   totalChanges,
		},
		summary: summarize(ordered, hasErrors),
	}, nil
}

// rewriteValue maps relational ids that match a newly-created identity
// to that identity's placeholder token. Scalar and list shapes are both
// handled; everything else passes through untouched.
func rewriteValue(v record.Value, info schema.FieldInfo, tokens map[identity]record.TempID) record.Value {
	if !info.Relational() || info.RelationTarget == "" || len(tokens) == 0 {
		return v
	}

	if id, ok := record.RelationID(v); ok {
		if tok, isNew := tokens[identity{info.RelationTarget, id}]; isNew {
			return tok
		}
		return v
	}

	if list, ok := v.(record.List); ok {
		out := make(record.List, len(list))
		for i, elem := range list {
			out[i] = elem
			if id, isID := record.RelationID(elem); isID {
				if tok, isNew := tokens[identity{info.RelationTarget, id}]; isNew {
					out[i] = tok
				}
			}
		}
		return out
	}

	return v
}

// collectTokens gathers every placeholder token in an operation's
// values, scalar or list.
func collectTokens(values *record.Fields) []record.TempID {
	var toks []record.TempID
	for _, name := range values.Keys() {
		v, _ := values.Get(name)
		switch val := v.(type) {
		case record.TempID:
			toks = append(toks, val)
		case record.List:
			for _, elem := range val {
				if tok, ok := elem.(record.TempID); ok {
					toks = append(toks, tok)
				}
			}
		}
	}
	return toks
}

// orderByDependencies performs a stable Kahn topological sort: an
// operation referencing a placeholder token is scheduled after the
// create defining it, with ties broken by original position. When a
// cycle keeps some operations unorderable they are appended in original
// order and acyclic is false.
func orderByDependencies(ops []Operation) (ordered []Operation, acyclic bool) {
	n := len(ops)
	definedBy := make(map[record.TempID]int, n)
	for i, op := range ops {
		if op.Type == OpCreate {
			definedBy[record.TempID(op.ID)] = i
		}
	}

	// users[j] lists operations that reference the token op j defines.
	users := make([][]int, n)
	indegree := make([]int, n)
	for i, op := range ops {
		for _, tok := range collectTokens(op.Values) {
			j, ok := definedBy[tok]
			if !ok || j == i {
				continue
			}
			users[j] = append(users[j], i)
			indegree[i]++
		}
	}

	ordered = make([]Operation, 0, n)
	emitted := make([]bool, n)
	for len(ordered) < n {
		// Lowest original index among ready nodes keeps the sort stable.
		pick := -1
		for i := 0; i < n; i++ {
			if !emitted[i] && indegree[i] == 0 {
				pick = i
				break
			}
		}
		if pick == -1 {
			break // cycle - the rest cannot be ordered
		}
		emitted[pick] = true
		ordered = append(ordered, ops[pick])
		for _, u := range users[pick] {
			indegree[u]--
		}
	}

	acyclic = len(ordered) == n
	if !acyclic {
		for i := 0; i < n; i++ {
			if !emitted[i] {
				ordered = append(ordered, ops[i])
			}
		}
	}
	return ordered, acyclic
}

// affectedModels returns the sorted unique model names in the plan.
func affectedModels(ops []Operation) []string {
	seen := make(map[string]bool)
	var models []string
	for _, op := range ops {
		if !seen[op.Model] {
			seen[op.Model] = true
			models = append(models, op.Model)
		}
	}
	sort.Strings(models)
	return models
}
