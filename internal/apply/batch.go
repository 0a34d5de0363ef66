package apply

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/amaret/converge/internal/plan"
	"github.com/amaret/converge/internal/record"
)

// mergeRun returns how many operations starting at ops[start] can be
// merged into one store write: adjacent updates on the same model with
// identical values and no placeholder references. Returns 1 when the
// operation must run alone. Merging never reorders.
func mergeRun(ops []plan.Operation, start int) int {
	first := ops[start]
	if !batchable(first) {
		return 1
	}
	n := 1
	for i := start + 1; i < len(ops); i++ {
		op := ops[i]
		if !batchable(op) || op.Model != first.Model || !sameValues(first.Values, op.Values) {
			break
		}
		n++
	}
	return n
}

// batchable reports whether an operation is eligible for merging at
// all: an update with a parseable id and reference-free values.
func batchable(op plan.Operation) bool {
	if op.Type != plan.OpUpdate {
		return false
	}
	if _, err := strconv.ParseInt(op.ID, 10, 64); err != nil {
		return false
	}
	return !hasTokens(op.Values)
}

func hasTokens(values *record.Fields) bool {
	for _, name := range values.Keys() {
		v, _ := values.Get(name)
		switch val := v.(type) {
		case record.TempID:
			return true
		case record.List:
			for _, elem := range val {
				if _, ok := elem.(record.TempID); ok {
					return true
				}
			}
		}
	}
	return false
}

func sameValues(a, b *record.Fields) bool {
	if a.Len() != b.Len() {
		return false
	}
	for _, name := range a.Keys() {
		av, _ := a.Get(name)
		bv, ok := b.Get(name)
		if !ok || !record.Equal(av, bv) {
			return false
		}
	}
	return true
}

// execBatch dispatches one merged write for a run of equal-value
// updates and fans the outcome back out to per-operation results.
func (e *Executor) execBatch(ctx context.Context, group []plan.Operation, logger *slog.Logger) []OperationResult {
	start := e.now()

	ids := make([]int64, len(group))
	for i, op := range group {
		ids[i], _ = strconv.ParseInt(op.ID, 10, 64)
	}

	values, err := resolveValues(group[0].Values, nil)
	var ok bool
	if err == nil {
		ok, err = e.Store.Write(ctx, group[0].Model, ids, values)
	}
	dur := e.now().Sub(start)

	if err == nil {
		logger.Debug("batched write applied",
			"model", group[0].Model, "records", len(ids), "duration", dur)
	} else {
		logger.Warn("batched write failed",
			"model", group[0].Model, "records", len(ids), "error", err)
	}

	results := make([]OperationResult, len(group))
	for i, op := range group {
		results[i] = OperationResult{
			Operation: op,
			Success:   err == nil,
			Err:       err,
			Duration:  dur,
		}
		if err == nil {
			results[i].Result = ok
		}
	}
	return results
}
