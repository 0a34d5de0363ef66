package apply

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/amaret/converge/internal/plan"
	"github.com/amaret/converge/internal/record"
	"github.com/amaret/converge/internal/store"
)

// Executor applies plans against a record store, strictly sequentially.
type Executor struct {
	Store  store.Store
	Logger *slog.Logger

	// now is injectable for deterministic durations in tests.
	now func() time.Time
}

// New creates an Executor. A nil logger discards all log output.
func New(s store.Store, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Executor{Store: s, Logger: logger, now: time.Now}
}

// runState is the per-run resolution bookkeeping.
type runState struct {
	ids     map[record.TempID]int64
	nextDry int64
}

// Apply executes the plan's operations in order.
//
// Malformed input (nil plan, operation cap exceeded, failed pre-flight
// validation) returns an error before any operation runs. Individual
// operation failures never do: they are captured on the corresponding
// OperationResult, and depending on StopOnError the remaining
// operations are either omitted or keep running, with anything that
// referenced the failed create failing resolution in turn.
func (e *Executor) Apply(ctx context.Context, p *plan.Plan, opts Options) (*Result, error) {
	if p == nil {
		return nil, errors.New("apply: nil plan")
	}
	ops := p.Operations()
	if opts.MaxOperations > 0 && len(ops) > opts.MaxOperations {
		return nil, &plan.PlanTooLargeError{Operations: len(ops), Max: opts.MaxOperations}
	}
	if opts.validate() {
		v := &plan.Validator{Store: e.Store}
		if vr := v.ValidateReferences(ctx, p); !vr.IsValid {
			return nil, &ValidationFailedError{Result: vr}
		}
	}
	if len(opts.Context) > 0 {
		ctx = store.WithCallContext(ctx, opts.Context)
	}

	run := &Result{
		RunToken:  uuid.Must(uuid.NewV7()).String(),
		Total:     len(ops),
		StartTime: e.now(),
		IDMapping: make(map[string]int64),
	}
	logger := e.Logger.With("run", run.RunToken)
	logger.Info("applying plan", "operations", len(ops), "dry_run", opts.DryRun)

	st := &runState{ids: make(map[record.TempID]int64), nextDry: -1}

	i := 0
	stopped := false
	for i < len(ops) && !stopped {
		// Cancellation stops scheduling; the operation already dispatched
		// has finished by the time we check.
		if err := ctx.Err(); err != nil {
			run.Errors = append(run.Errors, err)
			break
		}

		n := 1
		if opts.EnableBatching && !opts.DryRun {
			n = mergeRun(ops, i)
		}
		group := ops[i : i+n]
		for j, op := range group {
			if opts.OnProgress != nil {
				opts.OnProgress(i+j+1, len(ops), op.ID)
			}
		}

		var results []OperationResult
		if n > 1 {
			results = e.execBatch(ctx, group, logger)
		} else {
			results = []OperationResult{e.execOne(ctx, group[0], opts, st, logger)}
		}

		for _, res := range results {
			run.Operations = append(run.Operations, res)
			if res.Success {
				run.Applied++
			} else {
				run.Failed++
				run.Errors = append(run.Errors, res.Err)
				if opts.stopOnError() {
					stopped = true
				}
			}
			if opts.OnOperationComplete != nil {
				opts.OnOperationComplete(res)
			}
		}
		i += n
	}

	for tok, id := range st.ids {
		run.IDMapping[string(tok)] = id
	}
	run.EndTime = e.now()
	run.Duration = run.EndTime.Sub(run.StartTime)
	run.Success = run.Failed == 0 && len(run.Errors) == 0
	logger.Info("plan applied",
		"applied", run.Applied, "failed", run.Failed, "duration", run.Duration)
	return run, nil
}

// execOne runs a single operation through resolution and dispatch.
func (e *Executor) execOne(ctx context.Context, op plan.Operation, opts Options, st *runState, logger *slog.Logger) OperationResult {
	start := e.now()
	res := OperationResult{Operation: op}

	values, err := resolveValues(op.Values, st.ids)
	if err == nil {
		switch op.Type {
		case plan.OpCreate:
			var id int64
			if opts.DryRun {
				id = st.nextDry
				st.nextDry--
			} else {
				id, err = e.Store.Create(ctx, op.Model, values)
			}
			if err == nil {
				st.ids[record.TempID(op.ID)] = id
				res.ActualID = id
				res.Result = id
				res.Success = true
			}

		case plan.OpUpdate:
			var id int64
			id, err = strconv.ParseInt(op.ID, 10, 64)
			if err == nil {
				ok := true
				if !opts.DryRun {
					ok, err = e.Store.Write(ctx, op.Model, []int64{id}, values)
				}
				if err == nil {
					res.Result = ok
					res.Success = true
				}
			}

		case plan.OpDelete:
			var id int64
			id, err = strconv.ParseInt(op.ID, 10, 64)
			if err == nil {
				ok := true
				if !opts.DryRun {
					ok, err = e.Store.Unlink(ctx, op.Model, []int64{id})
				}
				if err == nil {
					res.Result = ok
					res.Success = true
				}
			}
		}
	}

	res.Err = err
	res.Duration = e.now().Sub(start)

	if res.Success {
		logger.Debug("operation applied",
			"type", op.Type, "model", op.Model, "id", op.ID, "duration", res.Duration)
	} else {
		logger.Warn("operation failed",
			"type", op.Type, "model", op.Model, "id", op.ID, "error", res.Err)
	}
	return res
}

// resolveValues substitutes placeholder tokens with the real ids minted
// by creates earlier in this run, then converts to the store's native
// value shape. A token with no mapping fails the whole operation before
// any store call.
func resolveValues(fields *record.Fields, ids map[record.TempID]int64) (map[string]any, error) {
	if fields == nil || fields.Len() == 0 {
		return nil, nil
	}
	resolved := record.NewFields()
	for _, name := range fields.Keys() {
		v, _ := fields.Get(name)
		rv, err := resolveValue(v, name, ids)
		if err != nil {
			return nil, err
		}
		resolved.Set(name, rv)
	}
	return record.FieldsToNative(resolved), nil
}

func resolveValue(v record.Value, field string, ids map[record.TempID]int64) (record.Value, error) {
	switch val := v.(type) {
	case record.TempID:
		id, ok := ids[val]
		if !ok {
			return nil, &ReferenceError{Token: string(val), Field: field}
		}
		return record.Int(id), nil
	case record.List:
		out := make(record.List, len(val))
		for i, elem := range val {
			rv, err := resolveValue(elem, field, ids)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}
