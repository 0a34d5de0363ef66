package apply

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaret/converge/internal/diff"
	"github.com/amaret/converge/internal/plan"
	"github.com/amaret/converge/internal/record"
	"github.com/amaret/converge/internal/schema"
	"github.com/amaret/converge/internal/store"
	"github.com/amaret/converge/internal/testutil"
)

func testSchema() schema.Provider {
	return schema.NewStatic(map[string]map[string]schema.FieldInfo{
		"res.partner": {
			"name":   {Type: schema.TypeChar, Required: true},
			"parent": {Type: schema.TypeMany2One, RelationTarget: "res.partner"},
			"tags":   {Type: schema.TypeMany2Many, RelationTarget: "res.partner.tag"},
		},
		"res.partner.tag": {
			"name": {Type: schema.TypeChar, Required: true},
		},
	})
}

func newDiff(model string, id int64, isNew bool, changes ...diff.FieldChange) diff.RecordDiff {
	return diff.RecordDiff{Model: model, ID: id, Changes: changes, IsNew: isNew}
}

func change(path string, v record.Value) diff.FieldChange {
	return diff.FieldChange{Path: path, Op: diff.OpCreate, NewValue: v, OldValue: record.Null{}}
}

func buildPlan(t *testing.T, diffs []diff.RecordDiff, opts plan.BuildOptions) *plan.Plan {
	t.Helper()
	p, err := plan.NewBuilder(testSchema()).Build(context.Background(), diffs, opts)
	require.NoError(t, err)
	return p
}

func boolPtr(b bool) *bool { return &b }

func TestApply_CreateUpdateDelete(t *testing.T) {
	mem := store.NewMemory()
	mem.Seed("res.partner", 5, record.FieldsFromPairs("name", record.String("Old")))
	mem.Seed("res.partner", 9, record.FieldsFromPairs("name", record.String("Doomed")))

	p := buildPlan(t, []diff.RecordDiff{
		newDiff("res.partner", -1, true, change("name", record.String("New Co"))),
		newDiff("res.partner", 5, false, change("name", record.String("Renamed"))),
	}, plan.BuildOptions{
		Deletes: []plan.DeleteRequest{{Model: "res.partner", ID: 9}},
	})

	res, err := New(mem, nil).Apply(context.Background(), p, Options{})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 3, res.Applied)
	assert.Equal(t, 0, res.Failed)
	require.Len(t, res.Operations, 3)
	assert.NotEmpty(t, res.RunToken)

	created, ok := mem.Get("res.partner", res.Operations[0].ActualID)
	require.True(t, ok)
	name, _ := created.Get("name")
	assert.Equal(t, record.String("New Co"), name)

	updated, _ := mem.Get("res.partner", 5)
	name, _ = updated.Get("name")
	assert.Equal(t, record.String("Renamed"), name)

	_, ok = mem.Get("res.partner", 9)
	assert.False(t, ok)
}

func TestApply_ResolvesPlaceholderReferences(t *testing.T) {
	mem := store.NewMemory()
	mem.Seed("res.partner", 7, record.FieldsFromPairs("name", record.String("Existing")))

	p := buildPlan(t, []diff.RecordDiff{
		newDiff("res.partner", -1, true, change("name", record.String("Parent Co"))),
		newDiff("res.partner", -2, true,
			change("name", record.String("Child Co")),
			change("parent", record.Int(-1)),
		),
		newDiff("res.partner", 7, false, change("parent", record.Int(-1))),
	}, plan.BuildOptions{})

	res, err := New(mem, nil).Apply(context.Background(), p, Options{})
	require.NoError(t, err)
	require.True(t, res.Success)

	parentID := res.Operations[0].ActualID
	assert.Equal(t, map[string]int64{
		"res.partner:temp_1": parentID,
		"res.partner:temp_2": res.Operations[1].ActualID,
	}, res.IDMapping)

	child, _ := mem.Get("res.partner", res.Operations[1].ActualID)
	got, _ := child.Get("parent")
	assert.Equal(t, record.Int(parentID), got, "token replaced by the real id")

	existing, _ := mem.Get("res.partner", 7)
	got, _ = existing.Get("parent")
	assert.Equal(t, record.Int(parentID), got)
}

func TestApply_DryRunNeverMutates(t *testing.T) {
	mem := store.NewMemory()
	mem.Seed("res.partner", 5, record.FieldsFromPairs("name", record.String("Old")))

	p := buildPlan(t, []diff.RecordDiff{
		newDiff("res.partner", -1, true, change("name", record.String("A"))),
		newDiff("res.partner", -2, true,
			change("name", record.String("B")),
			change("parent", record.Int(-1)),
		),
		newDiff("res.partner", 5, false, change("name", record.String("Renamed"))),
	}, plan.BuildOptions{
		Deletes: []plan.DeleteRequest{{Model: "res.partner", ID: 5}},
	})

	res, err := New(mem, nil).Apply(context.Background(), p, Options{DryRun: true})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 4, res.Applied)
	assert.Empty(t, mem.MutationCalls(), "dry run reaches the store for reads only")

	// Synthetic ids keep later dry-run operations resolvable.
	assert.Equal(t, int64(-1), res.IDMapping["res.partner:temp_1"])
	assert.Equal(t, int64(-2), res.IDMapping["res.partner:temp_2"])

	unchanged, _ := mem.Get("res.partner", 5)
	name, _ := unchanged.Get("name")
	assert.Equal(t, record.String("Old"), name)
}

func TestApply_StopOnErrorOmitsRemaining(t *testing.T) {
	mem := store.NewMemory()
	mem.FailCreate["res.partner"] = errors.New("access denied")
	mem.Seed("res.partner.tag", 3, record.FieldsFromPairs("name", record.String("vip")))

	p := buildPlan(t, []diff.RecordDiff{
		newDiff("res.partner", -1, true, change("name", record.String("A"))),
		newDiff("res.partner.tag", 3, false, change("name", record.String("gold"))),
	}, plan.BuildOptions{})

	res, err := New(mem, nil).Apply(context.Background(), p, Options{})
	require.NoError(t, err, "per-operation failures never fail Apply itself")

	assert.False(t, res.Success)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 0, res.Applied)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Operations, 1, "remaining operations omitted")
	assert.ErrorContains(t, res.Operations[0].Err, "access denied")

	tag, _ := mem.Get("res.partner.tag", 3)
	name, _ := tag.Get("name")
	assert.Equal(t, record.String("vip"), name)
}

func TestApply_ContinueOnErrorFailsDependents(t *testing.T) {
	mem := store.NewMemory()
	mem.FailCreate["res.partner"] = errors.New("access denied")
	mem.Seed("res.partner.tag", 3, record.FieldsFromPairs("name", record.String("vip")))

	p := buildPlan(t, []diff.RecordDiff{
		newDiff("res.partner", -1, true, change("name", record.String("Parent"))),
		newDiff("res.partner", -2, true,
			change("name", record.String("Child")),
			change("parent", record.Int(-1)),
		),
		newDiff("res.partner.tag", 3, false, change("name", record.String("gold"))),
	}, plan.BuildOptions{})

	res, err := New(mem, nil).Apply(context.Background(), p, Options{
		StopOnError: boolPtr(false),
	})
	require.NoError(t, err)

	require.Len(t, res.Operations, 3)
	assert.False(t, res.Operations[0].Success)
	assert.False(t, res.Operations[1].Success, "dependent fails on reference resolution")

	var refErr *ReferenceError
	require.ErrorAs(t, res.Operations[1].Err, &refErr)
	assert.Equal(t, "res.partner:temp_1", refErr.Token)
	assert.Equal(t, "parent", refErr.Field)

	assert.True(t, res.Operations[2].Success, "independent operation still runs")
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 2, res.Failed)
	assert.Len(t, res.Errors, 2)
}

func TestApply_BatchingMergesAdjacentEqualUpdates(t *testing.T) {
	mem := store.NewMemory()
	mem.Seed("res.partner", 5, record.FieldsFromPairs("name", record.String("a")))
	mem.Seed("res.partner", 6, record.FieldsFromPairs("name", record.String("b")))
	mem.Seed("res.partner", 7, record.FieldsFromPairs("name", record.String("c")))

	p := buildPlan(t, []diff.RecordDiff{
		newDiff("res.partner", 5, false, change("name", record.String("X"))),
		newDiff("res.partner", 6, false, change("name", record.String("X"))),
		newDiff("res.partner", 7, false, change("name", record.String("different"))),
	}, plan.BuildOptions{})

	res, err := New(mem, nil).Apply(context.Background(), p, Options{EnableBatching: true})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, res.Operations, 3, "one result per operation even when merged")

	var writes []store.Call
	for _, c := range mem.MutationCalls() {
		if c.Method == "write" {
			writes = append(writes, c)
		}
	}
	require.Len(t, writes, 2)
	assert.Equal(t, []int64{5, 6}, writes[0].IDs)
	assert.Equal(t, []int64{7}, writes[1].IDs)
}

func TestApply_BatchingSkipsReferenceCarryingUpdates(t *testing.T) {
	mem := store.NewMemory()
	mem.Seed("res.partner", 5, record.FieldsFromPairs("name", record.String("a")))
	mem.Seed("res.partner", 6, record.FieldsFromPairs("name", record.String("b")))

	p := buildPlan(t, []diff.RecordDiff{
		newDiff("res.partner", -1, true, change("name", record.String("New"))),
		newDiff("res.partner", 5, false, change("parent", record.Int(-1))),
		newDiff("res.partner", 6, false, change("parent", record.Int(-1))),
	}, plan.BuildOptions{})

	res, err := New(mem, nil).Apply(context.Background(), p, Options{EnableBatching: true})
	require.NoError(t, err)
	require.True(t, res.Success)

	var writes []store.Call
	for _, c := range mem.MutationCalls() {
		if c.Method == "write" {
			writes = append(writes, c)
		}
	}
	assert.Len(t, writes, 2, "token-carrying updates run one at a time")
}

func TestApply_ValidationRejectsBrokenPlan(t *testing.T) {
	mem := store.NewMemory()
	p := buildPlan(t, []diff.RecordDiff{
		newDiff("res.partner", 5, false,
			change("parent", record.TempID("res.partner:temp_42")),
		),
	}, plan.BuildOptions{})

	_, err := New(mem, nil).Apply(context.Background(), p, Options{})
	var vErr *ValidationFailedError
	require.ErrorAs(t, err, &vErr)
	assert.False(t, vErr.Result.IsValid)
	assert.Empty(t, mem.MutationCalls(), "nothing executed")
}

func TestApply_ValidationCanBeDisabled(t *testing.T) {
	mem := store.NewMemory()
	mem.Seed("res.partner", 5, record.FieldsFromPairs("name", record.String("a")))

	p := buildPlan(t, []diff.RecordDiff{
		newDiff("res.partner", 5, false,
			change("parent", record.TempID("res.partner:temp_42")),
		),
	}, plan.BuildOptions{})

	res, err := New(mem, nil).Apply(context.Background(), p, Options{
		Validate: boolPtr(false),
	})
	require.NoError(t, err)
	assert.False(t, res.Success)

	var refErr *ReferenceError
	require.ErrorAs(t, res.Operations[0].Err, &refErr)
}

func TestApply_MaxOperationsCap(t *testing.T) {
	mem := store.NewMemory()
	p := buildPlan(t, []diff.RecordDiff{
		newDiff("res.partner", -1, true, change("name", record.String("A"))),
		newDiff("res.partner", -2, true, change("name", record.String("B"))),
	}, plan.BuildOptions{})

	_, err := New(mem, nil).Apply(context.Background(), p, Options{MaxOperations: 1})
	var tooLarge *plan.PlanTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Empty(t, mem.Calls())
}

func TestApply_NilPlan(t *testing.T) {
	_, err := New(store.NewMemory(), nil).Apply(context.Background(), nil, Options{})
	require.Error(t, err)
}

func TestApply_CancelledContextStopsScheduling(t *testing.T) {
	mem := store.NewMemory()
	p := buildPlan(t, []diff.RecordDiff{
		newDiff("res.partner", -1, true, change("name", record.String("A"))),
	}, plan.BuildOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New(mem, nil).Apply(ctx, p, Options{Validate: boolPtr(false)})
	require.NoError(t, err)
	assert.Empty(t, res.Operations)
	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0], context.Canceled)
}

func TestApply_CallbacksInvokedInOrder(t *testing.T) {
	mem := store.NewMemory()
	mem.Seed("res.partner", 5, record.FieldsFromPairs("name", record.String("a")))

	p := buildPlan(t, []diff.RecordDiff{
		newDiff("res.partner", -1, true, change("name", record.String("New"))),
		newDiff("res.partner", 5, false, change("name", record.String("Renamed"))),
	}, plan.BuildOptions{})

	var progress []string
	var completed []string
	res, err := New(mem, nil).Apply(context.Background(), p, Options{
		OnProgress: func(current, total int, id string) {
			progress = append(progress, id)
			assert.Equal(t, 2, total)
			assert.Equal(t, len(progress), current)
		},
		OnOperationComplete: func(r OperationResult) {
			completed = append(completed, r.Operation.ID)
		},
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, []string{"res.partner:temp_1", "5"}, progress)
	assert.Equal(t, progress, completed)
}

func TestApply_TimingFieldsPopulated(t *testing.T) {
	mem := store.NewMemory()
	e := New(mem, nil)
	e.now = testutil.NewClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), time.Second).Now

	p := buildPlan(t, []diff.RecordDiff{
		newDiff("res.partner", -1, true, change("name", record.String("A"))),
	}, plan.BuildOptions{})

	res, err := e.Apply(context.Background(), p, Options{})
	require.NoError(t, err)
	assert.False(t, res.StartTime.IsZero())
	assert.True(t, res.EndTime.After(res.StartTime))
	assert.Equal(t, res.EndTime.Sub(res.StartTime), res.Duration)
	assert.Positive(t, res.Operations[0].Duration)
}
