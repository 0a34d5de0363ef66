package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaret/converge/internal/record"
)

func TestMemory_CreateAssignsSequentialIDs(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	id1, err := m.Create(ctx, "res.partner", map[string]any{"name": "A"})
	require.NoError(t, err)
	id2, err := m.Create(ctx, "res.partner", map[string]any{"name": "B"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), id1)
	assert.Equal(t, int64(2), id2)
}

func TestMemory_SeedAdvancesSequence(t *testing.T) {
	m := NewMemory()
	m.Seed("res.partner", 10, record.FieldsFromPairs("name", record.String("X")))

	id, err := m.Create(context.Background(), "res.partner", map[string]any{"name": "Y"})
	require.NoError(t, err)
	assert.Equal(t, int64(11), id)
}

func TestMemory_ReadFiltersFields(t *testing.T) {
	m := NewMemory()
	m.Seed("res.partner", 1, record.FieldsFromPairs(
		"name", record.String("Acme"),
		"active", record.Bool(true),
	))

	recs, err := m.Read(context.Background(), "res.partner", []int64{1, 99}, []string{"name"})
	require.NoError(t, err)
	require.Len(t, recs, 1, "missing ids are absent, not errors")

	id, _ := recs[0].Get("id")
	assert.Equal(t, record.Int(1), id)
	assert.True(t, recs[0].Has("name"))
	assert.False(t, recs[0].Has("active"))
}

func TestMemory_SearchByIDIn(t *testing.T) {
	m := NewMemory()
	for i := int64(1); i <= 3; i++ {
		m.Seed("res.partner", i, record.FieldsFromPairs("name", record.String("p")))
	}

	ids, err := m.Search(context.Background(), "res.partner", IDsIn([]int64{2, 3, 99}))
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, ids)
}

func TestMemory_SearchByFieldEquality(t *testing.T) {
	m := NewMemory()
	m.Seed("res.partner", 1, record.FieldsFromPairs("active", record.Bool(true)))
	m.Seed("res.partner", 2, record.FieldsFromPairs("active", record.Bool(false)))

	ids, err := m.Search(context.Background(), "res.partner", Domain{{Field: "active", Op: "=", Value: true}})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)
}

func TestMemory_WriteUpdatesAndUnlinkDeletes(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.Seed("res.partner", 1, record.FieldsFromPairs("name", record.String("old")))

	ok, err := m.Write(ctx, "res.partner", []int64{1}, map[string]any{"name": "new"})
	require.NoError(t, err)
	assert.True(t, ok)

	rec, found := m.Get("res.partner", 1)
	require.True(t, found)
	name, _ := rec.Get("name")
	assert.Equal(t, record.String("new"), name)

	ok, err = m.Unlink(ctx, "res.partner", []int64{1})
	require.NoError(t, err)
	assert.True(t, ok)
	_, found = m.Get("res.partner", 1)
	assert.False(t, found)
}

func TestMemory_WriteMissingRecordIsNotFound(t *testing.T) {
	m := NewMemory()
	_, err := m.Write(context.Background(), "res.partner", []int64{7}, map[string]any{"name": "x"})

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, int64(7), nf.ID)
}

func TestMemory_ScriptedFailures(t *testing.T) {
	m := NewMemory()
	boom := errors.New("access denied: create on res.partner")
	m.FailCreate["res.partner"] = boom

	_, err := m.Create(context.Background(), "res.partner", map[string]any{"name": "x"})
	assert.ErrorIs(t, err, boom)
}

func TestMemory_CallLog(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, _ = m.Create(ctx, "res.partner", map[string]any{"name": "x"})
	_, _ = m.Write(ctx, "res.partner", []int64{1}, map[string]any{"name": "y"})
	_, _ = m.Read(ctx, "res.partner", []int64{1}, nil)

	calls := m.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "create", calls[0].Method)
	assert.Equal(t, "write", calls[1].Method)
	assert.Equal(t, "read", calls[2].Method)

	mutations := m.MutationCalls()
	require.Len(t, mutations, 2)
}
