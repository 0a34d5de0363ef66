package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaret/converge/internal/record"
	"github.com/amaret/converge/internal/schema"
)

func partnerFields() map[string]schema.FieldInfo {
	return map[string]schema.FieldInfo{
		"name":    {Type: schema.TypeChar, Required: true},
		"active":  {Type: schema.TypeBoolean},
		"parent":  {Type: schema.TypeMany2One, RelationTarget: "res.partner"},
		"tags":    {Type: schema.TypeMany2Many, RelationTarget: "res.partner.tag"},
		"display": {Type: schema.TypeChar, ReadOnly: true},
		"score":   {Type: schema.TypeFloat, Computed: true},
		"meta":    {Type: schema.TypeJSON},
	}
}

func TestCompareRecord_IdenticalStatesProduceNoChanges(t *testing.T) {
	s := record.FieldsFromPairs(
		"name", record.String("Acme"),
		"active", record.Bool(true),
		"tags", record.List{record.Int(1), record.Int(2)},
	)
	changes := CompareRecord("res.partner", 1, s, s, &Options{Fields: partnerFields()})
	assert.Empty(t, changes)
}

func TestCompareRecord_Many2OneLabelNeverCausesChange(t *testing.T) {
	desired := record.FieldsFromPairs("parent", record.Int(5))
	actual := record.FieldsFromPairs("parent", record.Ref{ID: 5, Label: "Name"})
	changes := CompareRecord("res.partner", 1, desired, actual, &Options{Fields: partnerFields()})
	assert.Empty(t, changes)
}

func TestCompareRecord_Many2OneIDDivergence(t *testing.T) {
	desired := record.FieldsFromPairs("parent", record.Int(5))
	actual := record.FieldsFromPairs("parent", record.Ref{ID: 3, Label: "Other"})
	changes := CompareRecord("res.partner", 1, desired, actual, &Options{Fields: partnerFields()})

	require.Len(t, changes, 1)
	assert.Equal(t, "parent", changes[0].Path)
	assert.Equal(t, OpUpdate, changes[0].Op)
	assert.Equal(t, record.Int(5), changes[0].NewValue)
	assert.Equal(t, record.Ref{ID: 3, Label: "Other"}, changes[0].OldValue)
}

func TestCompareRecord_Many2ManyOrderInsensitive(t *testing.T) {
	desired := record.FieldsFromPairs("tags", record.List{record.Int(1), record.Int(2), record.Int(3)})
	actual := record.FieldsFromPairs("tags", record.List{record.Int(3), record.Int(1), record.Int(2)})
	changes := CompareRecord("res.partner", 1, desired, actual, &Options{Fields: partnerFields()})
	assert.Empty(t, changes, "same membership in different order is not a change")
}

func TestCompareRecord_Many2ManyMembershipSensitive(t *testing.T) {
	desired := record.FieldsFromPairs("tags", record.List{record.Int(1), record.Int(2)})
	actual := record.FieldsFromPairs("tags", record.List{record.Int(1), record.Int(4)})
	changes := CompareRecord("res.partner", 1, desired, actual, &Options{Fields: partnerFields()})
	require.Len(t, changes, 1)
	assert.Equal(t, "tags", changes[0].Path)
}

func TestCompareRecord_MissingInActualIsNull(t *testing.T) {
	desired := record.FieldsFromPairs("name", record.String("Acme"))
	actual := record.NewFields()
	changes := CompareRecord("res.partner", 1, desired, actual, &Options{Fields: partnerFields()})

	require.Len(t, changes, 1)
	assert.Equal(t, OpCreate, changes[0].Op)
	assert.Equal(t, record.Null{}, changes[0].OldValue)
}

func TestCompareRecord_ExplicitNullClearsValue(t *testing.T) {
	desired := record.FieldsFromPairs("name", record.Null{})
	actual := record.FieldsFromPairs("name", record.String("Acme"))
	changes := CompareRecord("res.partner", 1, desired, actual, &Options{Fields: partnerFields()})

	require.Len(t, changes, 1)
	assert.Equal(t, OpUpdate, changes[0].Op)
	assert.Equal(t, record.Null{}, changes[0].NewValue)
	assert.Equal(t, record.String("Acme"), changes[0].OldValue)
}

func TestCompareRecord_ReadOnlyAndComputedAlwaysSkipped(t *testing.T) {
	desired := record.FieldsFromPairs(
		"display", record.String("new display"),
		"score", record.Float(9.9),
	)
	actual := record.FieldsFromPairs(
		"display", record.String("old display"),
		"score", record.Float(1.1),
	)
	changes := CompareRecord("res.partner", 1, desired, actual, &Options{Fields: partnerFields()})
	assert.Empty(t, changes)
}

func TestCompareRecord_FieldsOnlyInActualIgnored(t *testing.T) {
	desired := record.FieldsFromPairs("name", record.String("Acme"))
	actual := record.FieldsFromPairs(
		"name", record.String("Acme"),
		"active", record.Bool(false),
	)
	changes := CompareRecord("res.partner", 1, desired, actual, &Options{Fields: partnerFields()})
	assert.Empty(t, changes, "diff is one-directional")
}

func TestCompareRecord_CustomComparatorReplacesEquality(t *testing.T) {
	// Comparator that treats everything as equal silences a real change.
	alwaysEqual := func(_, _ record.Value) bool { return true }
	desired := record.FieldsFromPairs("name", record.String("new"))
	actual := record.FieldsFromPairs("name", record.String("old"))

	changes := CompareRecord("res.partner", 1, desired, actual, &Options{
		Fields:      partnerFields(),
		Comparators: map[string]CompareFunc{"name": alwaysEqual},
	})
	assert.Empty(t, changes)

	// And one that treats everything as different overrides relational
	// normalization, so even an id-equal many2one registers.
	neverEqual := func(_, _ record.Value) bool { return false }
	desired = record.FieldsFromPairs("parent", record.Int(5))
	actual = record.FieldsFromPairs("parent", record.Ref{ID: 5, Label: "Name"})

	changes = CompareRecord("res.partner", 1, desired, actual, &Options{
		Fields:      partnerFields(),
		Comparators: map[string]CompareFunc{"parent": neverEqual},
	})
	require.Len(t, changes, 1)
}

func TestCompareRecord_ObjectStructuralEquality(t *testing.T) {
	desired := record.FieldsFromPairs("meta", record.Object{"a": record.Int(1), "b": record.Object{"c": record.Bool(true)}})
	same := record.FieldsFromPairs("meta", record.Object{"b": record.Object{"c": record.Bool(true)}, "a": record.Int(1)})
	other := record.FieldsFromPairs("meta", record.Object{"a": record.Int(2), "b": record.Object{"c": record.Bool(true)}})

	assert.Empty(t, CompareRecord("res.partner", 1, desired, same, &Options{Fields: partnerFields()}))
	assert.Len(t, CompareRecord("res.partner", 1, desired, other, &Options{Fields: partnerFields()}), 1)
}

func TestCompareRecord_PreservesDesiredKeyOrder(t *testing.T) {
	desired := record.FieldsFromPairs(
		"tags", record.List{record.Int(9)},
		"name", record.String("changed"),
		"active", record.Bool(false),
	)
	actual := record.FieldsFromPairs(
		"active", record.Bool(true),
		"name", record.String("orig"),
		"tags", record.List{record.Int(1)},
	)
	changes := CompareRecord("res.partner", 1, desired, actual, &Options{Fields: partnerFields()})

	require.Len(t, changes, 3)
	assert.Equal(t, "tags", changes[0].Path)
	assert.Equal(t, "name", changes[1].Path)
	assert.Equal(t, "active", changes[2].Path)
}

func TestCompareRecord_NoMetadataFallsBackToScalarEquality(t *testing.T) {
	desired := record.FieldsFromPairs("custom", record.String("x"))
	actual := record.FieldsFromPairs("custom", record.String("y"))
	changes := CompareRecord("res.partner", 1, desired, actual, nil)
	require.Len(t, changes, 1)
}

func TestCompareRecords_NewRecord(t *testing.T) {
	desired := map[int64]*record.Fields{
		-1: record.FieldsFromPairs(
			"name", record.String("New Co"),
			"active", record.Bool(true),
			"parent", record.Null{},
		),
	}
	diffs := CompareRecords("res.partner", desired, map[int64]*record.Fields{}, &Options{Fields: partnerFields()})

	require.Len(t, diffs, 1)
	d := diffs[0]
	assert.True(t, d.IsNew)
	assert.Equal(t, int64(-1), d.ID)
	require.Len(t, d.Changes, 3, "every desired field appears as a create change")
	for _, c := range d.Changes {
		assert.Equal(t, OpCreate, c.Op)
	}
}

func TestCompareRecords_UnchangedRecordsOmitted(t *testing.T) {
	same := record.FieldsFromPairs("name", record.String("Acme"))
	desired := map[int64]*record.Fields{
		1: same,
		2: record.FieldsFromPairs("name", record.String("changed")),
	}
	actual := map[int64]*record.Fields{
		1: same.Clone(),
		2: record.FieldsFromPairs("name", record.String("orig")),
	}
	diffs := CompareRecords("res.partner", desired, actual, &Options{Fields: partnerFields()})

	require.Len(t, diffs, 1)
	assert.Equal(t, int64(2), diffs[0].ID)
	assert.False(t, diffs[0].IsNew)
}

func TestCompareRecords_VisitsIDsInAscendingOrder(t *testing.T) {
	desired := map[int64]*record.Fields{
		5:  record.FieldsFromPairs("name", record.String("e")),
		-2: record.FieldsFromPairs("name", record.String("n")),
		1:  record.FieldsFromPairs("name", record.String("a")),
	}
	diffs := CompareRecords("res.partner", desired, map[int64]*record.Fields{}, &Options{Fields: partnerFields()})
	require.Len(t, diffs, 3)
	assert.Equal(t, int64(-2), diffs[0].ID)
	assert.Equal(t, int64(1), diffs[1].ID)
	assert.Equal(t, int64(5), diffs[2].ID)
}
