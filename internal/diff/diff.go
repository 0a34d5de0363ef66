package diff

import (
	"github.com/amaret/converge/internal/record"
	"github.com/amaret/converge/internal/schema"
)

// ChangeOp is the kind of field-level change.
type ChangeOp string

const (
	// OpCreate marks a field that had no prior value.
	OpCreate ChangeOp = "create"
	// OpUpdate marks a field whose prior value diverged.
	OpUpdate ChangeOp = "update"
)

// FieldChange is one detected field-level difference. Emitted only when
// the normalized desired and actual values differ.
type FieldChange struct {
	Path     string
	Op       ChangeOp
	NewValue record.Value
	OldValue record.Value
}

// RecordDiff is the aggregate of all field changes for one record.
type RecordDiff struct {
	Model   string
	ID      int64
	Changes []FieldChange
	IsNew   bool
}

// CompareFunc is a per-field custom comparator. It reports whether the
// two values are equal, fully replacing default equality (including
// relational normalization) for its field.
type CompareFunc func(desired, actual record.Value) bool

// Options configures a comparison run.
type Options struct {
	// Fields carries the schema metadata for the model under comparison.
	// Fields flagged read-only or computed are skipped outright; x2many
	// fields compare as identifier sets. Fields without metadata compare
	// with default scalar equality.
	Fields map[string]schema.FieldInfo

	// Comparators maps field name to a custom equality predicate.
	Comparators map[string]CompareFunc
}

func (o *Options) fieldInfo(name string) (schema.FieldInfo, bool) {
	if o == nil || o.Fields == nil {
		return schema.FieldInfo{}, false
	}
	info, ok := o.Fields[name]
	return info, ok
}

func (o *Options) comparator(name string) (CompareFunc, bool) {
	if o == nil || o.Comparators == nil {
		return nil, false
	}
	fn, ok := o.Comparators[name]
	return fn, ok
}

// CompareRecord diffs one record's desired field map against its actual
// field map and returns the typed field-level changes.
//
// The diff is one-directional: desired is authoritative, and fields
// present only in actual are ignored. A field missing from actual is
// treated as null. Output preserves desired's key insertion order; there
// is no implicit sort.
func CompareRecord(model string, id int64, desired, actual *record.Fields, opts *Options) []FieldChange {
	var changes []FieldChange
	for _, name := range desired.Keys() {
		want, _ := desired.Get(name)
		if want == nil {
			want = record.Null{}
		}

		info, hasInfo := opts.fieldInfo(name)
		if hasInfo && info.Skipped() {
			continue
		}

		have, present := actual.Get(name)
		if !present || have == nil {
			have = record.Null{}
			present = false
		}
		if _, isNull := have.(record.Null); isNull {
			present = false
		}

		if fieldsEqual(want, have, name, info, hasInfo, opts) {
			continue
		}

		op := OpUpdate
		if !present {
			op = OpCreate
		}
		changes = append(changes, FieldChange{
			Path:     name,
			Op:       op,
			NewValue: want,
			OldValue: have,
		})
	}
	return changes
}

// fieldsEqual applies the equality rules for one field: a registered
// custom comparator wins outright; x2many relational fields compare as
// id sets when both sides reduce to one; everything else uses default
// structural equality with relational and string normalization.
func fieldsEqual(want, have record.Value, name string, info schema.FieldInfo, hasInfo bool, opts *Options) bool {
	if cmp, ok := opts.comparator(name); ok {
		return cmp(want, have)
	}

	if hasInfo && info.Many() {
		if wantSet, ok := record.IDSet(want); ok {
			if haveSet, ok := record.IDSet(have); ok {
				return record.SameIDSet(wantSet, haveSet)
			}
		}
	}

	return record.Equal(want, have)
}
