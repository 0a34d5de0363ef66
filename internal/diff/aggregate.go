package diff

import (
	"sort"

	"github.com/amaret/converge/internal/record"
)

// CompareRecords runs the comparator across every record id in the
// desired state for one model. Ids are visited in ascending order for
// deterministic output.
//
// Ids absent from actual produce IsNew diffs listing every desired field
// as a create-type change (read-only and computed fields excepted, as
// always). Records with zero detected changes are omitted.
func CompareRecords(model string, desired, actual map[int64]*record.Fields, opts *Options) []RecordDiff {
	ids := make([]int64, 0, len(desired))
	for id := range desired {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var diffs []RecordDiff
	for _, id := range ids {
		want := desired[id]
		have, exists := actual[id]

		if !exists {
			changes := newRecordChanges(want, opts)
			diffs = append(diffs, RecordDiff{
				Model:   model,
				ID:      id,
				Changes: changes,
				IsNew:   true,
			})
			continue
		}

		changes := CompareRecord(model, id, want, have, opts)
		if len(changes) == 0 {
			continue
		}
		diffs = append(diffs, RecordDiff{
			Model:   model,
			ID:      id,
			Changes: changes,
		})
	}
	return diffs
}

// newRecordChanges lists every desired field of a not-yet-existing
// record as a create-type change, including explicit nulls - the record
// does not exist, so there is no prior value to compare against.
func newRecordChanges(desired *record.Fields, opts *Options) []FieldChange {
	var changes []FieldChange
	for _, name := range desired.Keys() {
		info, hasInfo := opts.fieldInfo(name)
		if hasInfo && info.Skipped() {
			continue
		}
		want, _ := desired.Get(name)
		if want == nil {
			want = record.Null{}
		}
		changes = append(changes, FieldChange{
			Path:     name,
			Op:       OpCreate,
			NewValue: want,
			OldValue: record.Null{},
		})
	}
	return changes
}
