// Package record models the loosely-typed field values a record store
// delivers and accepts as a sealed tagged union, together with the
// normalization rules comparison depends on: relational values reduce
// to their numeric id, strings compare NFC-normalized, and identifier
// lists can be viewed as sets.
//
// Fields is an insertion-ordered field map; key order flows from the
// desired-state document through the comparator into plan operations.
package record
