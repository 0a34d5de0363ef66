package record

import "golang.org/x/text/unicode/norm"

// Equal reports structural deep equality between two values.
//
// Normalization rules:
//   - Strings compare after NFC normalization, so byte-level encoding
//     differences of the same text never register as a change.
//   - Int and Float compare numerically across tags (Int(5) == Float(5)),
//     because the store does not distinguish 5 from 5.0 on the wire.
//   - Ref compares to Ref, Int, or Float by id only; the label is
//     presentation text and never causes a change.
//   - Lists compare element-wise in order. Order-insensitive identifier
//     comparison is a relational concern handled by IDSet in the
//     comparator, not here.
func Equal(a, b Value) bool {
	if a == nil {
		a = Null{}
	}
	if b == nil {
		b = Null{}
	}

	// Relational normalization: reduce id-bearing tags to the bare id
	// before anything else, so Ref{3,"x"} == Int(3).
	if aid, aok := RelationID(a); aok {
		if bid, bok := RelationID(b); bok {
			return aid == bid
		}
		return false
	}

	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case String:
		bv, ok := b.(String)
		if !ok {
			return false
		}
		return norm.NFC.String(string(av)) == norm.NFC.String(string(bv))
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Float:
		// Non-integral floats fall through the relational branch above.
		bv, ok := b.(Float)
		return ok && av == bv
	case TempID:
		bv, ok := b.(TempID)
		return ok && av == bv
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, present := bv[k]
			if !present || !Equal(v, other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// RelationID reduces an id-bearing value to its numeric id.
// Int, Float with integral value, and Ref all qualify.
func RelationID(v Value) (int64, bool) {
	switch val := v.(type) {
	case Int:
		return int64(val), true
	case Float:
		f := float64(val)
		n := int64(f)
		if float64(n) == f {
			return n, true
		}
		return 0, false
	case Ref:
		return val.ID, true
	default:
		return 0, false
	}
}

// IDSet reduces a List of id-bearing elements to an id set for
// order-insensitive membership comparison. ok is false when v is not a
// list or contains a non-id element (a TempID, say), in which case the
// caller falls back to ordered equality.
func IDSet(v Value) (map[int64]bool, bool) {
	list, ok := v.(List)
	if !ok {
		return nil, false
	}
	set := make(map[int64]bool, len(list))
	for _, elem := range list {
		id, isID := RelationID(elem)
		if !isID {
			return nil, false
		}
		set[id] = true
	}
	return set, true
}

// SameIDSet reports whether two id sets have identical membership.
func SameIDSet(a, b map[int64]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if !b[id] {
			return false
		}
	}
	return true
}
