package record

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// FromNative converts a loosely-typed Go value (as produced by the yaml
// or json decoders) into a tagged Value.
//
// Integers are preferred over floats: a json.Number or float64 with an
// integral value becomes Int. The [id, "label"] pair shape is NOT
// auto-detected here - snapshots reference records by plain id, and Ref
// values only enter through the store adapter, which knows field types.
func FromNative(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer out of int64 range: %d", val)
		}
		return Int(int64(val)), nil
	case float32:
		return fromFloat(float64(val)), nil
	case float64:
		return fromFloat(val), nil
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return Int(n), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("unparseable number %q: %w", val, err)
		}
		return fromFloat(f), nil
	case []any:
		list := make(List, len(val))
		for i, elem := range val {
			conv, err := FromNative(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			list[i] = conv
		}
		return list, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			conv, err := FromNative(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = conv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func fromFloat(f float64) Value {
	n := int64(f)
	if float64(n) == f {
		return Int(n)
	}
	return Float(f)
}

// ToNative converts a Value back into the loosely-typed representation
// store adapters and encoders expect. TempID converts to its token
// string; the executor resolves tokens before any value reaches a store,
// so a token surviving to a store call is a caller bug.
func ToNative(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	case Ref:
		return val.ID
	case TempID:
		return string(val)
	case List:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToNative(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out[k] = ToNative(val[k])
		}
		return out
	default:
		return nil
	}
}

// FieldsToNative flattens a Fields into a plain map for store calls.
func FieldsToNative(f *Fields) map[string]any {
	out := make(map[string]any, f.Len())
	for _, k := range f.Keys() {
		v, _ := f.Get(k)
		out[k] = ToNative(v)
	}
	return out
}
