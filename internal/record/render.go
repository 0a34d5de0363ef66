package record

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Render produces a compact single-line rendering of a value for plan
// listings and validation reports. It is presentation only and makes no
// round-trip guarantee.
func Render(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "null"
	case String:
		return strconv.Quote(string(val))
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Bool:
		return strconv.FormatBool(bool(val))
	case Ref:
		if val.Label == "" {
			return strconv.FormatInt(val.ID, 10)
		}
		return fmt.Sprintf("%d (%s)", val.ID, val.Label)
	case TempID:
		return string(val)
	case List:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = Render(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case Object:
		parts := make([]string, 0, len(val))
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		// Deterministic object rendering keeps golden files stable.
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, k+": "+Render(val[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprintf("%v", v)
	}
}
