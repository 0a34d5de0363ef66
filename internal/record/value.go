package record

import (
	"fmt"
	"strconv"
	"strings"
)

// Value is a sealed interface over the constrained set of field value
// types a record store delivers or accepts. Only Null, String, Int,
// Float, Bool, Ref, TempID, List, and Object implement it.
//
// Record field values are loosely typed at the store boundary; modeling
// them as an explicit tagged union keeps normalization rules (relational
// id reduction, id-set comparison) in one place instead of scattered
// type assertions on any.
type Value interface {
	recordValue() // Sealed - only these types implement it
}

// Null represents an absent or explicitly-null field value.
// Using an explicit type ensures all Values satisfy the sealed interface.
type Null struct{}

func (Null) recordValue() {}

// String represents a textual field value.
type String string

func (String) recordValue() {}

// Int represents an integer field value. Always int64.
type Int int64

func (Int) recordValue() {}

// Float represents a numeric field value with a fractional part.
type Float float64

func (Float) recordValue() {}

// Bool represents a boolean field value.
type Bool bool

func (Bool) recordValue() {}

// Ref represents a many-to-one value as delivered by the store:
// the referenced record's id paired with its display label.
// Only the id participates in comparison; the label is presentation.
type Ref struct {
	ID    int64
	Label string
}

func (Ref) recordValue() {}

// TempID is a placeholder token standing in for a record that does not
// exist yet. Tokens have the form "<model>:temp_<n>" and are minted by
// the plan builder, unique within one plan build.
type TempID string

func (TempID) recordValue() {}

// List represents an ordered sequence of values. Relational x2many
// fields arrive as lists of Int (or Ref) elements; comparison of those
// is order-insensitive, handled by IDSet.
type List []Value

func (List) recordValue() {}

// Object represents a structured payload. Object-valued fields compare
// by structural deep equality.
type Object map[string]Value

func (Object) recordValue() {}

// tempPrefix separates the model name from the token counter.
const tempPrefix = "temp_"

// MakeTempID mints a placeholder token for the nth new record of model.
func MakeTempID(model string, n int) TempID {
	return TempID(model + ":" + tempPrefix + strconv.Itoa(n))
}

// ParseTempID splits a token into its model part. ok is false when the
// string is not placeholder-shaped.
func ParseTempID(s string) (model string, ok bool) {
	i := strings.LastIndex(s, ":")
	if i <= 0 {
		return "", false
	}
	if !strings.HasPrefix(s[i+1:], tempPrefix) {
		return "", false
	}
	return s[:i], true
}

// IsTempToken reports whether s is placeholder-shaped.
func IsTempToken(s string) bool {
	_, ok := ParseTempID(s)
	return ok
}

// TypeName returns a short human-readable tag name, used in error
// messages and the text renderer.
func TypeName(v Value) string {
	switch v.(type) {
	case Null:
		return "null"
	case String:
		return "string"
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case Ref:
		return "ref"
	case TempID:
		return "temp"
	case List:
		return "list"
	case Object:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
