package record

// Fields is an insertion-ordered map of field name to value.
//
// Field order matters: the comparator emits changes in the desired
// state's key order, so the container has to remember it. Plain Go maps
// do not, hence the parallel key slice.
type Fields struct {
	keys   []string
	values map[string]Value
}

// NewFields creates an empty field map.
func NewFields() *Fields {
	return &Fields{values: make(map[string]Value)}
}

// FieldsFromPairs builds a Fields from alternating name/value pairs,
// preserving the given order. Convenient in tests.
func FieldsFromPairs(pairs ...any) *Fields {
	if len(pairs)%2 != 0 {
		panic("record: FieldsFromPairs requires an even number of arguments")
	}
	f := NewFields()
	for i := 0; i < len(pairs); i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			panic("record: FieldsFromPairs keys must be strings")
		}
		val, ok := pairs[i+1].(Value)
		if !ok {
			panic("record: FieldsFromPairs values must be record.Value")
		}
		f.Set(name, val)
	}
	return f
}

// Set stores a value under name, appending the key on first insertion.
// Re-setting an existing key keeps its original position.
func (f *Fields) Set(name string, v Value) {
	if f.values == nil {
		f.values = make(map[string]Value)
	}
	if _, exists := f.values[name]; !exists {
		f.keys = append(f.keys, name)
	}
	f.values[name] = v
}

// Get returns the value stored under name.
func (f *Fields) Get(name string) (Value, bool) {
	if f == nil || f.values == nil {
		return nil, false
	}
	v, ok := f.values[name]
	return v, ok
}

// Has reports whether name is present.
func (f *Fields) Has(name string) bool {
	_, ok := f.Get(name)
	return ok
}

// Keys returns field names in insertion order. The returned slice is a
// copy; mutating it does not affect the Fields.
func (f *Fields) Keys() []string {
	if f == nil {
		return nil
	}
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

// Len returns the number of fields.
func (f *Fields) Len() int {
	if f == nil {
		return 0
	}
	return len(f.keys)
}

// Clone returns a shallow copy (values are shared, which is safe because
// Value instances are treated as immutable).
func (f *Fields) Clone() *Fields {
	if f == nil {
		return NewFields()
	}
	c := &Fields{
		keys:   make([]string, len(f.keys)),
		values: make(map[string]Value, len(f.values)),
	}
	copy(c.keys, f.keys)
	for k, v := range f.values {
		c.values[k] = v
	}
	return c
}

// Map applies fn to every value, in key order, replacing each value with
// fn's result. Used by the plan builder to rewrite relational ids into
// placeholder tokens and by the executor to resolve them back.
func (f *Fields) Map(fn func(name string, v Value) Value) {
	if f == nil {
		return
	}
	for _, k := range f.keys {
		f.values[k] = fn(k, f.values[k])
	}
}
