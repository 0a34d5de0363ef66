package schema

import (
	"context"
	"fmt"
	"sort"
)

// FieldType is the store-facing type of a record field. The engine only
// cares about the relational/scalar distinction; everything else is
// carried through for validation and adapters.
type FieldType string

const (
	TypeChar      FieldType = "char"
	TypeText      FieldType = "text"
	TypeInteger   FieldType = "integer"
	TypeFloat     FieldType = "float"
	TypeBoolean   FieldType = "boolean"
	TypeMany2One  FieldType = "many2one"
	TypeOne2Many  FieldType = "one2many"
	TypeMany2Many FieldType = "many2many"
	TypeJSON      FieldType = "json"
)

// ValidFieldTypes enumerates the accepted type strings.
var ValidFieldTypes = map[FieldType]bool{
	TypeChar:      true,
	TypeText:      true,
	TypeInteger:   true,
	TypeFloat:     true,
	TypeBoolean:   true,
	TypeMany2One:  true,
	TypeOne2Many:  true,
	TypeMany2Many: true,
	TypeJSON:      true,
}

// FieldInfo is the per-field metadata the schema collaborator provides.
type FieldInfo struct {
	Type     FieldType `json:"type" yaml:"type"`
	Required bool      `json:"required,omitempty" yaml:"required,omitempty"`
	ReadOnly bool      `json:"read_only,omitempty" yaml:"read_only,omitempty"`
	Computed bool      `json:"computed,omitempty" yaml:"computed,omitempty"`

	// RelationTarget names the model a relational field points at.
	// Empty for scalar fields.
	RelationTarget string `json:"relation_target,omitempty" yaml:"relation_target,omitempty"`
}

// Relational reports whether the field holds record references.
func (f FieldInfo) Relational() bool {
	switch f.Type {
	case TypeMany2One, TypeOne2Many, TypeMany2Many:
		return true
	default:
		return false
	}
}

// Many reports whether the field holds a collection of references.
func (f FieldInfo) Many() bool {
	return f.Type == TypeOne2Many || f.Type == TypeMany2Many
}

// Skipped reports whether the comparator must ignore the field outright.
// Read-only and computed fields are never diffed, regardless of
// divergence.
func (f FieldInfo) Skipped() bool {
	return f.ReadOnly || f.Computed
}

// Provider supplies field metadata per model. Implementations may cache;
// the reconcile core never does.
type Provider interface {
	Fields(ctx context.Context, model string) (map[string]FieldInfo, error)
}

// Static is a map-backed Provider, the common case for CUE-defined
// schemas and tests.
type Static struct {
	models map[string]map[string]FieldInfo
}

// NewStatic creates a Static provider over the given model definitions.
func NewStatic(models map[string]map[string]FieldInfo) *Static {
	if models == nil {
		models = make(map[string]map[string]FieldInfo)
	}
	return &Static{models: models}
}

// Fields implements Provider.
func (s *Static) Fields(_ context.Context, model string) (map[string]FieldInfo, error) {
	fields, ok := s.models[model]
	if !ok {
		return nil, fmt.Errorf("unknown model %q", model)
	}
	return fields, nil
}

// Models returns the known model names, sorted.
func (s *Static) Models() []string {
	names := make([]string, 0, len(s.models))
	for m := range s.models {
		names = append(names, m)
	}
	sort.Strings(names)
	return names
}

// Add registers (or replaces) one model definition.
func (s *Static) Add(model string, fields map[string]FieldInfo) {
	s.models[model] = fields
}
