package plan

import (
	"time"

	"github.com/amaret/converge/internal/record"
)

// OpType is the kind of store mutation an operation performs.
type OpType string

const (
	OpCreate OpType = "create"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

// Operation is one store mutation in an execution plan.
//
// For creates, ID is a placeholder token of the form "<model>:temp_<n>",
// unique within one plan build. For updates and deletes, ID is the
// record's real id in decimal form. Values may contain record.TempID
// placeholders in place of real ids; the executor resolves them as the
// referenced creates succeed.
type Operation struct {
	Type   OpType
	Model  string
	ID     string
	Values *record.Fields
}

// Metadata describes the plan as a whole, derived at build time.
type Metadata struct {
	PlanID         string
	Timestamp      time.Time
	AffectedModels []string
	TotalChanges   int
}

// Summary holds counts derived purely from the final operation list.
type Summary struct {
	TotalOperations int  `json:"total_operations"`
	Creates         int  `json:"creates"`
	Updates         int  `json:"updates"`
	Deletes         int  `json:"deletes"`
	IsEmpty         bool `json:"is_empty"`

	// HasErrors is set when construction found unresolved references:
	// a dependency cycle kept the topological sort from ordering every
	// operation, or a value carries a placeholder token no create in
	// this plan defines. The validator turns these into errors; the
	// builder only flags them.
	HasErrors bool `json:"has_errors"`
}

// Plan is a dependency-ordered list of operations plus derived metadata.
// Immutable once built: accessors return copies.
type Plan struct {
	ops      []Operation
	metadata Metadata
	summary  Summary
}

// Operations returns the dependency-ordered operation list as a copy.
func (p *Plan) Operations() []Operation {
	out := make([]Operation, len(p.ops))
	copy(out, p.ops)
	return out
}

// Len returns the number of operations.
func (p *Plan) Len() int {
	return len(p.ops)
}

// Metadata returns the plan metadata.
func (p *Plan) Metadata() Metadata {
	m := p.metadata
	m.AffectedModels = append([]string(nil), p.metadata.AffectedModels...)
	return m
}

// Summary returns the plan summary.
func (p *Plan) Summary() Summary {
	return p.summary
}

// summarize derives the Summary counts from a final operation list.
func summarize(ops []Operation, hasErrors bool) Summary {
	s := Summary{TotalOperations: len(ops), HasErrors: hasErrors}
	for _, op := range ops {
		switch op.Type {
		case OpCreate:
			s.Creates++
		case OpUpdate:
			s.Updates++
		case OpDelete:
			s.Deletes++
		}
	}
	s.IsEmpty = s.TotalOperations == 0
	return s
}
