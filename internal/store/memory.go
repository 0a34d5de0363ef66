package store

import (
	"context"
	"sort"
	"sync"

	"github.com/amaret/converge/internal/record"
)

// Call records one store invocation, used by tests to assert that
// dry runs never mutate and that batching merges writes.
type Call struct {
	Method string
	Model  string
	IDs    []int64
}

// Memory is an in-memory Store for tests and the conformance harness.
//
// Failures are scriptable per model and method; every invocation is
// logged. Safe for concurrent use, although the executor itself is
// strictly sequential within one apply.
type Memory struct {
	mu     sync.Mutex
	data   map[string]map[int64]*record.Fields
	nextID map[string]int64
	calls  []Call

	// FailCreate, FailWrite, FailUnlink, FailRead make the corresponding
	// method fail for a model with the given error.
	FailCreate map[string]error
	FailWrite  map[string]error
	FailUnlink map[string]error
	FailRead   map[string]error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		data:       make(map[string]map[int64]*record.Fields),
		nextID:     make(map[string]int64),
		FailCreate: make(map[string]error),
		FailWrite:  make(map[string]error),
		FailUnlink: make(map[string]error),
		FailRead:   make(map[string]error),
	}
}

// Seed inserts a record with a fixed id, bypassing the call log.
func (m *Memory) Seed(model string, id int64, fields *record.Fields) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[model] == nil {
		m.data[model] = make(map[int64]*record.Fields)
	}
	m.data[model][id] = fields.Clone()
	if id >= m.nextID[model] {
		m.nextID[model] = id + 1
	}
}

// Get returns a stored record, for test assertions.
func (m *Memory) Get(model string, id int64) (*record.Fields, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.data[model][id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Calls returns the invocation log.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// MutationCalls returns only the create/write/unlink invocations.
func (m *Memory) MutationCalls() []Call {
	var out []Call
	for _, c := range m.Calls() {
		switch c.Method {
		case "create", "write", "unlink":
			out = append(out, c)
		}
	}
	return out
}

func (m *Memory) log(method, model string, ids []int64) {
	m.calls = append(m.calls, Call{Method: method, Model: model, IDs: append([]int64(nil), ids...)})
}

// Search implements Reader.
func (m *Memory) Search(_ context.Context, model string, domain Domain) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log("search", model, nil)

	if err := m.FailRead[model]; err != nil {
		return nil, err
	}

	var ids []int64
	for id, rec := range m.data[model] {
		if matches(id, rec, domain) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Read implements Reader.
func (m *Memory) Read(_ context.Context, model string, ids []int64, fields []string) ([]*record.Fields, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log("read", model, ids)

	if err := m.FailRead[model]; err != nil {
		return nil, err
	}

	var out []*record.Fields
	for _, id := range ids {
		rec, ok := m.data[model][id]
		if !ok {
			continue
		}
		result := record.NewFields()
		result.Set("id", record.Int(id))
		if len(fields) == 0 {
			for _, name := range rec.Keys() {
				v, _ := rec.Get(name)
				result.Set(name, v)
			}
		} else {
			for _, name := range fields {
				if v, ok := rec.Get(name); ok {
					result.Set(name, v)
				}
			}
		}
		out = append(out, result)
	}
	return out, nil
}

// Create implements Store.
func (m *Memory) Create(_ context.Context, model string, values map[string]any) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log("create", model, nil)

	if err := m.FailCreate[model]; err != nil {
		return 0, err
	}

	if m.nextID[model] == 0 {
		m.nextID[model] = 1
	}
	id := m.nextID[model]
	m.nextID[model]++

	rec := record.NewFields()
	for name, v := range values {
		conv, err := record.FromNative(v)
		if err != nil {
			return 0, err
		}
		rec.Set(name, conv)
	}
	if m.data[model] == nil {
		m.data[model] = make(map[int64]*record.Fields)
	}
	m.data[model][id] = rec
	return id, nil
}

// Write implements Store.
func (m *Memory) Write(_ context.Context, model string, ids []int64, values map[string]any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log("write", model, ids)

	if err := m.FailWrite[model]; err != nil {
		return false, err
	}

	for _, id := range ids {
		rec, ok := m.data[model][id]
		if !ok {
			return false, &NotFoundError{Model: model, ID: id}
		}
		for name, v := range values {
			conv, err := record.FromNative(v)
			if err != nil {
				return false, err
			}
			rec.Set(name, conv)
		}
	}
	return true, nil
}

// Unlink implements Store.
func (m *Memory) Unlink(_ context.Context, model string, ids []int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log("unlink", model, ids)

	if err := m.FailUnlink[model]; err != nil {
		return false, err
	}

	for _, id := range ids {
		if _, ok := m.data[model][id]; !ok {
			return false, &NotFoundError{Model: model, ID: id}
		}
		delete(m.data[model], id)
	}
	return true, nil
}

// matches evaluates a domain against one record.
func matches(id int64, rec *record.Fields, domain Domain) bool {
	for _, cond := range domain {
		var have record.Value
		if cond.Field == "id" {
			have = record.Int(id)
		} else {
			v, ok := rec.Get(cond.Field)
			if !ok {
				return false
			}
			have = v
		}

		switch cond.Op {
		case "=", "":
			want, err := record.FromNative(cond.Value)
			if err != nil || !record.Equal(want, have) {
				return false
			}
		case "in":
			ids, ok := cond.Value.([]int64)
			if !ok {
				return false
			}
			haveID, isID := record.RelationID(have)
			if !isID {
				return false
			}
			found := false
			for _, candidate := range ids {
				if candidate == haveID {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}
