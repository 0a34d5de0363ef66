package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/amaret/converge/internal/record"
	"github.com/amaret/converge/internal/schema"
	"github.com/amaret/converge/internal/store"
)

// document is one YAML document in a desired-state file.
type document struct {
	Model   string    `yaml:"model"`
	Records yaml.Node `yaml:"records"`
}

// LoadDesired reads a desired-state file: one or more YAML documents,
// each declaring a model and its records keyed by id. Negative ids
// conventionally mark records to create; any id absent from the actual
// state produces a create regardless of sign.
//
// Field order within each record is preserved as written, so diff and
// plan output follow the operator's own ordering.
func LoadDesired(path string) (map[string]map[int64]*record.Fields, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]map[int64]*record.Fields)
	dec := yaml.NewDecoder(f)
	for {
		var doc document
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("snapshot: %s: %w", path, err)
		}
		if doc.Model == "" {
			return nil, fmt.Errorf("snapshot: %s: document is missing a model", path)
		}

		if doc.Records.Kind == 0 {
			continue
		}
		if doc.Records.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("snapshot: %s: records of %s must be a mapping of id to fields", path, doc.Model)
		}

		recs := out[doc.Model]
		if recs == nil {
			recs = make(map[int64]*record.Fields)
			out[doc.Model] = recs
		}
		decoded, err := DecodeRecords(doc.Model, &doc.Records)
		if err != nil {
			return nil, fmt.Errorf("snapshot: %s: %w", path, err)
		}
		for id, fields := range decoded {
			if _, dup := recs[id]; dup {
				return nil, fmt.Errorf("snapshot: %s: duplicate record %s(%d)", path, doc.Model, id)
			}
			recs[id] = fields
		}
	}
	return out, nil
}

// DecodeRecords converts one "id: fields" YAML mapping node into ordered
// field maps keyed by id. Field order within each record is preserved.
func DecodeRecords(model string, node *yaml.Node) (map[int64]*record.Fields, error) {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("records of %s must be a mapping of id to fields", model)
	}
	recs := make(map[int64]*record.Fields)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		id, err := strconv.ParseInt(keyNode.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("record key %q of %s is not an integer id", keyNode.Value, model)
		}
		fields, err := decodeFields(node.Content[i+1])
		if err != nil {
			return nil, fmt.Errorf("record %s(%d): %w", model, id, err)
		}
		recs[id] = fields
	}
	return recs, nil
}

// decodeFields converts one record mapping node into ordered fields.
func decodeFields(node *yaml.Node) (*record.Fields, error) {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	if node.Kind != yaml.MappingNode {
		return nil, errors.New("record body must be a mapping of field to value")
	}
	fields := record.NewFields()
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		var raw any
		if err := node.Content[i+1].Decode(&raw); err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		v, err := record.FromNative(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		fields.Set(name, v)
	}
	return fields, nil
}

// Models returns the sorted model names present in a desired state.
func Models(desired map[string]map[int64]*record.Fields) []string {
	models := make([]string, 0, len(desired))
	for m := range desired {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

// IDs returns a model's record ids in ascending order.
func IDs(records map[int64]*record.Fields) []int64 {
	ids := make([]int64, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ReadActual fetches the current state of the given records through the
// store, restricted to the model's comparable fields per the schema.
// Missing ids are simply absent from the result; the returned field
// maps do not carry the "id" key.
func ReadActual(ctx context.Context, r store.Reader, provider schema.Provider, model string, ids []int64) (map[int64]*record.Fields, error) {
	fields, err := provider.Fields(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("snapshot: schema for %s: %w", model, err)
	}
	names := make([]string, 0, len(fields))
	for name, info := range fields {
		if !info.Skipped() {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	recs, err := r.Read(ctx, model, ids, names)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read %s: %w", model, err)
	}

	out := make(map[int64]*record.Fields, len(recs))
	for _, rec := range recs {
		idVal, ok := rec.Get("id")
		if !ok {
			continue
		}
		id, ok := record.RelationID(idVal)
		if !ok {
			continue
		}
		body := record.NewFields()
		for _, name := range rec.Keys() {
			if name == "id" {
				continue
			}
			v, _ := rec.Get(name)
			body.Set(name, v)
		}
		out[id] = body
	}
	return out, nil
}
