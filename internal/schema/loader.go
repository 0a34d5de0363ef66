package schema

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// LoadError represents an error that occurred while loading schema
// definitions from CUE files.
type LoadError struct {
	Path    string
	Message string
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// Load reads model field definitions from all .cue files in dir and
// returns a Static provider. Definitions live under the top-level
// "model" struct:
//
//	model: "res.partner": {
//		name:    {type: "char", required: true}
//		parent:  {type: "many2one", relation_target: "res.partner"}
//		tags:    {type: "many2many", relation_target: "res.partner.tag"}
//		display: {type: "char", read_only: true}
//	}
//
// All definition and validation errors are collected; a nil provider is
// returned only when nothing loadable was found.
func Load(dir string) (*Static, []error) {
	var errs []error

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Path: dir, Message: "schema directory not found"}}
	}
	if err != nil {
		return nil, []error{&LoadError{Path: dir, Message: fmt.Sprintf("error accessing schema directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Path: dir, Message: "not a directory"}}
	}

	cueFiles, err := findCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Path: dir, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Path: dir, Message: "no CUE files found"}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir, Package: "_"})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Path: dir, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Path: dir, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Path: dir, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	modelsVal := value.LookupPath(cue.ParsePath("model"))
	if !modelsVal.Exists() {
		return nil, []error{&LoadError{Path: dir, Message: `no top-level "model" definitions found`}}
	}

	models := make(map[string]map[string]FieldInfo)
	iter, iterErr := modelsVal.Fields()
	if iterErr != nil {
		return nil, []error{&LoadError{Path: dir, Message: fmt.Sprintf("iterating models: %v", iterErr)}}
	}
	for iter.Next() {
		name := iter.Label()
		fields, decodeErr := decodeModel(iter.Value())
		if decodeErr != nil {
			errs = append(errs, &LoadError{Path: "model." + name, Message: decodeErr.Error()})
			continue
		}
		models[name] = fields
	}

	for _, verr := range Validate(models) {
		errs = append(errs, verr)
	}

	if len(models) == 0 {
		errs = append(errs, &LoadError{Path: dir, Message: "no models defined"})
		return nil, errs
	}
	return NewStatic(models), errs
}

// decodeModel decodes one model's field struct.
func decodeModel(v cue.Value) (map[string]FieldInfo, error) {
	fields := make(map[string]FieldInfo)
	iter, err := v.Fields()
	if err != nil {
		return nil, fmt.Errorf("iterating fields: %w", err)
	}
	for iter.Next() {
		var info FieldInfo
		if err := iter.Value().Decode(&info); err != nil {
			return nil, fmt.Errorf("field %q: %w", iter.Label(), err)
		}
		fields[iter.Label()] = info
	}
	return fields, nil
}

// findCUEFiles walks the directory and returns all .cue file paths.
func findCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
