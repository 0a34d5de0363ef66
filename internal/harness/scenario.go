package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/amaret/converge/internal/schema"
)

// Scenario defines one reconcile conformance scenario.
type Scenario struct {
	// Name uniquely identifies the scenario; it is also the golden file
	// name.
	Name string `yaml:"name"`

	// Description explains what the scenario exercises.
	Description string `yaml:"description"`

	// Schema declares the field metadata per model, inline.
	Schema map[string]map[string]schema.FieldInfo `yaml:"schema"`

	// Desired is the target state: model, then id, then fields. Field
	// order is preserved as written.
	Desired map[string]yaml.Node `yaml:"desired"`

	// Actual is the pre-existing state seeded into the store. Optional;
	// an empty actual state makes every desired record a create.
	Actual map[string]yaml.Node `yaml:"actual,omitempty"`

	// Deletes lists records to remove.
	Deletes []DeleteStep `yaml:"deletes,omitempty"`

	// Expect pins the scenario outcome.
	Expect Expect `yaml:"expect,omitempty"`
}

// DeleteStep names one record to delete.
type DeleteStep struct {
	Model string `yaml:"model"`
	ID    int64  `yaml:"id"`
}

// Expect pins outcome properties. Nil pointers mean "not asserted".
type Expect struct {
	// Ops is the expected operation count.
	Ops *int `yaml:"ops,omitempty"`

	// Valid is the expected validation verdict.
	Valid *bool `yaml:"valid,omitempty"`

	// Errors is the expected validation error count.
	Errors *int `yaml:"errors,omitempty"`

	// Warnings is the expected validation warning count.
	Warnings *int `yaml:"warnings,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields
// are rejected so typos fail loudly instead of silently weakening a
// scenario.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

// validateScenario checks required fields before the scenario runs.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Schema) == 0 {
		return fmt.Errorf("schema is required")
	}
	if len(s.Desired) == 0 && len(s.Deletes) == 0 {
		return fmt.Errorf("desired state or deletes are required")
	}
	for model := range s.Desired {
		if _, ok := s.Schema[model]; !ok {
			return fmt.Errorf("desired model %q has no schema entry", model)
		}
	}
	for model := range s.Actual {
		if _, ok := s.Schema[model]; !ok {
			return fmt.Errorf("actual model %q has no schema entry", model)
		}
	}
	for i, del := range s.Deletes {
		if del.Model == "" {
			return fmt.Errorf("deletes[%d]: model is required", i)
		}
		if del.ID == 0 {
			return fmt.Errorf("deletes[%d]: id is required", i)
		}
	}
	return nil
}
