package schema

import "fmt"

// Schema validation error codes (E100-E109).
const (
	ErrInvalidFieldType = "E100" // unknown field type string
	ErrMissingRelTarget = "E101" // relational field without a target model
	ErrScalarRelTarget  = "E102" // scalar field carrying a relation target
	ErrEmptyModel       = "E103" // model with no fields
	ErrUnknownRelTarget = "E104" // relation target not defined in the schema set
)

// ValidationError represents a schema definition error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a full schema set against definition rules.
// Returns all errors found (does not fail-fast).
func Validate(models map[string]map[string]FieldInfo) []ValidationError {
	var errs []ValidationError

	for model, fields := range models {
		if len(fields) == 0 {
			errs = append(errs, ValidationError{
				Field:   model,
				Message: "model must define at least one field",
				Code:    ErrEmptyModel,
			})
		}
		for name, info := range fields {
			path := model + "." + name

			if !ValidFieldTypes[info.Type] {
				errs = append(errs, ValidationError{
					Field:   path,
					Message: fmt.Sprintf("invalid field type %q", info.Type),
					Code:    ErrInvalidFieldType,
				})
				continue
			}

			if info.Relational() && info.RelationTarget == "" {
				errs = append(errs, ValidationError{
					Field:   path,
					Message: fmt.Sprintf("%s field requires a relation target", info.Type),
					Code:    ErrMissingRelTarget,
				})
			}
			if !info.Relational() && info.RelationTarget != "" {
				errs = append(errs, ValidationError{
					Field:   path,
					Message: fmt.Sprintf("scalar field of type %q must not name a relation target %q", info.Type, info.RelationTarget),
					Code:    ErrScalarRelTarget,
				})
			}
			if info.Relational() && info.RelationTarget != "" {
				if _, known := models[info.RelationTarget]; !known {
					errs = append(errs, ValidationError{
						Field:   path,
						Message: fmt.Sprintf("relation target %q is not defined in this schema set", info.RelationTarget),
						Code:    ErrUnknownRelTarget,
					})
				}
			}
		}
	}

	return errs
}
