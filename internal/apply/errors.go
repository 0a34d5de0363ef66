package apply

import (
	"fmt"

	"github.com/amaret/converge/internal/plan"
)

// ReferenceError reports a placeholder token that could not be resolved
// to a real id at execution time, usually because the create that
// defines it failed earlier in the run. The operation carrying it fails
// without any store call.
type ReferenceError struct {
	Token string
	Field string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("cannot resolve temporary reference %q in field %q", e.Token, e.Field)
}

// ValidationFailedError rejects a plan that failed pre-flight static
// validation. Nothing was executed.
type ValidationFailedError struct {
	Result plan.ValidationResult
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("plan failed validation with %d errors", len(e.Result.Errors))
}
