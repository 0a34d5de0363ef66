package plan

import (
	"fmt"
	"strings"

	"github.com/amaret/converge/internal/record"
)

// FormatValidationErrors renders a validation result as fixed-structure
// plain text: one pass/fail header line, then each error with its
// operation id, field name, message and fix list, then warnings in the
// same shape. The output is stable and golden-testable.
func FormatValidationErrors(result ValidationResult) string {
	var b strings.Builder

	if result.IsValid {
		fmt.Fprintf(&b, "Plan validation passed (%s)\n", countNoun(len(result.Warnings), "warning"))
	} else {
		fmt.Fprintf(&b, "Plan validation failed: %s, %s\n",
			countNoun(len(result.Errors), "error"),
			countNoun(len(result.Warnings), "warning"))
	}

	for _, issue := range result.Errors {
		writeIssue(&b, "ERROR", issue)
	}
	for _, issue := range result.Warnings {
		writeIssue(&b, "WARNING", issue)
	}

	return b.String()
}

func writeIssue(b *strings.Builder, label string, issue ValidationIssue) {
	fmt.Fprintf(b, "\n%s: %s\n", label, issue.Message)
	if issue.OperationID != "" {
		fmt.Fprintf(b, "  operation: %s\n", issue.OperationID)
	}
	if issue.FieldName != "" {
		fmt.Fprintf(b, "  field:     %s\n", issue.FieldName)
	}
	if len(issue.SuggestedFixes) > 0 {
		fmt.Fprintf(b, "  fixes:\n")
		for _, fix := range issue.SuggestedFixes {
			fmt.Fprintf(b, "    - %s\n", fix)
		}
	}
}

// FormatPlan renders the operation list for operators. Plan id and
// timestamp are deliberately excluded so the rendering is reproducible.
func FormatPlan(p *Plan) string {
	var b strings.Builder
	s := p.Summary()

	if s.IsEmpty {
		b.WriteString("Plan is empty: actual state already matches desired state\n")
		return b.String()
	}

	fmt.Fprintf(&b, "Plan: %s (%d creates, %d updates, %d deletes)\n",
		countNoun(s.TotalOperations, "operation"), s.Creates, s.Updates, s.Deletes)
	if s.HasErrors {
		b.WriteString("WARNING: plan has unresolved references; validate before applying\n")
	}

	for i, op := range p.Operations() {
		fmt.Fprintf(&b, "%3d. %-6s %s", i+1, op.Type, opTarget(op))
		if op.Values.Len() > 0 {
			parts := make([]string, 0, op.Values.Len())
			for _, name := range op.Values.Keys() {
				v, _ := op.Values.Get(name)
				parts = append(parts, name+": "+record.Render(v))
			}
			fmt.Fprintf(&b, " {%s}", strings.Join(parts, ", "))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// opTarget renders the operation target: creates already carry the model
// inside their token; updates and deletes prefix it.
func opTarget(op Operation) string {
	if op.Type == OpCreate {
		return op.ID
	}
	return op.Model + "(" + op.ID + ")"
}

func countNoun(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
