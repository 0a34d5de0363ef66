package plan

import "strings"

// fixRule maps error-text fragments to remediation suggestions.
//
// Substring matching against a remote error message is inherently
// fragile and locale-sensitive, so this is a best-effort advisory layer:
// the list is extensible, not authoritative, and it never drives control
// flow.
type fixRule struct {
	category  string
	fragments []string
	fixes     []string
}

var fixRules = []fixRule{
	{
		category:  "access-denied",
		fragments: []string{"access denied", "permission", "not allowed", "forbidden"},
		fixes: []string{
			"check that the connecting user has write access to the model",
			"review record rules and access control lists for the model",
		},
	},
	{
		category:  "not-found",
		fragments: []string{"not found", "does not exist", "no such record", "missing record"},
		fixes: []string{
			"verify the record id is correct",
			"the record may have been deleted since the plan was built; rebuild the plan",
		},
	},
	{
		category:  "missing-required-field",
		fragments: []string{"required", "mandatory", "cannot be empty"},
		fixes: []string{
			"add the missing required field to the desired state",
			"check the schema for fields marked required",
		},
	},
	{
		category:  "constraint-violation",
		fragments: []string{"constraint", "unique", "duplicate", "violates"},
		fixes: []string{
			"check for records that already carry the conflicting value",
			"review the model's database constraints",
		},
	},
	{
		category:  "bad-relational-reference",
		fragments: []string{"foreign key", "invalid reference", "relation", "temporary record"},
		fixes: []string{
			"verify every referenced record exists or is created earlier in the plan",
			"check the relation target model in the schema",
		},
	},
}

// genericFixes is the fallback checklist when no rule matches.
var genericFixes = []string{
	"inspect the full error message for details",
	"verify connectivity and credentials for the record store",
	"re-run with --dry-run to check reference resolution without mutating",
}

// SuggestErrorFixes classifies an execution-time error into an advisory
// remediation list. op, when given, only sharpens the suggestions; the
// classification itself rests on the error text.
func SuggestErrorFixes(err error, op *Operation) []string {
	if err == nil {
		return nil
	}
	text := strings.ToLower(err.Error())

	for _, rule := range fixRules {
		for _, fragment := range rule.fragments {
			if strings.Contains(text, fragment) {
				fixes := append([]string(nil), rule.fixes...)
				if op != nil {
					fixes = append(fixes, "failing operation: "+string(op.Type)+" "+op.ID)
				}
				return fixes
			}
		}
	}

	fixes := append([]string(nil), genericFixes...)
	if op != nil {
		fixes = append(fixes, "failing operation: "+string(op.Type)+" "+op.ID)
	}
	return fixes
}

// ClassifyError returns the advisory category a message matches, or
// "unknown". Exposed for reporting; execution logic never branches on it.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	text := strings.ToLower(err.Error())
	for _, rule := range fixRules {
		for _, fragment := range rule.fragments {
			if strings.Contains(text, fragment) {
				return rule.category
			}
		}
	}
	return "unknown"
}
