// Package plan converts record diffs into dependency-ordered execution
// plans, statically validates their referential integrity, and renders
// validation findings for operators.
//
// Not-yet-created records are identified by placeholder tokens of the
// form "<model>:temp_<n>"; the builder mints them, orders operations so
// every create precedes its references, and leaves cycle rejection to
// the validator. Error-fix suggestion is advisory text generation only.
package plan
