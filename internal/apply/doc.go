// Package apply executes plans against a record store.
//
// Execution is strictly sequential: each operation resolves its
// placeholder references against the ids of creates that already
// succeeded in the same run, then dispatches exactly one store call.
// Dry runs perform the full resolution bookkeeping with synthetic ids
// and never reach the store.
package apply
