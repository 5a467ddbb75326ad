// Package spec loads compiled specification documents and extracts the
// immutable clauses the pipeline verifies.
//
// Specification-language parsing is an external concern: the pipeline
// consumes the compiled JSON document format (domain, behaviors with
// precondition/postcondition/invariant expressions, global invariants).
// The document is validated against a CUE schema at load time, so a
// malformed document fails the Setup stage before any evaluation work
// starts.
package spec
