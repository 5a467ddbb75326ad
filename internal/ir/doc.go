// Package ir provides the canonical value types shared by the trivet
// verification pipeline.
//
// This package contains type definitions, the per-clause result state
// machine, canonical JSON serialization, and content-addressed hashing.
// All other internal packages import ir; ir imports nothing internal.
// This ensures ir remains the foundational layer with no circular
// dependencies.
//
// Key design constraints:
//   - Clause is immutable after extraction
//   - ClauseResult values are replaced, never field-mutated: at most one
//     mitigation replacement and one solver replacement per clause
//   - All JSON tags use snake_case
//   - Run identifiers are UUIDv7 (time-ordered, globally unique)
package ir
