// Package evaluate implements the tri-state clause evaluator.
//
// A clause expression is evaluated against trace-derived bindings and
// yields exactly one of PROVEN, REFUTED, UNKNOWN. The evaluator is
// side-effect-free and deterministic for identical bindings.
//
// The load-bearing invariant: PROVEN and REFUTED are only ever reported
// under complete, closed-world bindings. Before an expression runs, its
// referenced paths are collected from the parse tree and resolved
// against the bindings; any unresolved construct makes the clause
// UNKNOWN with a reason naming it. Over-approximation is a correctness
// bug here, not a style choice.
package evaluate
