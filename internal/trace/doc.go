// Package trace ingests execution traces and derives the variable
// bindings clauses are evaluated against.
//
// Traces are read-only evidence produced by an external collector; they
// are never re-executed. Ingestion flattens each behavior's terminal
// events into an ExecutionTrace (behavior, outcome, inputs, outputs,
// state), preserving recorded values exactly so clauses are evaluated
// against what the execution actually produced. RedactValue masks PII
// when values are published - bundle writes and rendered output.
package trace
