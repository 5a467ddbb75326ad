// Package mitigate resolves UNKNOWN clause results where the evidence
// allows it.
//
// Each UNKNOWN category maps to a fixed, ordered plan of mitigation
// strategies. Strategies are tried in plan order and the first one that
// decides the clause wins; a clause is replaced at most once. Strategies
// that cannot run automatically (add_bindings, which would fabricate
// evidence, and smt_retry, which belongs to the solver stage) are
// surfaced in the plan but never applied here.
//
// Every strategy is deterministic: sampling picks values by sorted trace
// ID, slicing follows source order, and a strategy that cannot decide
// the clause leaves the original result untouched.
package mitigate
