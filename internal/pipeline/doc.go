// Package pipeline orchestrates a verification run.
//
// Stages execute in a fixed order: setup, test runner, trace collector,
// postcondition evaluator, invariant checker, then the optional solver
// and proof bundle stages. The driver loop is explicit - no channels or
// callbacks decide stage order - so two runs over the same inputs walk
// the same path and reach the same verdict.
//
// Stage failures follow a small taxonomy: spec errors and stage errors
// stop the run with a FAILED verdict, while failures in the optional
// stages degrade the run (logged, recorded, continued). Hooks observe
// stage boundaries but can never change the outcome.
package pipeline
