// Package harness runs conformance scenarios against the verification
// pipeline.
//
// A scenario pins every input a run depends on - spec, traces, test
// tally, solver fixture - and every source of nondeterminism is
// replaced: run IDs come from a sequential generator and the clock is
// frozen. Identical scenarios therefore produce byte-identical
// snapshots, which is what the golden files assert.
package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/trivetlabs/trivet/internal/ir"
	"github.com/trivetlabs/trivet/internal/pipeline"
	"github.com/trivetlabs/trivet/internal/smt"
	"github.com/trivetlabs/trivet/internal/testutil"
	"github.com/trivetlabs/trivet/internal/trace"
	"github.com/trivetlabs/trivet/internal/verdict"
)

// Run executes one scenario and returns the pipeline result.
func Run(sc *Scenario) (*pipeline.Result, error) {
	var traces pipeline.StaticTraces
	for _, path := range sc.Traces {
		ts, err := trace.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
		traces = append(traces, ts...)
	}

	cfg := &pipeline.Config{
		SpecFile:         sc.Spec,
		TraceDir:         ".",
		ViolationPenalty: -1,
	}
	if sc.Penalty != nil {
		cfg.ViolationPenalty = *sc.Penalty
	}
	cfg.Default()

	opts := []pipeline.Option{
		pipeline.WithTestRunner(pipeline.StaticTestSummary(verdict.TestSummary(sc.Tests))),
		pipeline.WithTraceSource(traces),
		pipeline.WithRunIDGenerator(testutil.NewRunIDs()),
		pipeline.WithClock(testutil.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 0).Now),
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil)) // suppress logs in tests
	if sc.Solver != "" {
		oracle, err := smt.LoadFixtureOracle(sc.Solver)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
		opts = append(opts, pipeline.WithEscalator(smt.NewEscalator(log, oracle, nil, time.Second)))
	}

	runner := pipeline.NewRunner(log, cfg, opts...)
	return runner.Run(context.Background())
}

// CheckExpectations compares a result against the scenario's expect
// block and returns one message per mismatch.
func CheckExpectations(sc *Scenario, res *pipeline.Result) []string {
	var failures []string

	if string(res.Decision.Verdict) != sc.Expect.Verdict {
		failures = append(failures, fmt.Sprintf(
			"verdict: expected %s, got %s", sc.Expect.Verdict, res.Decision.Verdict))
	}
	if sc.Expect.Score != nil && res.Decision.Score != *sc.Expect.Score {
		failures = append(failures, fmt.Sprintf(
			"score: expected %d, got %d", *sc.Expect.Score, res.Decision.Score))
	}

	for _, ce := range sc.Expect.Clauses {
		found := false
		for _, cr := range res.Clauses {
			if string(cr.Kind) != ce.Kind || cr.Expression != ce.Expression {
				continue
			}
			found = true
			if string(cr.Status) != ce.Status {
				failures = append(failures, fmt.Sprintf(
					"clause %s %q: expected %s, got %s", ce.Kind, ce.Expression, ce.Status, cr.Status))
			}
			break
		}
		if !found {
			failures = append(failures, fmt.Sprintf(
				"clause %s %q: not found in results", ce.Kind, ce.Expression))
		}
	}
	return failures
}

// statusCounts is a convenience for scenario assertions.
func statusCounts(res *pipeline.Result) map[ir.Status]int {
	out := make(map[ir.Status]int, 3)
	for _, cr := range res.Clauses {
		out[cr.Status]++
	}
	return out
}
