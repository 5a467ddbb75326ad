package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/trivetlabs/trivet/internal/trace"
	"github.com/trivetlabs/trivet/internal/verdict"
)

// TestRunner executes the implementation's own test suite and reports
// the tally. The pipeline only consumes the summary; how the tests run
// (subprocess, harness, CI artifact) is the runner's business.
type TestRunner interface {
	RunTests(ctx context.Context) (verdict.TestSummary, error)
}

// StaticTestSummary is a TestRunner that reports a pre-recorded tally.
// Used when the suite already ran elsewhere (CI) and for scenarios.
type StaticTestSummary verdict.TestSummary

func (s StaticTestSummary) RunTests(context.Context) (verdict.TestSummary, error) {
	return validTally(verdict.TestSummary(s))
}

func validTally(sum verdict.TestSummary) (verdict.TestSummary, error) {
	if sum.Total < sum.Passed+sum.Failed {
		return verdict.TestSummary{}, fmt.Errorf("test summary: %d passed + %d failed exceeds %d total",
			sum.Passed, sum.Failed, sum.Total)
	}
	return sum, nil
}

// FileTestSummary is a TestRunner that loads the tally an external
// runner wrote to disk ({total, passed, failed} YAML). This is how real
// runs feed CI test results into the pipeline.
type FileTestSummary string

func (f FileTestSummary) RunTests(context.Context) (verdict.TestSummary, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return verdict.TestSummary{}, fmt.Errorf("read test summary: %w", err)
	}

	var sum verdict.TestSummary
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sum); err != nil {
		return verdict.TestSummary{}, fmt.Errorf("parse test summary %s: %w", f, err)
	}
	return validTally(sum)
}

// TraceSource supplies execution traces to the collector stage.
type TraceSource interface {
	Traces(ctx context.Context) ([]trace.ExecutionTrace, error)
}

// DirTraceSource loads every trace document from a directory.
type DirTraceSource string

func (d DirTraceSource) Traces(ctx context.Context) ([]trace.ExecutionTrace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return trace.LoadDir(string(d))
}

// StaticTraces is a TraceSource over an in-memory slice, for tests and
// scenarios.
type StaticTraces []trace.ExecutionTrace

func (s StaticTraces) Traces(context.Context) ([]trace.ExecutionTrace, error) {
	return append([]trace.ExecutionTrace(nil), s...), nil
}

// BundleSink persists a finished run. Implemented by the bundle store;
// the pipeline only knows the interface so storage stays swappable.
type BundleSink interface {
	WriteBundle(ctx context.Context, res *Result) error
}
