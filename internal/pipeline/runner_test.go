package pipeline

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trivetlabs/trivet/internal/ir"
	"github.com/trivetlabs/trivet/internal/smt"
	"github.com/trivetlabs/trivet/internal/trace"
	"github.com/trivetlabs/trivet/internal/verdict"
)

const userSpec = `{
  "domain": "UserService",
  "version": "1.2.0",
  "behaviors": [
    {
      "name": "CreateUser",
      "preconditions": ["input.email != \"\""],
      "postconditions": ["result.status == \"ACTIVE\""]
    }
  ],
  "global_invariants": ["state.user_count >= 0"]
}`

func writeSpec(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spec.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testConfig(t *testing.T, specFile string) *Config {
	cfg := &Config{
		SpecFile:         specFile,
		TraceDir:         t.TempDir(),
		ViolationPenalty: -1,
	}
	cfg.Default()
	return cfg
}

type fixedRunIDs struct{ id string }

func (f fixedRunIDs) NewRunID() string { return f.id }

func fixedClock() func() time.Time {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time { return base }
}

func newTestRunner(t *testing.T, cfg *Config, opts ...Option) *Runner {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{
		WithRunIDGenerator(fixedRunIDs{id: "run-test"}),
		WithClock(fixedClock()),
	}, opts...)
	return NewRunner(log, cfg, opts...)
}

func goodTraces() StaticTraces {
	return StaticTraces{
		{
			TraceID:  "t1",
			Behavior: "CreateUser",
			Outcome:  trace.OutcomeSuccess,
			Inputs:   map[string]any{"email": "a@example.com"},
			Outputs:  map[string]any{"status": "ACTIVE"},
			State:    map[string]any{"user_count": 1},
		},
	}
}

func TestRunAllProven(t *testing.T) {
	cfg := testConfig(t, writeSpec(t, userSpec))
	r := newTestRunner(t, cfg,
		WithTestRunner(StaticTestSummary{Total: 4, Passed: 4}),
		WithTraceSource(goodTraces()),
	)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	require.False(t, res.Failed())

	assert.Equal(t, "run-test", res.RunID)
	assert.Equal(t, "UserService", res.Domain)
	assert.NotEmpty(t, res.SpecHash)
	assert.Equal(t, ir.VerdictProven, res.Decision.Verdict)
	assert.Equal(t, 100, res.Decision.Score)

	require.Len(t, res.Clauses, 3)
	for _, c := range res.Clauses {
		assert.Equal(t, ir.StatusProven, c.Status)
		assert.Equal(t, ir.PhaseFinal, c.Phase)
	}
}

func TestRunStageOrder(t *testing.T) {
	cfg := testConfig(t, writeSpec(t, userSpec))
	r := newTestRunner(t, cfg, WithTraceSource(goodTraces()))

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	var names []string
	for _, s := range res.Stages {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{
		StageSetup, StageTestRunner, StageTraceCollector,
		StagePostconditions, StageInvariants, StageSMT, StageProofBundle,
	}, names)

	// Optional stages without collaborators are skipped, not failed.
	assert.Equal(t, StageSkipped, res.Stages[5].Status)
	assert.Equal(t, StageSkipped, res.Stages[6].Status)
}

func TestRunRefutedClauseFails(t *testing.T) {
	cfg := testConfig(t, writeSpec(t, userSpec))
	traces := goodTraces()
	traces[0].Outputs = map[string]any{"status": "PENDING"}

	r := newTestRunner(t, cfg, WithTraceSource(traces))
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ir.VerdictFailed, res.Decision.Verdict)
	assert.Equal(t, 1, res.Decision.Counts.Refuted)

	var refuted *ir.ClauseResult
	for i := range res.Clauses {
		if res.Clauses[i].Status == ir.StatusRefuted {
			refuted = &res.Clauses[i]
		}
	}
	require.NotNil(t, refuted)
	require.NotNil(t, refuted.Violation)
	assert.Equal(t, "ACTIVE", refuted.Violation.Expected)
	assert.Equal(t, "PENDING", refuted.Violation.Actual)
}

func TestRunEvaluatesRawValuesAndPublishesRedacted(t *testing.T) {
	// One precondition matches the recorded address exactly, the other
	// demands a different one. The first must come back PROVEN - the
	// comparison runs on the raw evidence - while the second's published
	// violation must carry masked values only.
	specJSON := `{
	  "domain": "UserService",
	  "version": "1.0.0",
	  "behaviors": [
	    {
	      "name": "CreateUser",
	      "preconditions": [
	        "input.email == \"a@example.com\"",
	        "input.email == \"zed@example.com\""
	      ]
	    }
	  ]
	}`
	cfg := testConfig(t, writeSpec(t, specJSON))
	r := newTestRunner(t, cfg, WithTraceSource(goodTraces()))

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Clauses, 2)

	matched := res.Clauses[0]
	assert.Equal(t, ir.StatusProven, matched.Status)
	assert.Nil(t, matched.Violation)

	mismatched := res.Clauses[1]
	require.Equal(t, ir.StatusRefuted, mismatched.Status)
	require.NotNil(t, mismatched.Violation)
	assert.Equal(t, "z**@example.com", mismatched.Violation.Expected)
	assert.Equal(t, "*@example.com", mismatched.Violation.Actual)
}

func TestRunUnresolvedUnknownIsIncomplete(t *testing.T) {
	cfg := testConfig(t, writeSpec(t, userSpec))
	traces := goodTraces()
	traces[0].State = nil // global invariant loses its evidence

	r := newTestRunner(t, cfg, WithTraceSource(traces))
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ir.VerdictIncomplete, res.Decision.Verdict)
	assert.Equal(t, 1, res.Decision.Counts.Unknown)

	var unknown *ir.ClauseResult
	for i := range res.Clauses {
		if res.Clauses[i].Status == ir.StatusUnknown {
			unknown = &res.Clauses[i]
		}
	}
	require.NotNil(t, unknown)
	require.NotNil(t, unknown.UnknownReason)
	assert.Equal(t, ir.UnknownMissingBinding, unknown.UnknownReason.Category)
	assert.NotEmpty(t, unknown.UnknownReason.SuggestedMitigations)
	assert.NotEmpty(t, res.Reports, "the mitigation attempt is on the record")
}

func TestRunFailingTestsDominate(t *testing.T) {
	cfg := testConfig(t, writeSpec(t, userSpec))
	sink := &recordingSink{}
	r := newTestRunner(t, cfg,
		WithTestRunner(StaticTestSummary{Total: 4, Passed: 3, Failed: 1}),
		WithTraceSource(goodTraces()),
		WithBundleSink(sink),
	)

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ir.VerdictFailed, res.Decision.Verdict)
	assert.Equal(t, 0, res.Decision.Score)

	// A failing suite ends the proof right after the test runner: no
	// clause is ever evaluated and the remaining stages go on record as
	// skipped, not run.
	assert.Empty(t, res.Clauses)
	assert.Equal(t, 0, res.Decision.Counts.Total)
	require.Len(t, res.Stages, 7)
	assert.Equal(t, StageOK, res.Stages[1].Status)
	for _, s := range res.Stages[2:6] {
		assert.Equal(t, StageSkipped, s.Status, s.Name)
	}

	// The failure is still bundled for audit.
	require.NotNil(t, sink.got)
	assert.Equal(t, ir.VerdictFailed, sink.got.Decision.Verdict)
	assert.Equal(t, 1, sink.got.Decision.Tests.Failed)
}

func TestRunSMTStageResolvesUnknown(t *testing.T) {
	cfg := testConfig(t, writeSpec(t, userSpec))
	traces := goodTraces()
	traces[0].State = nil

	globalID := ir.MustClauseID(ir.GlobalScope, ir.KindInvariant, 0, `state.user_count >= 0`)
	oracle := smt.NewFixtureOracle("z3", map[string]smt.Response{
		globalID: {Result: smt.ResultProven, Evidence: "unsat (negation)"},
	})
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := newTestRunner(t, cfg,
		WithTraceSource(traces),
		WithEscalator(smt.NewEscalator(log, oracle, nil, time.Second)),
	)
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ir.VerdictProven, res.Decision.Verdict)
	assert.Equal(t, 100, res.Decision.Score)

	var solved *ir.ClauseResult
	for i := range res.Clauses {
		if res.Clauses[i].ClauseID == globalID {
			solved = &res.Clauses[i]
		}
	}
	require.NotNil(t, solved)
	assert.Equal(t, ir.ResolvedBySolver, solved.ResolvedBy)
	require.NotNil(t, solved.SolverEvidence)
	assert.Equal(t, "z3", solved.SolverEvidence.Solver)
}

func TestRunInvalidSpecStopsAtSetup(t *testing.T) {
	cfg := testConfig(t, writeSpec(t, `{"behaviors": []}`))
	r := newTestRunner(t, cfg, WithTraceSource(goodTraces()))

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Failed())
	assert.Equal(t, ir.VerdictFailed, res.Decision.Verdict)
	require.Len(t, res.Stages, 1)
	assert.Equal(t, StageSetup, res.Stages[0].Name)
	assert.Equal(t, StageFailed, res.Stages[0].Status)
	assert.Equal(t, CategorySpec, res.Stages[0].Category)
}

type recordingSink struct {
	got *Result
}

func (s *recordingSink) WriteBundle(_ context.Context, res *Result) error {
	s.got = res
	return nil
}

func TestRunBundleSinkSeesDecision(t *testing.T) {
	cfg := testConfig(t, writeSpec(t, userSpec))
	sink := &recordingSink{}
	r := newTestRunner(t, cfg, WithTraceSource(goodTraces()), WithBundleSink(sink))

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, sink.got)
	assert.Equal(t, res.RunID, sink.got.RunID)
	assert.Equal(t, ir.VerdictProven, sink.got.Decision.Verdict)
	assert.Len(t, sink.got.Clauses, 3)
}

func TestRunDeterministic(t *testing.T) {
	cfg := testConfig(t, writeSpec(t, userSpec))

	run := func() *Result {
		r := newTestRunner(t, cfg, WithTraceSource(goodTraces()))
		res, err := r.Run(context.Background())
		require.NoError(t, err)
		return res
	}

	first := run()
	for i := 0; i < 3; i++ {
		if diff := cmp.Diff(first, run()); diff != "" {
			t.Fatalf("run results diverged (-first +again):\n%s", diff)
		}
	}
}

func TestRunHooksObserveStages(t *testing.T) {
	cfg := testConfig(t, writeSpec(t, userSpec))

	var before, after []string
	hooks := Hooks{
		BeforeStage: func(name string) {
			before = append(before, name)
			panic("observer bug") // must not disturb the run
		},
		AfterStage: func(rec StageRecord) { after = append(after, rec.Name) },
	}

	r := newTestRunner(t, cfg, WithTraceSource(goodTraces()), WithHooks(hooks))
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ir.VerdictProven, res.Decision.Verdict)
	assert.Len(t, before, 7)
	assert.Equal(t, before, after)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trivet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`spec: spec.json
traces: traces/
test_summary: results.yaml
workers: 4
smt:
  enabled: true
  fixture: solver.yaml
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "results.yaml", cfg.TestSummaryFile)
	assert.Equal(t, verdict.DefaultViolationPenalty, cfg.ViolationPenalty)
	assert.Equal(t, 30*time.Second, cfg.StageTimeout)
	assert.True(t, cfg.SMT.Enabled)
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trivet.yaml")
	require.NoError(t, os.WriteFile(path, []byte("spec: s.json\ntraces: t/\nworker: 4\n"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigKeepsZeroPenalty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trivet.yaml")
	require.NoError(t, os.WriteFile(path, []byte("spec: s.json\ntraces: t/\nviolation_penalty: 0\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.ViolationPenalty)
}

func TestStaticTestSummaryRejectsBadTally(t *testing.T) {
	_, err := StaticTestSummary{Total: 1, Passed: 2}.RunTests(context.Background())
	assert.Error(t, err)
}

func writeSummary(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tests.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileTestSummaryLoads(t *testing.T) {
	path := writeSummary(t, "total: 5\npassed: 4\nfailed: 1\n")

	sum, err := FileTestSummary(path).RunTests(context.Background())
	require.NoError(t, err)
	assert.Equal(t, verdict.TestSummary{Total: 5, Passed: 4, Failed: 1}, sum)
}

func TestFileTestSummaryRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"tally exceeds total", "total: 1\npassed: 2\n"},
		{"unknown key", "total: 1\npassed: 1\nskipped: 1\n"},
		{"not yaml", "{{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FileTestSummary(writeSummary(t, tt.content)).RunTests(context.Background())
			assert.Error(t, err)
		})
	}

	_, err := FileTestSummary(filepath.Join(t.TempDir(), "absent.yaml")).RunTests(context.Background())
	assert.Error(t, err)
}

func TestRunLoadsExternalTestSummary(t *testing.T) {
	cfg := testConfig(t, writeSpec(t, userSpec))
	cfg.TestSummaryFile = writeSummary(t, "total: 3\npassed: 2\nfailed: 1\n")

	r := newTestRunner(t, cfg, WithTraceSource(goodTraces()))
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	// The externally recorded failure drives the verdict.
	assert.Equal(t, verdict.TestSummary{Total: 3, Passed: 2, Failed: 1}, res.Decision.Tests)
	assert.Equal(t, ir.VerdictFailed, res.Decision.Verdict)
	assert.Equal(t, 0, res.Decision.Score)
}

func TestRunStageRecordsCarryTimestamps(t *testing.T) {
	cfg := testConfig(t, writeSpec(t, userSpec))
	tick := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := func() time.Time {
		tick = tick.Add(50 * time.Millisecond)
		return tick
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRunner(log, cfg,
		WithRunIDGenerator(fixedRunIDs{id: "run-test"}),
		WithClock(clock),
		WithTraceSource(goodTraces()),
	)

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	for _, s := range res.Stages {
		assert.False(t, s.StartedAt.IsZero(), s.Name)
		assert.False(t, s.CompletedAt.IsZero(), s.Name)
		assert.False(t, s.CompletedAt.Before(s.StartedAt), s.Name)
		if s.Status == StageOK {
			assert.Equal(t, s.CompletedAt.Sub(s.StartedAt), s.Elapsed, s.Name)
		}
	}
}

type capturingOracle struct {
	name string
	last *smt.Request
}

func (o *capturingOracle) Name() string { return o.name }

func (o *capturingOracle) Check(_ context.Context, req smt.Request) (smt.Response, error) {
	*o.last = req
	return smt.Response{Result: smt.ResultProven, Evidence: "unsat (negation)"}, nil
}

func TestSMTStageSubmitsBindingsOfUndecidedTrace(t *testing.T) {
	c := ir.Clause{
		ID:         "c-inv",
		Kind:       ir.KindInvariant,
		Scope:      ir.GlobalScope,
		Expression: `state.flag == true`,
	}
	st := &state{
		clauses: []ir.Clause{c},
		store: trace.NewStore([]trace.ExecutionTrace{
			{TraceID: "t-first", Behavior: "A", Outcome: trace.OutcomeSuccess,
				Inputs: map[string]any{"origin": "first"}},
			{TraceID: "t-undecided", Behavior: "A", Outcome: trace.OutcomeSuccess,
				Inputs: map[string]any{"origin": "undecided"}},
		}),
		results: map[string]ir.ClauseResult{},
	}
	unknown := ir.NewEvaluatedResult(c, ir.StatusUnknown)
	unknown.UnknownReason = &ir.UnknownReason{Category: ir.UnknownMissingBinding, Detail: "state.flag"}
	unknown = unknown.AddEvidence(ir.EvidenceRef{Kind: ir.EvidenceTrace, ID: "t-undecided"})
	st.results[c.ID] = unknown

	var got smt.Request
	oracle := &capturingOracle{name: "z3", last: &got}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	stage := &smtStage{escalator: smt.NewEscalator(log, oracle, nil, time.Second)}
	require.NoError(t, stage.Run(context.Background(), st))

	// The oracle reasons over the trace whose evaluation left the clause
	// undecided, not whichever applicable trace happens to come first.
	origin, ok := got.Bindings.Lookup([]string{"input", "origin"})
	require.True(t, ok)
	assert.Equal(t, "undecided", origin)

	assert.Equal(t, ir.StatusProven, st.results[c.ID].Status)
}
