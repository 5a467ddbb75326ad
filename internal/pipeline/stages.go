package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/trivetlabs/trivet/internal/evaluate"
	"github.com/trivetlabs/trivet/internal/ir"
	"github.com/trivetlabs/trivet/internal/mitigate"
	"github.com/trivetlabs/trivet/internal/smt"
	"github.com/trivetlabs/trivet/internal/spec"
	"github.com/trivetlabs/trivet/internal/trace"
	"github.com/trivetlabs/trivet/internal/verdict"
)

// state is the shared blackboard the runner threads through stages.
// Only stages write to it, and each field has exactly one writer stage.
type state struct {
	doc      *spec.Document
	specHash string
	clauses  []ir.Clause
	tests    verdict.TestSummary
	store    *trace.Store

	// results is keyed by clause ID; assembled into declaration order
	// when the run finishes.
	results map[string]ir.ClauseResult
	reports []mitigate.Report
}

// selectTraces applies the evidence selection rule for a clause kind:
// postconditions hold over successful executions only, preconditions
// and behavior invariants over every execution of the behavior, global
// invariants over everything.
func (st *state) selectTraces(c ir.Clause) []trace.ExecutionTrace {
	switch {
	case c.Scope == ir.GlobalScope:
		return st.store.All()
	case c.Kind == ir.KindPostcondition:
		return st.store.ByOutcome(c.Scope, trace.OutcomeSuccess)
	default:
		return st.store.ByBehavior(c.Scope)
	}
}

// setupStage loads and schema-validates the specification, extracts
// clauses, and pins the spec hash for the bundle.
type setupStage struct {
	specFile string
}

func (s *setupStage) Name() string   { return StageSetup }
func (s *setupStage) Optional() bool { return false }

func (s *setupStage) Run(_ context.Context, st *state) error {
	doc, err := spec.Load(s.specFile)
	if err != nil {
		return NewSpecError(StageSetup, err)
	}
	hash, err := doc.ContentHash()
	if err != nil {
		return NewInternalError(StageSetup, err)
	}
	clauses, err := spec.ExtractClauses(doc)
	if err != nil {
		return NewSpecError(StageSetup, err)
	}
	for _, c := range clauses {
		if !ir.ValidKind(c.Kind) {
			return NewInternalError(StageSetup, fmt.Errorf("clause %s has kind %q", c.ID, c.Kind))
		}
	}

	st.doc = doc
	st.specHash = hash
	st.clauses = clauses
	st.results = make(map[string]ir.ClauseResult, len(clauses))
	return nil
}

// testRunnerStage obtains the implementation's test suite tally.
type testRunnerStage struct {
	runner TestRunner
}

func (s *testRunnerStage) Name() string   { return StageTestRunner }
func (s *testRunnerStage) Optional() bool { return false }

func (s *testRunnerStage) Run(ctx context.Context, st *state) error {
	summary, err := s.runner.RunTests(ctx)
	if err != nil {
		return NewStageError(StageTestRunner, err)
	}
	st.tests = summary
	return nil
}

// traceCollectorStage ingests execution traces into the read-only
// evidence store.
type traceCollectorStage struct {
	source TraceSource
}

func (s *traceCollectorStage) Name() string   { return StageTraceCollector }
func (s *traceCollectorStage) Optional() bool { return false }

func (s *traceCollectorStage) Run(ctx context.Context, st *state) error {
	traces, err := s.source.Traces(ctx)
	if err != nil {
		return NewSpecError(StageTraceCollector, err)
	}
	st.store = trace.NewStore(traces)
	return nil
}

// evaluatorStage evaluates one family of clause kinds and runs the
// mitigation plan on whatever comes back UNKNOWN. The postcondition
// evaluator and invariant checker are the same machinery pointed at
// different kinds.
type evaluatorStage struct {
	name    string
	kinds   []ir.ClauseKind
	workers int
	engine  *mitigate.Engine
	log     *slog.Logger
}

func newPostconditionStage(log *slog.Logger, engine *mitigate.Engine, workers int) *evaluatorStage {
	return &evaluatorStage{
		name:    StagePostconditions,
		kinds:   []ir.ClauseKind{ir.KindPrecondition, ir.KindPostcondition},
		workers: workers,
		engine:  engine,
		log:     log,
	}
}

func newInvariantStage(log *slog.Logger, engine *mitigate.Engine, workers int) *evaluatorStage {
	return &evaluatorStage{
		name:    StageInvariants,
		kinds:   []ir.ClauseKind{ir.KindInvariant},
		workers: workers,
		engine:  engine,
		log:     log,
	}
}

func (s *evaluatorStage) Name() string   { return s.name }
func (s *evaluatorStage) Optional() bool { return false }

func (s *evaluatorStage) Run(ctx context.Context, st *state) error {
	var mine []ir.Clause
	for _, kind := range s.kinds {
		mine = append(mine, spec.FilterByKind(st.clauses, kind)...)
	}
	if len(mine) == 0 {
		return nil
	}

	tasks := make([]evaluate.Task, len(mine))
	for i, c := range mine {
		tasks[i] = evaluate.Task{Clause: c, Traces: st.selectTraces(c)}
	}

	results := evaluate.EvaluateAll(ctx, tasks, s.workers)

	for i, res := range results {
		if res.Status == ir.StatusUnknown {
			resolved, report := s.engine.Resolve(ctx, mitigate.Request{
				Clause:  mine[i],
				Current: res,
				Traces:  tasks[i].Traces,
				Store:   st.store,
			})
			res = resolved
			st.reports = append(st.reports, report)
		}
		st.results[res.ClauseID] = res
		s.log.Debug("clause evaluated",
			"stage", s.name, "clause", res.ClauseID, "status", res.Status, "phase", res.Phase)
	}
	return nil
}

// smtStage escalates still-undecided clauses to the solver oracle.
type smtStage struct {
	escalator *smt.Escalator
}

func (s *smtStage) Name() string   { return StageSMT }
func (s *smtStage) Optional() bool { return true }

func (s *smtStage) Run(ctx context.Context, st *state) error {
	if s.escalator == nil {
		return nil
	}
	for _, c := range st.clauses {
		res, ok := st.results[c.ID]
		if !ok || res.Status != ir.StatusUnknown || res.Phase == ir.PhaseFinal {
			continue
		}
		st.results[c.ID] = s.escalator.Escalate(ctx, c, res, escalationBindings(st, c, res))
	}
	return nil
}

// escalationBindings picks the evidence handed to the solver: the trace
// whose evaluation produced the UNKNOWN (cited in the result's evidence
// refs), so the oracle reasons over the very data that failed to decide
// the clause. Falls back to the first applicable trace.
func escalationBindings(st *state, c ir.Clause, res ir.ClauseResult) trace.Bindings {
	traces := st.selectTraces(c)
	if len(traces) == 0 {
		return trace.Bindings{}
	}
	for _, ref := range res.EvidenceRefs {
		if ref.Kind != ir.EvidenceTrace {
			continue
		}
		for _, tr := range traces {
			if tr.TraceID == ref.ID {
				return trace.DeriveBindings(tr)
			}
		}
	}
	return trace.DeriveBindings(traces[0])
}

// bundleStage persists the assembled run. The runner has already
// finalized the clause results and computed the decision by the time
// this stage runs; all that is left is handing the bundle to the sink.
type bundleStage struct {
	sink BundleSink
	res  *Result
}

func (s *bundleStage) Name() string   { return StageProofBundle }
func (s *bundleStage) Optional() bool { return true }

func (s *bundleStage) Run(ctx context.Context, _ *state) error {
	if s.sink == nil {
		return nil
	}
	if err := s.sink.WriteBundle(ctx, s.res); err != nil {
		return NewStageError(StageProofBundle, err)
	}
	return nil
}

// assembleClauses orders results by clause declaration order.
func assembleClauses(st *state) []ir.ClauseResult {
	out := make([]ir.ClauseResult, 0, len(st.clauses))
	for _, c := range st.clauses {
		if res, ok := st.results[c.ID]; ok {
			out = append(out, res)
		}
	}
	return out
}
