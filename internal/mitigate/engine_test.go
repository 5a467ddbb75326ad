package mitigate

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trivetlabs/trivet/internal/evaluate"
	"github.com/trivetlabs/trivet/internal/ir"
	"github.com/trivetlabs/trivet/internal/trace"
)

func testEngine() *Engine {
	return NewEngine(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func postcondition(expr string) ir.Clause {
	return ir.Clause{
		ID:         "c-" + expr,
		Kind:       ir.KindPostcondition,
		Scope:      "CreateUser",
		Expression: expr,
	}
}

func successTrace(id string, outputs map[string]any) trace.ExecutionTrace {
	return trace.ExecutionTrace{
		TraceID:  id,
		Behavior: "CreateUser",
		Outcome:  trace.OutcomeSuccess,
		Outputs:  outputs,
	}
}

func evaluated(c ir.Clause, traces []trace.ExecutionTrace) ir.ClauseResult {
	return evaluate.EvaluateTask(evaluate.Task{Clause: c, Traces: traces})
}

func TestSuggestPlans(t *testing.T) {
	tests := []struct {
		category ir.UnknownCategory
		want     []ir.MitigationKind
	}{
		{ir.UnknownMissingBinding, []ir.MitigationKind{
			ir.MitigationRuntimeSampling, ir.MitigationSMTRetry, ir.MitigationAddBindings}},
		{ir.UnknownUnboundedQuantifier, []ir.MitigationKind{
			ir.MitigationConstraintSlicing, ir.MitigationSMTRetry}},
		{ir.UnknownUnsupportedOperator, []ir.MitigationKind{
			ir.MitigationConstraintSlicing, ir.MitigationSMTRetry}},
		{ir.UnknownInsufficientTraces, []ir.MitigationKind{
			ir.MitigationFallbackCheck, ir.MitigationSMTRetry}},
		{ir.UnknownOther, []ir.MitigationKind{ir.MitigationSMTRetry}},
		{ir.UnknownSMTTimeout, nil},
	}
	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			assert.Equal(t, tt.want, Suggest(tt.category))
		})
	}
}

func TestResolvePassesThroughDecidedClauses(t *testing.T) {
	c := postcondition(`result.status == "ACTIVE"`)
	traces := []trace.ExecutionTrace{successTrace("t1", map[string]any{"status": "ACTIVE"})}
	current := evaluated(c, traces)
	require.Equal(t, ir.StatusProven, current.Status)

	got, report := testEngine().Resolve(context.Background(), Request{
		Clause: c, Current: current, Traces: traces, Store: trace.NewStore(traces),
	})

	assert.Equal(t, current, got)
	assert.False(t, report.Resolved)
	assert.Empty(t, report.Attempted)
}

func TestRuntimeSamplingResolvesMissingBinding(t *testing.T) {
	c := postcondition(`result.token.ttl > 0`)
	// t1 never recorded the token; t2 did. Sampling borrows t2's value.
	traces := []trace.ExecutionTrace{
		successTrace("t1", map[string]any{"status": "ACTIVE"}),
	}
	store := trace.NewStore(append(traces,
		successTrace("t2", map[string]any{"token": map[string]any{"ttl": 3600}})))

	current := evaluated(c, traces)
	require.Equal(t, ir.StatusUnknown, current.Status)
	require.Equal(t, ir.UnknownMissingBinding, current.UnknownReason.Category)

	got, report := testEngine().Resolve(context.Background(), Request{
		Clause: c, Current: current, Traces: traces, Store: store,
	})

	require.True(t, report.Resolved)
	assert.Equal(t, ir.MitigationRuntimeSampling, report.Applied)
	assert.Equal(t, ir.StatusProven, got.Status)
	assert.Equal(t, ir.PhaseFinal, got.Phase)
	assert.Equal(t, ir.ResolvedByMitigation, got.ResolvedBy)

	var sampledFrom []string
	for _, ref := range got.EvidenceRefs {
		sampledFrom = append(sampledFrom, ref.ID)
	}
	assert.Contains(t, sampledFrom, "t2", "donor trace must be cited as evidence")
}

func TestRuntimeSamplingNoDonorLeavesUnknown(t *testing.T) {
	c := postcondition(`result.token.ttl > 0`)
	traces := []trace.ExecutionTrace{successTrace("t1", map[string]any{"status": "ACTIVE"})}

	current := evaluated(c, traces)
	got, report := testEngine().Resolve(context.Background(), Request{
		Clause: c, Current: current, Traces: traces, Store: trace.NewStore(traces),
	})

	assert.False(t, report.Resolved)
	assert.Equal(t, ir.StatusUnknown, got.Status)
	assert.Equal(t, ir.PhaseMitigationAttempted, got.Phase)
	assert.Equal(t, []ir.MitigationKind{
		ir.MitigationRuntimeSampling, ir.MitigationSMTRetry, ir.MitigationAddBindings,
	}, got.UnknownReason.SuggestedMitigations)
}

func TestFallbackCheckWidensToAllOutcomes(t *testing.T) {
	c := postcondition(`result.status != "DELETED"`)
	all := []trace.ExecutionTrace{
		{TraceID: "t1", Behavior: "CreateUser", Outcome: "validation_error",
			Outputs: map[string]any{"status": "REJECTED"}},
		{TraceID: "t2", Behavior: "CreateUser", Outcome: "timeout",
			Outputs: map[string]any{"status": "PENDING"}},
	}
	store := trace.NewStore(all)

	// The postcondition saw no successful traces at all.
	current := evaluated(c, nil)
	require.Equal(t, ir.UnknownInsufficientTraces, current.UnknownReason.Category)

	got, report := testEngine().Resolve(context.Background(), Request{
		Clause: c, Current: current, Store: store,
	})

	require.True(t, report.Resolved)
	assert.Equal(t, ir.MitigationFallbackCheck, report.Applied)
	assert.Equal(t, ir.StatusProven, got.Status)
	assert.Len(t, got.EvidenceRefs, 2)
}

func TestFallbackCheckRequiresUnanimity(t *testing.T) {
	c := postcondition(`result.status == "ACTIVE"`)
	store := trace.NewStore([]trace.ExecutionTrace{
		{TraceID: "t1", Behavior: "CreateUser", Outcome: "validation_error",
			Outputs: map[string]any{"status": "REJECTED"}},
	})

	current := evaluated(c, nil)
	got, report := testEngine().Resolve(context.Background(), Request{
		Clause: c, Current: current, Store: store,
	})

	// A refutation from a failed execution is not a counterexample for a
	// success postcondition; the clause stays UNKNOWN.
	assert.False(t, report.Resolved)
	assert.Equal(t, ir.StatusUnknown, got.Status)
}

func TestConstraintSlicingRefutesThroughUnsupportedConjunct(t *testing.T) {
	c := postcondition(`result.status == "ACTIVE" && forall s in sessions: s.valid`)
	traces := []trace.ExecutionTrace{successTrace("t1", map[string]any{"status": "PENDING"})}

	current := evaluated(c, traces)
	require.Equal(t, ir.StatusUnknown, current.Status)
	require.Equal(t, ir.UnknownUnboundedQuantifier, current.UnknownReason.Category)

	got, report := testEngine().Resolve(context.Background(), Request{
		Clause: c, Current: current, Traces: traces, Store: trace.NewStore(traces),
	})

	// The first conjunct alone is a counterexample; the undecidable
	// quantifier no longer matters.
	require.True(t, report.Resolved)
	assert.Equal(t, ir.MitigationConstraintSlicing, report.Applied)
	assert.Equal(t, ir.StatusRefuted, got.Status)
	require.NotNil(t, got.Violation)
	assert.Equal(t, "PENDING", got.Violation.Actual)
}

func TestConstraintSlicingUndecidableConjunctStaysUnknown(t *testing.T) {
	c := postcondition(`result.status == "ACTIVE" && forall s in sessions: s.valid`)
	traces := []trace.ExecutionTrace{successTrace("t1", map[string]any{"status": "ACTIVE"})}

	current := evaluated(c, traces)
	got, report := testEngine().Resolve(context.Background(), Request{
		Clause: c, Current: current, Traces: traces, Store: trace.NewStore(traces),
	})

	assert.False(t, report.Resolved)
	assert.Equal(t, ir.StatusUnknown, got.Status)
	assert.Contains(t, report.Attempted, ir.MitigationConstraintSlicing)
}

func TestResolveIsIdempotentPerClause(t *testing.T) {
	c := postcondition(`result.token.ttl > 0`)
	traces := []trace.ExecutionTrace{successTrace("t1", map[string]any{"status": "ACTIVE"})}

	current := evaluated(c, traces)
	engine := testEngine()
	attempted, _ := engine.Resolve(context.Background(), Request{
		Clause: c, Current: current, Traces: traces, Store: trace.NewStore(traces),
	})
	require.Equal(t, ir.PhaseMitigationAttempted, attempted.Phase)

	// A second replacement attempt is rejected by the phase guard and
	// the result is returned unchanged.
	_, err := attempted.WithMitigation(ir.ClauseResult{}, true)
	assert.Error(t, err)
}

type panicStrategy struct{}

func (panicStrategy) Kind() ir.MitigationKind { return ir.MitigationRuntimeSampling }
func (panicStrategy) Apply(context.Context, Request) (ir.ClauseResult, bool) {
	panic("strategy bug")
}

func TestResolveSurvivesPanickingStrategy(t *testing.T) {
	engine := testEngine()
	engine.strategies[ir.MitigationRuntimeSampling] = panicStrategy{}

	c := postcondition(`result.token.ttl > 0`)
	traces := []trace.ExecutionTrace{successTrace("t1", map[string]any{"status": "ACTIVE"})}
	current := evaluated(c, traces)

	got, report := engine.Resolve(context.Background(), Request{
		Clause: c, Current: current, Traces: traces, Store: trace.NewStore(traces),
	})

	assert.False(t, report.Resolved)
	assert.Equal(t, ir.StatusUnknown, got.Status)
	assert.Contains(t, report.Attempted, ir.MitigationRuntimeSampling)
}

type scriptedStrategy struct {
	kind   ir.MitigationKind
	decide bool
	calls  *[]ir.MitigationKind
}

func (s scriptedStrategy) Kind() ir.MitigationKind { return s.kind }

func (s scriptedStrategy) Apply(_ context.Context, req Request) (ir.ClauseResult, bool) {
	*s.calls = append(*s.calls, s.kind)
	if !s.decide {
		return req.Current, false
	}
	res := req.Current
	res.Status = ir.StatusProven
	res.UnknownReason = nil
	return res, true
}

func TestResolveStopsAtFirstDecidingStrategy(t *testing.T) {
	// Three auto-applicable strategies in plan order: the first declines,
	// the second decides, the third must never run.
	restore := plans[ir.UnknownOther]
	plans[ir.UnknownOther] = []ir.MitigationKind{
		ir.MitigationRuntimeSampling, ir.MitigationFallbackCheck, ir.MitigationConstraintSlicing,
	}
	t.Cleanup(func() { plans[ir.UnknownOther] = restore })

	var calls []ir.MitigationKind
	engine := testEngine()
	engine.strategies[ir.MitigationRuntimeSampling] = scriptedStrategy{
		kind: ir.MitigationRuntimeSampling, calls: &calls}
	engine.strategies[ir.MitigationFallbackCheck] = scriptedStrategy{
		kind: ir.MitigationFallbackCheck, decide: true, calls: &calls}
	engine.strategies[ir.MitigationConstraintSlicing] = scriptedStrategy{
		kind: ir.MitigationConstraintSlicing, calls: &calls}

	c := postcondition(`result.checksum == result.expected_checksum`)
	current := ir.NewEvaluatedResult(c, ir.StatusUnknown)
	current.UnknownReason = &ir.UnknownReason{Category: ir.UnknownOther, Detail: "evaluator stalled"}

	got, report := engine.Resolve(context.Background(), Request{Clause: c, Current: current})

	assert.Equal(t, []ir.MitigationKind{
		ir.MitigationRuntimeSampling, ir.MitigationFallbackCheck,
	}, calls, "plan order is attempt order, ending at the first decision")
	assert.Equal(t, calls, report.Attempted)
	assert.Equal(t, ir.MitigationFallbackCheck, report.Applied)
	assert.True(t, report.Resolved)
	assert.Equal(t, ir.StatusProven, got.Status)
	assert.Equal(t, ir.PhaseFinal, got.Phase)
}

func TestTextualConjunctSplit(t *testing.T) {
	tests := []struct {
		expr string
		want []string
	}{
		{`a && b`, []string{"a", "b"}},
		{`a && (b && c)`, []string{"a", "(b && c)"}},
		{`x == "a && b" && y`, []string{`x == "a && b"`, "y"}},
		{`single`, []string{"single"}},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			assert.Equal(t, tt.want, textualConjuncts(tt.expr))
		})
	}
}
