package evaluate

import (
	"fmt"

	"github.com/trivetlabs/trivet/internal/ir"
	"github.com/trivetlabs/trivet/internal/trace"
)

// Task pairs a clause with the trace slice it must hold over. Trace
// selection (which outcomes apply to which clause kind) is the
// pipeline's decision; combination semantics live here.
type Task struct {
	Clause ir.Clause
	Traces []trace.ExecutionTrace
}

// EvaluateTask checks a clause against every applicable trace and
// combines the per-trace outcomes:
//
//   - any REFUTED trace refutes the clause - a real counterexample is
//     the strongest finding and searching further adds nothing
//   - otherwise any UNKNOWN trace leaves the clause UNKNOWN, carrying
//     the first unresolved construct encountered
//   - otherwise every trace proves the clause, and it is PROVEN
//   - no applicable traces at all is UNKNOWN (insufficient_traces):
//     absence of evidence never proves anything
func EvaluateTask(t Task) ir.ClauseResult {
	if len(t.Traces) == 0 {
		res := ir.NewEvaluatedResult(t.Clause, ir.StatusUnknown)
		res.Behavior = behaviorLabel(t.Clause)
		res.UnknownReason = &ir.UnknownReason{
			Category: ir.UnknownInsufficientTraces,
			Detail:   fmt.Sprintf("no execution traces recorded for scope %q", t.Clause.Scope),
		}
		return res
	}

	var (
		firstUnknown *ir.UnknownReason
		unknownTrace trace.ExecutionTrace
		evidence     []ir.EvidenceRef
	)

	for _, tr := range t.Traces {
		outcome := Evaluate(t.Clause, trace.DeriveBindings(tr))
		switch outcome.Status {
		case ir.StatusRefuted:
			res := ir.NewEvaluatedResult(t.Clause, ir.StatusRefuted)
			res.Behavior = tr.Behavior
			res.Outcome = tr.Outcome
			res.Violation = outcome.Violation
			return res.AddEvidence(traceEvidence(tr))

		case ir.StatusUnknown:
			if firstUnknown == nil {
				firstUnknown = outcome.Reason
				unknownTrace = tr
			}

		case ir.StatusProven:
			evidence = append(evidence, traceEvidence(tr))
		}
	}

	if firstUnknown != nil {
		res := ir.NewEvaluatedResult(t.Clause, ir.StatusUnknown)
		res.Behavior = unknownTrace.Behavior
		res.Outcome = unknownTrace.Outcome
		res.UnknownReason = firstUnknown
		return res.AddEvidence(traceEvidence(unknownTrace))
	}

	res := ir.NewEvaluatedResult(t.Clause, ir.StatusProven)
	res.Behavior = t.Traces[0].Behavior
	res.Outcome = t.Traces[0].Outcome
	return res.AddEvidence(evidence...)
}

func traceEvidence(tr trace.ExecutionTrace) ir.EvidenceRef {
	return ir.EvidenceRef{
		Kind:   ir.EvidenceTrace,
		ID:     tr.TraceID,
		Detail: fmt.Sprintf("%s/%s", tr.Behavior, tr.Outcome),
	}
}

func behaviorLabel(c ir.Clause) string {
	if c.Scope == ir.GlobalScope {
		return ""
	}
	return c.Scope
}
