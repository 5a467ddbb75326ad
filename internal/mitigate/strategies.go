package mitigate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"

	"github.com/trivetlabs/trivet/internal/evaluate"
	"github.com/trivetlabs/trivet/internal/ir"
	"github.com/trivetlabs/trivet/internal/trace"
)

// Request carries everything a strategy may consult. Strategies read
// from the store but never write to it.
type Request struct {
	Clause  ir.Clause
	Current ir.ClauseResult
	Traces  []trace.ExecutionTrace
	Store   *trace.Store
}

// Strategy attempts to decide an UNKNOWN clause. The bool reports
// whether the returned result is a decision; false means the original
// result stands and the next strategy in the plan runs.
type Strategy interface {
	Kind() ir.MitigationKind
	Apply(ctx context.Context, req Request) (ir.ClauseResult, bool)
}

// runtimeSampling fills missing bindings with values observed in other
// traces of the same behavior, then re-evaluates.
//
// Only recorded values are borrowed, never synthesized ones, and donors
// are scanned in sorted trace-ID order so the sample is deterministic.
type runtimeSampling struct{}

func (runtimeSampling) Kind() ir.MitigationKind { return ir.MitigationRuntimeSampling }

func (runtimeSampling) Apply(_ context.Context, req Request) (ir.ClauseResult, bool) {
	if req.Store == nil || len(req.Traces) == 0 {
		return req.Current, false
	}
	donors := sampleDonors(req)

	var (
		proven   []ir.EvidenceRef
		decided  = true
		sampled  bool
		violated *ir.ClauseResult
	)
	for _, tr := range req.Traces {
		bindings := trace.DeriveBindings(tr)
		missing, ok := evaluate.MissingPaths(req.Clause.Expression, bindings)
		if !ok {
			return req.Current, false
		}

		var refs []ir.EvidenceRef
		if len(missing) > 0 {
			bindings = bindings.Clone()
			for _, path := range missing {
				value, donor, found := sampleValue(donors, tr.TraceID, path)
				if !found {
					return req.Current, false
				}
				bindings.Set(path, value)
				refs = append(refs, ir.EvidenceRef{
					Kind:   ir.EvidenceTrace,
					ID:     donor,
					Detail: fmt.Sprintf("sampled %s", strings.Join(path, ".")),
				})
				sampled = true
			}
		}

		outcome := evaluate.Evaluate(req.Clause, bindings)
		switch outcome.Status {
		case ir.StatusRefuted:
			res := ir.NewEvaluatedResult(req.Clause, ir.StatusRefuted)
			res.Behavior = tr.Behavior
			res.Outcome = tr.Outcome
			res.Violation = outcome.Violation
			res = res.AddEvidence(append(refs, traceRef(tr, ""))...)
			violated = &res
		case ir.StatusProven:
			proven = append(proven, append(refs, traceRef(tr, ""))...)
		default:
			decided = false
		}
		if violated != nil {
			break
		}
	}

	// Without at least one borrowed value this is just re-evaluation,
	// which cannot change anything the evaluator already said.
	if !sampled {
		return req.Current, false
	}
	if violated != nil {
		return *violated, true
	}
	if !decided {
		return req.Current, false
	}
	res := ir.NewEvaluatedResult(req.Clause, ir.StatusProven)
	res.Behavior = req.Traces[0].Behavior
	res.Outcome = req.Traces[0].Outcome
	return res.AddEvidence(proven...), true
}

// sampleDonors returns the candidate traces to borrow values from, in
// sorted trace-ID order.
func sampleDonors(req Request) []trace.ExecutionTrace {
	var donors []trace.ExecutionTrace
	if req.Clause.Scope == ir.GlobalScope {
		donors = req.Store.All()
	} else {
		donors = req.Store.ByBehavior(req.Clause.Scope)
	}
	sort.Slice(donors, func(i, j int) bool { return donors[i].TraceID < donors[j].TraceID })
	return donors
}

func sampleValue(donors []trace.ExecutionTrace, exclude string, path []string) (any, string, bool) {
	for _, d := range donors {
		if d.TraceID == exclude {
			continue
		}
		if v, ok := trace.DeriveBindings(d).Lookup(path); ok {
			return v, d.TraceID, true
		}
	}
	return nil, "", false
}

// fallbackCheck handles clauses left UNKNOWN because no trace matched
// their selection (e.g. a postcondition with no successful executions).
// It widens to every trace of the scope and requires unanimity: only an
// all-traces-prove outcome resolves the clause. A refutation from a
// non-matching outcome is not a sound counterexample, so anything less
// than unanimity leaves the clause UNKNOWN.
type fallbackCheck struct{}

func (fallbackCheck) Kind() ir.MitigationKind { return ir.MitigationFallbackCheck }

func (fallbackCheck) Apply(_ context.Context, req Request) (ir.ClauseResult, bool) {
	if req.Store == nil {
		return req.Current, false
	}
	var widened []trace.ExecutionTrace
	if req.Clause.Scope == ir.GlobalScope {
		widened = req.Store.All()
	} else {
		widened = req.Store.ByBehavior(req.Clause.Scope)
	}
	if len(widened) == 0 {
		return req.Current, false
	}

	var refs []ir.EvidenceRef
	for _, tr := range widened {
		outcome := evaluate.Evaluate(req.Clause, trace.DeriveBindings(tr))
		if outcome.Status != ir.StatusProven {
			return req.Current, false
		}
		refs = append(refs, traceRef(tr, "fallback"))
	}

	res := ir.NewEvaluatedResult(req.Clause, ir.StatusProven)
	res.Behavior = widened[0].Behavior
	res.Outcome = widened[0].Outcome
	return res.AddEvidence(refs...), true
}

// constraintSlicing splits a top-level conjunction and evaluates each
// conjunct independently. A refuted conjunct refutes the whole clause;
// all-proven conjuncts prove it. An undecidable conjunct leaves the
// clause UNKNOWN, but isolated to that conjunct for the solver stage.
type constraintSlicing struct{}

func (constraintSlicing) Kind() ir.MitigationKind { return ir.MitigationConstraintSlicing }

func (constraintSlicing) Apply(_ context.Context, req Request) (ir.ClauseResult, bool) {
	conjuncts := splitConjuncts(req.Clause.Expression)
	if len(conjuncts) < 2 {
		return req.Current, false
	}

	var (
		proven  []ir.EvidenceRef
		allSure = true
	)
	for _, sub := range conjuncts {
		slice := req.Clause
		slice.Expression = sub
		res := evaluate.EvaluateTask(evaluate.Task{Clause: slice, Traces: req.Traces})
		switch res.Status {
		case ir.StatusRefuted:
			out := ir.NewEvaluatedResult(req.Clause, ir.StatusRefuted)
			out.Behavior = res.Behavior
			out.Outcome = res.Outcome
			out.Violation = res.Violation
			return out.AddEvidence(res.EvidenceRefs...), true
		case ir.StatusProven:
			proven = append(proven, res.EvidenceRefs...)
		default:
			allSure = false
		}
	}
	if !allSure {
		return req.Current, false
	}

	res := ir.NewEvaluatedResult(req.Clause, ir.StatusProven)
	res.Behavior = req.Current.Behavior
	res.Outcome = req.Current.Outcome
	return res.AddEvidence(dedupRefs(proven)...), true
}

// splitConjuncts breaks an expression into its top-level && operands in
// source order. Prefers the parse tree; falls back to a paren- and
// quote-aware textual scan when the full expression does not parse
// (that is exactly the unsupported-syntax case slicing exists for).
func splitConjuncts(expression string) []string {
	if tree, err := parser.Parse(expression); err == nil {
		var out []string
		var walk func(ast.Node)
		walk = func(n ast.Node) {
			if bin, ok := n.(*ast.BinaryNode); ok && bin.Operator == "&&" {
				walk(bin.Left)
				walk(bin.Right)
				return
			}
			out = append(out, n.String())
		}
		walk(tree.Node)
		return out
	}
	return textualConjuncts(expression)
}

func textualConjuncts(expression string) []string {
	var (
		out      []string
		depth    int
		inString rune
		start    int
	)
	runes := []rune(expression)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case inString != 0:
			if c == inString && (i == 0 || runes[i-1] != '\\') {
				inString = 0
			}
		case c == '"' || c == '\'':
			inString = c
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
		case c == '&' && depth == 0 && i+1 < len(runes) && runes[i+1] == '&':
			out = append(out, strings.TrimSpace(string(runes[start:i])))
			i++
			start = i + 1
		}
	}
	out = append(out, strings.TrimSpace(string(runes[start:])))
	return out
}

func traceRef(tr trace.ExecutionTrace, detail string) ir.EvidenceRef {
	if detail == "" {
		detail = fmt.Sprintf("%s/%s", tr.Behavior, tr.Outcome)
	}
	return ir.EvidenceRef{Kind: ir.EvidenceTrace, ID: tr.TraceID, Detail: detail}
}

func dedupRefs(refs []ir.EvidenceRef) []ir.EvidenceRef {
	seen := make(map[ir.EvidenceRef]bool, len(refs))
	out := make([]ir.EvidenceRef, 0, len(refs))
	for _, r := range refs {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}
