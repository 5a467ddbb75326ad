package mitigate

import "github.com/trivetlabs/trivet/internal/ir"

// plans maps each UNKNOWN category to its ordered mitigation plan.
// Order encodes preference: cheaper, evidence-preserving strategies
// before solver escalation, manual actions last.
var plans = map[ir.UnknownCategory][]ir.MitigationKind{
	ir.UnknownMissingBinding: {
		ir.MitigationRuntimeSampling,
		ir.MitigationSMTRetry,
		ir.MitigationAddBindings,
	},
	ir.UnknownUnboundedQuantifier: {
		ir.MitigationConstraintSlicing,
		ir.MitigationSMTRetry,
	},
	ir.UnknownUnsupportedOperator: {
		ir.MitigationConstraintSlicing,
		ir.MitigationSMTRetry,
	},
	ir.UnknownInsufficientTraces: {
		ir.MitigationFallbackCheck,
		ir.MitigationSMTRetry,
	},
	ir.UnknownOther: {
		ir.MitigationSMTRetry,
	},
}

// Suggest returns the ordered mitigation plan for an UNKNOWN category.
// Solver-produced categories (smt_timeout, smt_undecided) have no plan:
// by the time they appear, escalation has already happened.
func Suggest(category ir.UnknownCategory) []ir.MitigationKind {
	plan, ok := plans[category]
	if !ok {
		return nil
	}
	return append([]ir.MitigationKind(nil), plan...)
}

// autoApplicable reports whether the engine may run a strategy itself.
// add_bindings requires a human to supply evidence; smt_retry is owned
// by the solver stage.
func autoApplicable(kind ir.MitigationKind) bool {
	switch kind {
	case ir.MitigationAddBindings, ir.MitigationSMTRetry:
		return false
	}
	return true
}

// Annotate copies the result with the suggested plan recorded on its
// UnknownReason. No-op for decided clauses.
func Annotate(r ir.ClauseResult) ir.ClauseResult {
	if r.Status != ir.StatusUnknown || r.UnknownReason == nil {
		return r
	}
	next := r
	reason := *r.UnknownReason
	reason.SuggestedMitigations = Suggest(reason.Category)
	next.UnknownReason = &reason
	return next
}
