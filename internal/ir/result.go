package ir

import "fmt"

// Phase tracks where a ClauseResult sits in its lifecycle.
//
// The lifecycle is an explicit state machine:
//
//	Pending → Evaluated(status) → MitigationAttempted → Final(status)
//
// Each transition produces a NEW ClauseResult value. Replacement happens
// at most once per writer: once by mitigation, once by solver escalation.
// This preserves the single-result-per-clause invariant auditably.
type Phase string

const (
	PhasePending             Phase = "pending"
	PhaseEvaluated           Phase = "evaluated"
	PhaseMitigationAttempted Phase = "mitigation_attempted"
	PhaseFinal               Phase = "final"
)

// ClauseResult is the outcome of checking one clause. Created by the
// evaluator; may be replaced (never field-mutated) at most once by
// mitigation and once by solver escalation.
type ClauseResult struct {
	ClauseID   string     `json:"clause_id"`
	Kind       ClauseKind `json:"kind"`
	Expression string     `json:"expression"`
	Status     Status     `json:"status"`
	Phase      Phase      `json:"phase"`

	// Behavior and Outcome identify the trace slice the clause was
	// evaluated against. Empty for global-scope clauses with no traces.
	Behavior string `json:"behavior,omitempty"`
	Outcome  string `json:"outcome,omitempty"`

	EvidenceRefs []EvidenceRef `json:"evidence_refs,omitempty"`

	// UnknownReason is set only when Status is UNKNOWN.
	UnknownReason *UnknownReason `json:"unknown_reason,omitempty"`

	// Violation is set only when Status is REFUTED.
	Violation *Violation `json:"violation,omitempty"`

	ResolvedBy     ResolvedBy      `json:"resolved_by,omitempty"`
	SolverEvidence *SolverEvidence `json:"solver_evidence,omitempty"`
}

// NewEvaluatedResult creates the initial ClauseResult produced by the
// tri-state evaluator.
func NewEvaluatedResult(c Clause, status Status) ClauseResult {
	return ClauseResult{
		ClauseID:   c.ID,
		Kind:       c.Kind,
		Expression: c.Expression,
		Status:     status,
		Phase:      PhaseEvaluated,
		ResolvedBy: ResolvedByEvaluator,
	}
}

// WithMitigation returns a new result carrying the mitigation outcome.
//
// Allowed exactly once, and only from the Evaluated phase while the
// status is UNKNOWN. A resolved mitigation moves the clause to Final;
// an unresolved one moves it to MitigationAttempted so the solver stage
// can still pick it up.
func (r ClauseResult) WithMitigation(resolved ClauseResult, ok bool) (ClauseResult, error) {
	if r.Phase != PhaseEvaluated {
		return r, fmt.Errorf("clause %s: mitigation replacement from phase %q (want %q)", r.ClauseID, r.Phase, PhaseEvaluated)
	}
	if r.Status != StatusUnknown {
		return r, fmt.Errorf("clause %s: mitigation on status %s", r.ClauseID, r.Status)
	}
	if !ok {
		next := r
		next.Phase = PhaseMitigationAttempted
		return next, nil
	}
	next := resolved
	next.ClauseID = r.ClauseID
	next.Kind = r.Kind
	next.Expression = r.Expression
	next.Phase = PhaseFinal
	next.ResolvedBy = ResolvedByMitigation
	return next, nil
}

// WithSolverAnswer returns a new result carrying the oracle outcome.
//
// Allowed exactly once, from Evaluated or MitigationAttempted, while the
// status is UNKNOWN. An undecided answer keeps the status UNKNOWN but
// still finalizes the clause: there is nothing left to try this run.
func (r ClauseResult) WithSolverAnswer(status Status, ev SolverEvidence, reason *UnknownReason) (ClauseResult, error) {
	switch r.Phase {
	case PhaseEvaluated, PhaseMitigationAttempted:
	default:
		return r, fmt.Errorf("clause %s: solver replacement from phase %q", r.ClauseID, r.Phase)
	}
	if r.Status != StatusUnknown {
		return r, fmt.Errorf("clause %s: solver answer on status %s", r.ClauseID, r.Status)
	}
	next := r
	next.Status = status
	next.Phase = PhaseFinal
	next.SolverEvidence = &ev
	if status == StatusUnknown {
		next.UnknownReason = reason
	} else {
		next.UnknownReason = nil
		next.ResolvedBy = ResolvedBySolver
	}
	return next, nil
}

// Finalize freezes the result. Called when the proof bundle stage runs;
// further replacements are rejected by the phase guards above.
func (r ClauseResult) Finalize() ClauseResult {
	next := r
	next.Phase = PhaseFinal
	return next
}

// AddEvidence returns a copy of the result with an extra evidence ref.
// Evidence attachment does not count as a status replacement.
func (r ClauseResult) AddEvidence(refs ...EvidenceRef) ClauseResult {
	next := r
	next.EvidenceRefs = append(append([]EvidenceRef(nil), r.EvidenceRefs...), refs...)
	return next
}
