package ir

import "fmt"

// ClauseKind identifies which contract family a clause belongs to.
//
// The set is closed: adding a kind requires touching every exhaustive
// switch over ClauseKind, which is exactly the point. Use ValidKind to
// reject unknown kinds at the input boundary.
type ClauseKind string

const (
	KindPrecondition  ClauseKind = "precondition"
	KindPostcondition ClauseKind = "postcondition"
	KindInvariant     ClauseKind = "invariant"
)

// ValidKind reports whether k is one of the closed set of clause kinds.
func ValidKind(k ClauseKind) bool {
	switch k {
	case KindPrecondition, KindPostcondition, KindInvariant:
		return true
	}
	return false
}

// GlobalScope is the scope name for clauses that are not owned by a
// single behavior (domain-wide invariants).
const GlobalScope = "global"

// Location points back into the specification source.
type Location struct {
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// Clause is a single precondition/postcondition/invariant expression
// extracted from a specification. Immutable after extraction.
type Clause struct {
	ID         string     `json:"id"`
	Kind       ClauseKind `json:"kind"`
	Scope      string     `json:"scope"` // behavior name or GlobalScope
	Expression string     `json:"expression"`
	Location   Location   `json:"location,omitempty"`
}

// Status is the tri-state outcome of evaluating a clause.
//
// UNKNOWN is a first-class answer, not an error: evidence is often
// incomplete, and reporting PROVEN or REFUTED without complete bindings
// would be silent over-approximation.
type Status string

const (
	StatusProven  Status = "PROVEN"
	StatusRefuted Status = "REFUTED"
	StatusUnknown Status = "UNKNOWN"
)

// Verdict is the pipeline's overall decision.
type Verdict string

const (
	VerdictProven     Verdict = "PROVEN"
	VerdictFailed     Verdict = "FAILED"
	VerdictIncomplete Verdict = "INCOMPLETE_PROOF"
)

// UnknownCategory classifies why a clause could not be decided.
type UnknownCategory string

const (
	UnknownMissingBinding      UnknownCategory = "missing_binding"
	UnknownUnboundedQuantifier UnknownCategory = "unbounded_quantifier"
	UnknownUnsupportedOperator UnknownCategory = "unsupported_operator"
	UnknownInsufficientTraces  UnknownCategory = "insufficient_traces"
	UnknownOther               UnknownCategory = "other"

	// Solver-produced categories: the clause went to the oracle and
	// came back undecided.
	UnknownSMTTimeout   UnknownCategory = "smt_timeout"
	UnknownSMTUndecided UnknownCategory = "smt_undecided"
)

// MitigationKind names a strategy for resolving an UNKNOWN clause.
type MitigationKind string

const (
	MitigationRuntimeSampling   MitigationKind = "runtime_sampling"
	MitigationFallbackCheck     MitigationKind = "fallback_check"
	MitigationConstraintSlicing MitigationKind = "constraint_slicing"
	MitigationSMTRetry          MitigationKind = "smt_retry"

	// MitigationAddBindings is never auto-applied. Synthesizing bindings
	// would fabricate evidence, so it is surfaced as a required manual
	// action instead.
	MitigationAddBindings MitigationKind = "add_bindings"
)

// UnknownReason explains an UNKNOWN status and proposes an ordered
// mitigation plan. Present only when Status is UNKNOWN.
type UnknownReason struct {
	Category             UnknownCategory  `json:"category"`
	Detail               string           `json:"detail"`
	SuggestedMitigations []MitigationKind `json:"suggested_mitigations,omitempty"`
}

// EvidenceKind identifies which artifact class an EvidenceRef points into.
type EvidenceKind string

const (
	EvidenceTrace  EvidenceKind = "trace"
	EvidenceTest   EvidenceKind = "test"
	EvidenceSolver EvidenceKind = "solver"
)

// EvidenceRef is a pointer from a clause result to the trace/test/solver
// artifact justifying its status.
type EvidenceRef struct {
	Kind   EvidenceKind `json:"kind"`
	ID     string       `json:"id"`
	Detail string       `json:"detail,omitempty"`
}

// Violation captures the expected-vs-actual detail for a REFUTED clause.
type Violation struct {
	Expected any `json:"expected,omitempty"`
	Actual   any `json:"actual,omitempty"`
}

// SolverEvidence records the oracle answer that decided a clause.
type SolverEvidence struct {
	Solver   string `json:"solver"`
	Result   string `json:"result"`
	Evidence string `json:"evidence,omitempty"`
}

// ResolvedBy names what produced the final status of a clause.
type ResolvedBy string

const (
	ResolvedByEvaluator  ResolvedBy = "evaluator"
	ResolvedByMitigation ResolvedBy = "mitigation"
	ResolvedBySolver     ResolvedBy = "solver"
)

func (k ClauseKind) String() string { return string(k) }

func (s Status) String() string { return string(s) }

func (v Verdict) String() string { return string(v) }

// ParseVerdict converts a stored string back into a Verdict.
func ParseVerdict(s string) (Verdict, error) {
	switch Verdict(s) {
	case VerdictProven, VerdictFailed, VerdictIncomplete:
		return Verdict(s), nil
	}
	return "", fmt.Errorf("unknown verdict %q", s)
}

// ParseStatus converts a stored string back into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusProven, StatusRefuted, StatusUnknown:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown clause status %q", s)
}
