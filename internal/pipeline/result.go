package pipeline

import (
	"time"

	"github.com/trivetlabs/trivet/internal/ir"
	"github.com/trivetlabs/trivet/internal/mitigate"
	"github.com/trivetlabs/trivet/internal/trace"
	"github.com/trivetlabs/trivet/internal/verdict"
)

// Result is the complete, auditable outcome of one verification run.
type Result struct {
	RunID    string `json:"run_id"`
	SpecHash string `json:"spec_hash"`
	Domain   string `json:"domain"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`

	Stages []StageRecord `json:"stages"`

	// Clauses holds one finalized result per extracted clause, in
	// declaration order.
	Clauses []ir.ClauseResult `json:"clauses"`

	// Reports records every mitigation attempt, resolved or not.
	Reports []mitigate.Report `json:"mitigation_reports,omitempty"`

	Decision verdict.Decision `json:"decision"`

	// Penalty is the violation penalty the decision was computed with.
	// Recorded so a replay audit can recompute the score exactly.
	Penalty int `json:"penalty"`

	// Error is set when the run stopped before completing; the verdict
	// is FAILED in that case.
	Error string `json:"error,omitempty"`
}

// Failed reports whether the run was cut short by a stage failure.
func (r *Result) Failed() bool { return r.Error != "" }

// redactResult masks the recorded values a clause result carries before
// it leaves the pipeline. Violation details quote trace evidence
// verbatim, so they are the one place raw PII could escape into the
// bundle store or rendered output.
func redactResult(r ir.ClauseResult) ir.ClauseResult {
	if r.Violation == nil {
		return r
	}
	next := r
	v := ir.Violation{
		Expected: trace.RedactValue(r.Violation.Expected),
		Actual:   trace.RedactValue(r.Violation.Actual),
	}
	next.Violation = &v
	return next
}
