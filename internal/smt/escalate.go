package smt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/trivetlabs/trivet/internal/ir"
	"github.com/trivetlabs/trivet/internal/trace"
)

// DefaultTimeout bounds a single oracle call when the caller does not
// configure one.
const DefaultTimeout = 5 * time.Second

// Escalator submits still-UNKNOWN clauses to a solver oracle. An
// optional retry oracle (an alternate backend) gets one shot when the
// primary times out or comes back undecided, provided the mitigation
// plan asked for smt_retry.
type Escalator struct {
	log     *slog.Logger
	primary Oracle
	retry   Oracle
	timeout time.Duration
}

// NewEscalator builds an escalator. retry may be nil.
func NewEscalator(log *slog.Logger, primary, retry Oracle, timeout time.Duration) *Escalator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Escalator{log: log, primary: primary, retry: retry, timeout: timeout}
}

// Escalate submits one clause and returns its finalized result.
//
// Decided clauses pass through untouched; the solver only ever speaks
// on UNKNOWN. Whatever the oracle says, the clause leaves this call in
// the Final phase: proven and refuted answers decide it, timeouts and
// undecided answers finalize it as UNKNOWN with a solver category,
// because nothing else will run this run.
func (e *Escalator) Escalate(ctx context.Context, c ir.Clause, current ir.ClauseResult, bindings trace.Bindings) ir.ClauseResult {
	if current.Status != ir.StatusUnknown {
		return current
	}

	req := Request{
		ClauseID: c.ID,
		Formula:  c.Expression,
		Bindings: bindings,
		Timeout:  e.timeout,
	}

	status, ev, reason := e.consult(ctx, e.primary, req)
	if status == ir.StatusUnknown && e.retry != nil && wantsRetry(current) {
		e.log.Debug("retrying clause on alternate solver",
			"clause", c.ID, "primary", e.primary.Name(), "retry", e.retry.Name())
		status, ev, reason = e.consult(ctx, e.retry, req)
	}

	final, err := current.WithSolverAnswer(status, ev, reason)
	if err != nil {
		e.log.Warn("solver replacement rejected", "clause", c.ID, "error", err)
		return current
	}
	return final.AddEvidence(ir.EvidenceRef{Kind: ir.EvidenceSolver, ID: ev.Solver, Detail: ev.Result})
}

func (e *Escalator) consult(ctx context.Context, oracle Oracle, req Request) (ir.Status, ir.SolverEvidence, *ir.UnknownReason) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := oracle.Check(callCtx, req)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ir.StatusUnknown,
			ir.SolverEvidence{Solver: oracle.Name(), Result: string(ResultUnknown)},
			&ir.UnknownReason{
				Category: ir.UnknownSMTTimeout,
				Detail:   fmt.Sprintf("solver %s exceeded %s", oracle.Name(), e.timeout),
			}
	case err != nil:
		return ir.StatusUnknown,
			ir.SolverEvidence{Solver: oracle.Name(), Result: string(ResultUnknown), Evidence: err.Error()},
			&ir.UnknownReason{
				Category: ir.UnknownSMTUndecided,
				Detail:   fmt.Sprintf("solver %s failed: %v", oracle.Name(), err),
			}
	}

	ev := ir.SolverEvidence{Solver: oracle.Name(), Result: string(resp.Result), Evidence: resp.Evidence}
	switch resp.Result {
	case ResultProven:
		return ir.StatusProven, ev, nil
	case ResultRefuted:
		return ir.StatusRefuted, ev, nil
	default:
		return ir.StatusUnknown, ev, &ir.UnknownReason{
			Category: ir.UnknownSMTUndecided,
			Detail:   fmt.Sprintf("solver %s could not decide the formula", oracle.Name()),
		}
	}
}

// wantsRetry reports whether the mitigation plan suggested smt_retry
// for this clause.
func wantsRetry(r ir.ClauseResult) bool {
	if r.UnknownReason == nil {
		return false
	}
	for _, kind := range r.UnknownReason.SuggestedMitigations {
		if kind == ir.MitigationSMTRetry {
			return true
		}
	}
	return false
}
