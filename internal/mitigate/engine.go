package mitigate

import (
	"context"
	"log/slog"
	"time"

	"github.com/trivetlabs/trivet/internal/ir"
)

// Report records what the engine tried for one clause. Stored in the
// proof bundle so an auditor can see the full attempt history even when
// nothing resolved.
type Report struct {
	ClauseID  string              `json:"clause_id"`
	Plan      []ir.MitigationKind `json:"plan,omitempty"`
	Attempted []ir.MitigationKind `json:"attempted,omitempty"`
	Applied   ir.MitigationKind   `json:"applied,omitempty"`
	Resolved  bool                `json:"resolved"`
	Elapsed   time.Duration       `json:"elapsed_ns"`
}

// Engine runs mitigation plans against UNKNOWN clause results.
type Engine struct {
	log        *slog.Logger
	strategies map[ir.MitigationKind]Strategy
	now        func() time.Time
}

// NewEngine builds an engine with the standard strategy set.
func NewEngine(log *slog.Logger) *Engine {
	e := &Engine{
		log:        log,
		strategies: make(map[ir.MitigationKind]Strategy),
		now:        time.Now,
	}
	for _, s := range []Strategy{runtimeSampling{}, fallbackCheck{}, constraintSlicing{}} {
		e.strategies[s.Kind()] = s
	}
	return e
}

// Resolve runs the mitigation plan for one UNKNOWN clause and returns
// the (possibly replaced) result with its report.
//
// Replacement happens at most once: the first strategy that decides the
// clause ends the plan. Decided clauses pass through untouched. A
// panicking strategy counts as unresolved; mitigation must never take
// the pipeline down.
func (e *Engine) Resolve(ctx context.Context, req Request) (ir.ClauseResult, Report) {
	report := Report{ClauseID: req.Current.ClauseID}
	start := e.now()
	defer func() { report.Elapsed = e.now().Sub(start) }()

	if req.Current.Status != ir.StatusUnknown || req.Current.UnknownReason == nil {
		return req.Current, report
	}

	annotated := Annotate(req.Current)
	report.Plan = annotated.UnknownReason.SuggestedMitigations
	req.Current = annotated

	for _, kind := range report.Plan {
		if !autoApplicable(kind) {
			continue
		}
		strategy, ok := e.strategies[kind]
		if !ok {
			continue
		}
		report.Attempted = append(report.Attempted, kind)

		resolved, decided := e.apply(ctx, strategy, req)
		if !decided {
			continue
		}

		final, err := annotated.WithMitigation(resolved, true)
		if err != nil {
			e.log.Warn("mitigation replacement rejected",
				"clause", req.Current.ClauseID, "strategy", kind, "error", err)
			break
		}
		report.Applied = kind
		report.Resolved = true
		e.log.Debug("clause resolved by mitigation",
			"clause", final.ClauseID, "strategy", kind, "status", final.Status)
		return final, report
	}

	attempted, err := annotated.WithMitigation(ir.ClauseResult{}, false)
	if err != nil {
		return annotated, report
	}
	return attempted, report
}

func (e *Engine) apply(ctx context.Context, s Strategy, req Request) (result ir.ClauseResult, decided bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("mitigation strategy panicked",
				"clause", req.Current.ClauseID, "strategy", s.Kind(), "panic", r)
			result, decided = req.Current, false
		}
	}()
	return s.Apply(ctx, req)
}
