package bundle

import (
	"context"

	"github.com/trivetlabs/trivet/internal/ir"
	"github.com/trivetlabs/trivet/internal/verdict"
)

// Audit is the outcome of replaying a stored run: the verdict and score
// recomputed from the stored clause results, compared against what the
// pipeline recorded at run time. A mismatch means either the bundle was
// tampered with or the decision logic changed since the run.
type Audit struct {
	RunID string `json:"run_id"`
	Match bool   `json:"match"`

	StoredVerdict     ir.Verdict `json:"stored_verdict"`
	RecomputedVerdict ir.Verdict `json:"recomputed_verdict"`
	StoredScore       int        `json:"stored_score"`
	RecomputedScore   int        `json:"recomputed_score"`
}

// Replay recomputes the decision for a stored run. The decision
// calculator is pure, so identical stored inputs must reproduce the
// stored outputs exactly.
func (s *Store) Replay(ctx context.Context, runID string) (*Audit, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	storedVerdict := run.Verdict
	storedScore := run.Score

	// A run that stopped early recorded FAILED without a full clause
	// set; recomputation degenerates to the same fixed decision.
	recomputed := verdict.Decision{Verdict: ir.VerdictFailed, Score: 0}
	if run.Error == "" {
		recomputed = verdict.Decide(run.Clauses, run.Tests, run.Penalty)
	}

	return &Audit{
		RunID:             runID,
		Match:             recomputed.Verdict == storedVerdict && recomputed.Score == storedScore,
		StoredVerdict:     storedVerdict,
		RecomputedVerdict: recomputed.Verdict,
		StoredScore:       storedScore,
		RecomputedScore:   recomputed.Score,
	}, nil
}
