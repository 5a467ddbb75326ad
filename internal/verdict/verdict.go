// Package verdict computes the overall decision and compliance score
// from finalized clause results.
//
// Everything here is a pure function of its inputs. The pipeline feeds
// in clause results and the test summary; nothing in this package does
// I/O, reads clocks, or keeps state, which is what makes replay audits
// possible.
package verdict

import (
	"math"

	"github.com/trivetlabs/trivet/internal/ir"
)

// DefaultViolationPenalty is the score deduction weight per refuted
// clause, as a percentage-point multiplier.
const DefaultViolationPenalty = 50

// TestSummary is the outcome of the implementation's own test suite,
// as reported by the test runner stage.
type TestSummary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// Counts breaks clause results down by status.
type Counts struct {
	Total   int `json:"total"`
	Proven  int `json:"proven"`
	Refuted int `json:"refuted"`
	Unknown int `json:"unknown"`
}

// Decision is the pipeline's final word on a run.
type Decision struct {
	Verdict ir.Verdict  `json:"verdict"`
	Score   int         `json:"score"`
	Counts  Counts      `json:"counts"`
	Tests   TestSummary `json:"tests"`
}

// Count tallies clause results by status.
func Count(results []ir.ClauseResult) Counts {
	c := Counts{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case ir.StatusProven:
			c.Proven++
		case ir.StatusRefuted:
			c.Refuted++
		default:
			c.Unknown++
		}
	}
	return c
}

// Decide computes the verdict and score.
//
// Dominance order, strongest first: failing tests, then any refuted
// clause (both FAILED), then any unknown clause (INCOMPLETE_PROOF),
// then PROVEN. A clause set with no members and passing tests is
// vacuously PROVEN.
//
// The score is max(0, round(100·proven/total − penalty·refuted/total)),
// forced to 0 when the test suite failed: a broken implementation does
// not earn partial compliance credit. 100 is reachable only when every
// clause is proven.
func Decide(results []ir.ClauseResult, tests TestSummary, penalty int) Decision {
	if penalty < 0 {
		penalty = DefaultViolationPenalty
	}
	counts := Count(results)

	d := Decision{Counts: counts, Tests: tests}
	switch {
	case tests.Failed > 0:
		d.Verdict = ir.VerdictFailed
	case counts.Refuted > 0:
		d.Verdict = ir.VerdictFailed
	case counts.Unknown > 0:
		d.Verdict = ir.VerdictIncomplete
	default:
		d.Verdict = ir.VerdictProven
	}

	d.Score = score(counts, tests, penalty)
	return d
}

func score(c Counts, tests TestSummary, penalty int) int {
	if tests.Failed > 0 {
		return 0
	}
	if c.Total == 0 {
		return 100
	}
	total := float64(c.Total)
	raw := 100*float64(c.Proven)/total - float64(penalty)*float64(c.Refuted)/total
	s := int(math.Round(raw))
	if s < 0 {
		return 0
	}
	return s
}

// CI exit codes. Stable contract for pipeline integrations.
const (
	ExitProven     = 0
	ExitFailed     = 1
	ExitIncomplete = 2
)

// ExitCode maps a verdict to its CI exit code.
func ExitCode(v ir.Verdict) int {
	switch v {
	case ir.VerdictProven:
		return ExitProven
	case ir.VerdictFailed:
		return ExitFailed
	default:
		return ExitIncomplete
	}
}

// CIProjection is the machine-readable summary emitted for CI
// consumers.
type CIProjection struct {
	Verdict  ir.Verdict `json:"verdict"`
	Score    int        `json:"score"`
	Counts   Counts     `json:"counts"`
	ExitCode int        `json:"exit_code"`
}

// Project derives the CI summary from a decision.
func Project(d Decision) CIProjection {
	return CIProjection{
		Verdict:  d.Verdict,
		Score:    d.Score,
		Counts:   d.Counts,
		ExitCode: ExitCode(d.Verdict),
	}
}
