package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/trivetlabs/trivet/internal/ir"
	"github.com/trivetlabs/trivet/internal/pipeline"
)

// Snapshot projects a run into the canonical form compared against
// golden files. Only deterministic fields appear: no wall-clock
// durations, no absolute paths.
func Snapshot(sc *Scenario, res *pipeline.Result) map[string]any {
	clauses := make([]any, len(res.Clauses))
	for i, cr := range res.Clauses {
		row := map[string]any{
			"kind":       string(cr.Kind),
			"expression": cr.Expression,
			"status":     string(cr.Status),
			"phase":      string(cr.Phase),
		}
		if cr.Behavior != "" {
			row["behavior"] = cr.Behavior
		}
		if cr.ResolvedBy != "" {
			row["resolved_by"] = string(cr.ResolvedBy)
		}
		if cr.UnknownReason != nil {
			row["unknown_category"] = string(cr.UnknownReason.Category)
		}
		clauses[i] = row
	}

	return map[string]any{
		"scenario": sc.Name,
		"run_id":   res.RunID,
		"verdict":  string(res.Decision.Verdict),
		"score":    res.Decision.Score,
		"counts": map[string]any{
			"total":   res.Decision.Counts.Total,
			"proven":  res.Decision.Counts.Proven,
			"refuted": res.Decision.Counts.Refuted,
			"unknown": res.Decision.Counts.Unknown,
		},
		"clauses": clauses,
	}
}

// RunWithGolden executes a scenario, enforces its expect block, and
// compares the snapshot against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenarioPath string) {
	t.Helper()

	sc, err := LoadScenario(scenarioPath)
	if err != nil {
		t.Fatalf("load scenario: %v", err)
	}
	res, err := Run(sc)
	if err != nil {
		t.Fatalf("run scenario %s: %v", sc.Name, err)
	}

	for _, failure := range CheckExpectations(sc, res) {
		t.Errorf("scenario %s: %s", sc.Name, failure)
	}

	snapshot, err := ir.MarshalCanonical(Snapshot(sc, res))
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, sc.Name, snapshot)
}
