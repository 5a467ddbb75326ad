package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trivetlabs/trivet/internal/ir"
)

func TestLoadScenarioResolvesPaths(t *testing.T) {
	sc, err := LoadScenario("testdata/scenarios/user_service_solver.yaml")
	require.NoError(t, err)

	assert.Equal(t, "user_service_solver", sc.Name)
	assert.Equal(t, filepath.Join("testdata", "specs", "user_service.json"), sc.Spec)
	require.Len(t, sc.Traces, 1)
	assert.Equal(t, filepath.Join("testdata", "traces", "create_user_nostate.json"), sc.Traces[0])
	assert.Equal(t, filepath.Join("testdata", "solver", "user_service.yaml"), sc.Solver)
}

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenarioRejectsUnknownKeys(t *testing.T) {
	path := writeScenario(t, `name: s
spec: spec.json
tracez: []
expect:
  verdict: PROVEN
`)
	_, err := LoadScenario(path)
	assert.Error(t, err)
}

func TestLoadScenarioRejectsBadVerdict(t *testing.T) {
	path := writeScenario(t, `name: s
spec: spec.json
expect:
  verdict: MAYBE
`)
	_, err := LoadScenario(path)
	assert.ErrorContains(t, err, "verdict")
}

func TestLoadScenarioRejectsBadClauseExpect(t *testing.T) {
	path := writeScenario(t, `name: s
spec: spec.json
expect:
  verdict: PROVEN
  clauses:
    - kind: axiom
      expression: x
      status: PROVEN
`)
	_, err := LoadScenario(path)
	assert.ErrorContains(t, err, "kind")
}

func TestCheckExpectationsReportsMismatches(t *testing.T) {
	sc, err := LoadScenario("testdata/scenarios/user_service_proven.yaml")
	require.NoError(t, err)

	res, err := Run(sc)
	require.NoError(t, err)
	require.Empty(t, CheckExpectations(sc, res))

	// Tamper with the expectation and watch it fail.
	sc.Expect.Verdict = string(ir.VerdictFailed)
	failures := CheckExpectations(sc, res)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], "verdict")
}

func TestRunIsDeterministic(t *testing.T) {
	sc, err := LoadScenario("testdata/scenarios/user_service_refuted.yaml")
	require.NoError(t, err)

	first, err := Run(sc)
	require.NoError(t, err)
	second, err := Run(sc)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "run-0001", first.RunID)
	assert.Equal(t, statusCounts(first), statusCounts(second))
}
