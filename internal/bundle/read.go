package bundle

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/trivetlabs/trivet/internal/ir"
	"github.com/trivetlabs/trivet/internal/verdict"
)

// ErrRunNotFound is returned when a run ID has no stored bundle.
var ErrRunNotFound = errors.New("run not found")

// RunSummary is one row of a bundle listing.
type RunSummary struct {
	RunID     string
	BundleID  string
	Domain    string
	SpecHash  string
	StartedAt time.Time
	Verdict   ir.Verdict
	Score     int
}

// StoredRun is a fully hydrated bundle.
type StoredRun struct {
	RunSummary
	Duration time.Duration
	Tests    verdict.TestSummary
	Penalty  int
	Error    string
	Clauses  []ir.ClauseResult
}

// ListRuns returns every stored run, oldest first. UUIDv7 run IDs sort
// chronologically, so ordering by run ID is ordering by time.
func (s *Store) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, bundle_id, domain, spec_hash, started_at, verdict, score
		FROM runs ORDER BY run_id`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

// GetRun hydrates one stored bundle.
func (s *Store) GetRun(ctx context.Context, runID string) (*StoredRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, bundle_id, domain, spec_hash, started_at, verdict, score,
		       duration_ns, tests_total, tests_passed, tests_failed, penalty, error
		FROM runs WHERE run_id = ?`, runID)

	var (
		run        StoredRun
		startedAt  string
		verdictStr string
		durationNs int64
	)
	err := row.Scan(&run.RunID, &run.BundleID, &run.Domain, &run.SpecHash,
		&startedAt, &verdictStr, &run.Score,
		&durationNs, &run.Tests.Total, &run.Tests.Passed, &run.Tests.Failed,
		&run.Penalty, &run.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("read run %s: %w", runID, err)
	}

	if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return nil, fmt.Errorf("run %s: bad started_at %q: %w", runID, startedAt, err)
	}
	if run.Verdict, err = ir.ParseVerdict(verdictStr); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	run.Duration = time.Duration(durationNs)

	if run.Clauses, err = s.readClauses(ctx, runID); err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *Store) readClauses(ctx context.Context, runID string) ([]ir.ClauseResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM clause_results
		WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("read clauses for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []ir.ClauseResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan clause for run %s: %w", runID, err)
		}
		var clause ir.ClauseResult
		if err := json.Unmarshal([]byte(payload), &clause); err != nil {
			return nil, fmt.Errorf("decode clause for run %s: %w", runID, err)
		}
		out = append(out, clause)
	}
	return out, rows.Err()
}

func scanSummary(rows *sql.Rows) (RunSummary, error) {
	var (
		summary    RunSummary
		startedAt  string
		verdictStr string
	)
	if err := rows.Scan(&summary.RunID, &summary.BundleID, &summary.Domain,
		&summary.SpecHash, &startedAt, &verdictStr, &summary.Score); err != nil {
		return RunSummary{}, fmt.Errorf("scan run summary: %w", err)
	}

	var err error
	if summary.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return RunSummary{}, fmt.Errorf("bad started_at %q: %w", startedAt, err)
	}
	if summary.Verdict, err = ir.ParseVerdict(verdictStr); err != nil {
		return RunSummary{}, err
	}
	return summary, nil
}
