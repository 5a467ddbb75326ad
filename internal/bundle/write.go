package bundle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/trivetlabs/trivet/internal/ir"
	"github.com/trivetlabs/trivet/internal/pipeline"
)

// WriteBundle persists one finished run atomically. Implements
// pipeline.BundleSink.
//
// Writing the same run ID twice is an error: bundles are append-only
// and a run happens once.
func (s *Store) WriteBundle(ctx context.Context, res *pipeline.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bundle write: %w", err)
	}
	defer tx.Rollback()

	bundleID := ir.BundleID(res.RunID, res.SpecHash)

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (
			run_id, bundle_id, domain, spec_hash, started_at, duration_ns,
			verdict, score, tests_total, tests_passed, tests_failed,
			penalty, error, result_version, engine_version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, bundleID, res.Domain, res.SpecHash,
		res.StartedAt.UTC().Format(time.RFC3339Nano), int64(res.Duration),
		string(res.Decision.Verdict), res.Decision.Score,
		res.Decision.Tests.Total, res.Decision.Tests.Passed, res.Decision.Tests.Failed,
		res.Penalty, res.Error, ir.ResultVersion, ir.EngineVersion,
	); err != nil {
		return fmt.Errorf("insert run %s: %w", res.RunID, err)
	}

	for i, stage := range res.Stages {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stage_records (run_id, position, name, status, category, error,
				started_at, completed_at, elapsed_ns)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			res.RunID, i, stage.Name, string(stage.Status),
			string(stage.Category), stage.Error,
			stage.StartedAt.UTC().Format(time.RFC3339Nano),
			stage.CompletedAt.UTC().Format(time.RFC3339Nano),
			int64(stage.Elapsed),
		); err != nil {
			return fmt.Errorf("insert stage %s for run %s: %w", stage.Name, res.RunID, err)
		}
	}

	for i, clause := range res.Clauses {
		payload, err := json.Marshal(clause)
		if err != nil {
			return fmt.Errorf("marshal clause %s: %w", clause.ClauseID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO clause_results (run_id, position, clause_id, kind, status, phase, behavior, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			res.RunID, i, clause.ClauseID, string(clause.Kind),
			string(clause.Status), string(clause.Phase), clause.Behavior, string(payload),
		); err != nil {
			return fmt.Errorf("insert clause %s for run %s: %w", clause.ClauseID, res.RunID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bundle write: %w", err)
	}
	return nil
}
