package evaluate

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/trivetlabs/trivet/internal/ir"
)

// DefaultWorkers bounds concurrent clause evaluation when the caller
// does not configure a limit.
const DefaultWorkers = 8

// EvaluateAll evaluates independent clause tasks concurrently.
//
// Shared-nothing by construction: each goroutine derives its own
// bindings from its own trace copies and writes exactly one slot of the
// results slice. No evaluator reads another clause's bindings or
// result, so clause ordering in the output matches the input
// regardless of scheduling.
func EvaluateAll(ctx context.Context, tasks []Task, workers int) []ir.ClauseResult {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	results := make([]ir.ClauseResult, len(tasks))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			results[i] = EvaluateTask(task)
			return nil
		})
	}

	// Evaluation never fails - UNKNOWN is an answer, not an error.
	_ = g.Wait()
	return results
}
