package pipeline

import (
	"context"
	"time"
)

// Stage names, in execution order.
const (
	StageSetup          = "setup"
	StageTestRunner     = "test_runner"
	StageTraceCollector = "trace_collector"
	StagePostconditions = "postcondition_evaluator"
	StageInvariants     = "invariant_checker"
	StageSMT            = "smt_checker"
	StageProofBundle    = "proof_bundle"
)

// Stage is one step of the run. Stages communicate only through the
// shared state the runner owns; a stage never invokes another stage.
type Stage interface {
	Name() string

	// Optional stages degrade the run on failure instead of stopping it.
	Optional() bool

	Run(ctx context.Context, st *state) error
}

// StageStatus describes how a stage ended.
type StageStatus string

const (
	StageOK      StageStatus = "ok"
	StageFailed  StageStatus = "failed"
	StageSkipped StageStatus = "skipped"
)

// StageRecord is the audit entry for one stage execution.
type StageRecord struct {
	Name        string        `json:"name"`
	Status      StageStatus   `json:"status"`
	Category    ErrorCategory `json:"category,omitempty"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Elapsed     time.Duration `json:"elapsed_ns"`
}
