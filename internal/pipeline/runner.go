package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/trivetlabs/trivet/internal/ir"
	"github.com/trivetlabs/trivet/internal/mitigate"
	"github.com/trivetlabs/trivet/internal/smt"
	"github.com/trivetlabs/trivet/internal/verdict"
)

// Hooks observe stage boundaries. Observation only: hook panics are
// swallowed and nothing a hook does can alter stage order, clause
// results, or the verdict.
type Hooks struct {
	BeforeStage func(name string)
	AfterStage  func(record StageRecord)
}

func (h Hooks) before(name string) {
	if h.BeforeStage == nil {
		return
	}
	defer func() { recover() }()
	h.BeforeStage(name)
}

func (h Hooks) after(record StageRecord) {
	if h.AfterStage == nil {
		return
	}
	defer func() { recover() }()
	h.AfterStage(record)
}

// Runner executes the verification pipeline.
type Runner struct {
	log    *slog.Logger
	cfg    *Config
	runIDs ir.RunIDGenerator
	now    func() time.Time
	hooks  Hooks

	testRunner TestRunner
	traces     TraceSource
	escalator  *smt.Escalator
	sink       BundleSink
}

// Option configures a Runner.
type Option func(*Runner)

// WithTestRunner sets the test suite collaborator.
func WithTestRunner(tr TestRunner) Option { return func(r *Runner) { r.testRunner = tr } }

// WithTraceSource sets the trace collaborator.
func WithTraceSource(ts TraceSource) Option { return func(r *Runner) { r.traces = ts } }

// WithEscalator enables the solver stage.
func WithEscalator(e *smt.Escalator) Option { return func(r *Runner) { r.escalator = e } }

// WithBundleSink enables proof bundle persistence.
func WithBundleSink(s BundleSink) Option { return func(r *Runner) { r.sink = s } }

// WithHooks attaches stage observers.
func WithHooks(h Hooks) Option { return func(r *Runner) { r.hooks = h } }

// WithRunIDGenerator overrides run ID generation, for deterministic
// tests.
func WithRunIDGenerator(g ir.RunIDGenerator) Option { return func(r *Runner) { r.runIDs = g } }

// WithClock overrides the wall clock, for deterministic tests.
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

// NewRunner builds a runner for one config. Collaborators default to
// the config-driven implementations; options override them.
func NewRunner(log *slog.Logger, cfg *Config, opts ...Option) *Runner {
	r := &Runner{
		log:        log,
		cfg:        cfg,
		runIDs:     ir.UUIDv7Generator{},
		now:        time.Now,
		testRunner: StaticTestSummary{},
		traces:     DirTraceSource(cfg.TraceDir),
	}
	if cfg.TestSummaryFile != "" {
		r.testRunner = FileTestSummary(cfg.TestSummaryFile)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the pipeline once and returns the run result.
//
// The returned error is non-nil only for failures so early that no
// meaningful Result exists. Everything else - including a FAILED
// verdict, a refuted spec, or a degraded optional stage - is reported
// inside the Result. A panic anywhere in the run is caught and folded
// into a FAILED result; the pipeline never takes its caller down.
func (r *Runner) Run(ctx context.Context) (res *Result, err error) {
	res = &Result{
		RunID:     r.runIDs.NewRunID(),
		StartedAt: r.now(),
	}
	start := r.now()
	defer func() { res.Duration = r.now().Sub(start) }()

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("pipeline panic", "run", res.RunID, "panic", rec)
			r.fail(res, NewInternalError("pipeline", fmt.Errorf("panic: %v", rec)))
			err = nil
		}
	}()

	r.log.Info("verification run starting", "run", res.RunID, "spec", r.cfg.SpecFile)

	engine := mitigate.NewEngine(r.log)
	st := &state{}

	mandatory := []Stage{
		&setupStage{specFile: r.cfg.SpecFile},
		&testRunnerStage{runner: r.testRunner},
		&traceCollectorStage{source: r.traces},
		newPostconditionStage(r.log, engine, r.cfg.Workers),
		newInvariantStage(r.log, engine, r.cfg.Workers),
		&smtStage{escalator: r.escalator},
	}

	for i, stage := range mandatory {
		if !r.runStage(ctx, stage, st, res) {
			return res, nil
		}
		// Failing tests short-circuit the proof: unproven code yields no
		// useful postcondition signal, so clause evaluation never runs
		// and the verdict is FAILED with score 0.
		if stage.Name() == StageTestRunner && st.tests.Failed > 0 {
			r.log.Warn("test suite failing, skipping clause evaluation",
				"run", res.RunID, "failed", st.tests.Failed)
			for _, rest := range mandatory[i+1:] {
				r.skipStage(rest.Name(), res)
			}
			break
		}
	}

	// Freeze clause results and decide before the bundle stage so the
	// persisted bundle contains the verdict it will be audited against.
	// Redaction happens here: everything past this point is published.
	for id, cr := range st.results {
		st.results[id] = redactResult(cr.Finalize())
	}
	res.SpecHash = st.specHash
	res.Domain = st.doc.Domain
	res.Clauses = assembleClauses(st)
	res.Reports = st.reports
	res.Penalty = r.cfg.ViolationPenalty
	res.Decision = verdict.Decide(res.Clauses, st.tests, r.cfg.ViolationPenalty)

	r.runStage(ctx, &bundleStage{sink: r.sink, res: res}, st, res)

	r.log.Info("verification run finished",
		"run", res.RunID,
		"verdict", res.Decision.Verdict,
		"score", res.Decision.Score,
		"proven", res.Decision.Counts.Proven,
		"refuted", res.Decision.Counts.Refuted,
		"unknown", res.Decision.Counts.Unknown)
	return res, nil
}

// runStage executes one stage with its timeout and records the result.
// Returns false when the run must stop.
func (r *Runner) runStage(ctx context.Context, stage Stage, st *state, res *Result) bool {
	name := stage.Name()
	if stage.Name() == StageSMT && r.escalator == nil {
		r.skipStage(name, res)
		return true
	}
	if stage.Name() == StageProofBundle && r.sink == nil {
		r.skipStage(name, res)
		return true
	}

	r.hooks.before(name)

	stageCtx, cancel := context.WithTimeout(ctx, r.cfg.StageTimeout)
	defer cancel()

	start := r.now()
	err := r.guarded(stageCtx, stage, st)
	end := r.now()

	record := StageRecord{
		Name:        name,
		Status:      StageOK,
		StartedAt:   start,
		CompletedAt: end,
		Elapsed:     end.Sub(start),
	}
	if err != nil {
		record.Status = StageFailed
		record.Category = Categorize(err)
		record.Error = err.Error()
	}
	res.Stages = append(res.Stages, record)
	r.hooks.after(record)

	if err == nil {
		r.log.Debug("stage complete", "run", res.RunID, "stage", name, "elapsed", record.Elapsed)
		return true
	}

	if stage.Optional() {
		r.log.Warn("optional stage failed, continuing degraded",
			"run", res.RunID, "stage", name, "error", err)
		return true
	}

	r.log.Error("stage failed, stopping run", "run", res.RunID, "stage", name, "error", err)
	r.fail(res, err)
	return false
}

// skipStage records a stage that will not run this time. Hooks still
// observe it so stage accounting stays complete.
func (r *Runner) skipStage(name string, res *Result) {
	r.hooks.before(name)
	now := r.now()
	record := StageRecord{Name: name, Status: StageSkipped, StartedAt: now, CompletedAt: now}
	res.Stages = append(res.Stages, record)
	r.hooks.after(record)
}

// guarded runs a stage with panic containment. A panicking stage
// becomes an internal error instead of ending the process.
func (r *Runner) guarded(ctx context.Context, stage Stage, st *state) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = NewInternalError(stage.Name(), fmt.Errorf("panic: %v", rec))
		}
	}()
	return stage.Run(ctx, st)
}

// fail marks the result as a stopped run with a FAILED verdict.
func (r *Runner) fail(res *Result, err error) {
	res.Error = err.Error()
	res.Decision = verdict.Decision{Verdict: ir.VerdictFailed, Score: 0}
}
