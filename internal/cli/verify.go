package cli

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/trivetlabs/trivet/internal/bundle"
	"github.com/trivetlabs/trivet/internal/ir"
	"github.com/trivetlabs/trivet/internal/pipeline"
	"github.com/trivetlabs/trivet/internal/smt"
	"github.com/trivetlabs/trivet/internal/verdict"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	ConfigFile string
	SpecFile   string
	TraceDir   string
	TestsFile  string
	Workers    int
	Penalty    int
	SMTFixture string
	SMTRetry   string
	BundlePath string
}

// NewVerifyCommand creates the verify command: run the full pipeline
// and render the verdict.
func NewVerifyCommand(root *RootOptions) *cobra.Command {
	opts := &VerifyOptions{}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify an implementation against its specification",
		Long: `Verify runs the verification pipeline: load the spec, collect traces,
evaluate every clause, attempt mitigation on unknowns, optionally escalate
to a solver, and render the verdict.

Exit codes: 0 PROVEN, 1 FAILED, 2 INCOMPLETE_PROOF, 3 command error.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigFile, "config", "c", "", "run config file (YAML)")
	cmd.Flags().StringVar(&opts.SpecFile, "spec", "", "specification file")
	cmd.Flags().StringVar(&opts.TraceDir, "traces", "", "execution trace directory")
	cmd.Flags().StringVar(&opts.TestsFile, "tests", "", "external test summary file ({total, passed, failed} YAML)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent clause evaluation workers")
	cmd.Flags().IntVar(&opts.Penalty, "penalty", -1, "score deduction per refuted clause")
	cmd.Flags().StringVar(&opts.SMTFixture, "smt-fixture", "", "solver fixture file (enables the solver stage)")
	cmd.Flags().StringVar(&opts.SMTRetry, "smt-retry-fixture", "", "alternate solver fixture for retries")
	cmd.Flags().StringVar(&opts.BundlePath, "bundle", "", "proof bundle database path (enables bundle persistence)")

	return cmd
}

func runVerify(cmd *cobra.Command, root *RootOptions, opts *VerifyOptions) error {
	cfg, err := verifyConfig(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	var runnerOpts []pipeline.Option

	if cfg.SMT.Enabled {
		escalator, err := buildEscalator(cfg)
		if err != nil {
			return WrapExitError(ExitCommandError, "load solver fixture", err)
		}
		runnerOpts = append(runnerOpts, pipeline.WithEscalator(escalator))
	}

	if cfg.Bundle.Enabled {
		store, err := bundle.Open(cfg.Bundle.Path)
		if err != nil {
			return WrapExitError(ExitCommandError, "open proof bundle store", err)
		}
		defer store.Close()
		runnerOpts = append(runnerOpts, pipeline.WithBundleSink(store))
	}

	runner := pipeline.NewRunner(slog.Default(), cfg, runnerOpts...)
	res, err := runner.Run(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "run pipeline", err)
	}

	f := &OutputFormatter{
		Format:    root.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   root.Verbose,
	}
	if err := renderResult(f, res); err != nil {
		return WrapExitError(ExitCommandError, "render result", err)
	}

	if res.Decision.Verdict != ir.VerdictProven {
		return &ExitError{
			Code:    verdict.ExitCode(res.Decision.Verdict),
			Message: fmt.Sprintf("verdict %s (score %d)", res.Decision.Verdict, res.Decision.Score),
		}
	}
	return nil
}

// verifyConfig builds the run config from the --config file or from
// direct flags, flags winning when both are given.
func verifyConfig(opts *VerifyOptions) (*pipeline.Config, error) {
	var cfg *pipeline.Config
	if opts.ConfigFile != "" {
		loaded, err := pipeline.LoadConfig(opts.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = &pipeline.Config{ViolationPenalty: -1}
	}

	if opts.SpecFile != "" {
		cfg.SpecFile = opts.SpecFile
	}
	if opts.TraceDir != "" {
		cfg.TraceDir = opts.TraceDir
	}
	if opts.TestsFile != "" {
		cfg.TestSummaryFile = opts.TestsFile
	}
	if opts.Workers > 0 {
		cfg.Workers = opts.Workers
	}
	if opts.Penalty >= 0 {
		cfg.ViolationPenalty = opts.Penalty
	}
	if opts.SMTFixture != "" {
		cfg.SMT.Enabled = true
		cfg.SMT.Fixture = opts.SMTFixture
	}
	if opts.SMTRetry != "" {
		cfg.SMT.RetryFixture = opts.SMTRetry
	}
	if opts.BundlePath != "" {
		cfg.Bundle.Enabled = true
		cfg.Bundle.Path = opts.BundlePath
	}

	cfg.Default()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildEscalator(cfg *pipeline.Config) (*smt.Escalator, error) {
	primary, err := smt.LoadFixtureOracle(cfg.SMT.Fixture)
	if err != nil {
		return nil, err
	}
	var retry smt.Oracle
	if cfg.SMT.RetryFixture != "" {
		r, err := smt.LoadFixtureOracle(cfg.SMT.RetryFixture)
		if err != nil {
			return nil, err
		}
		retry = r
	}
	return smt.NewEscalator(slog.Default(), primary, retry, cfg.SMT.Timeout), nil
}

// verifyReport is the JSON payload for the verify command.
type verifyReport struct {
	RunID    string                 `json:"run_id"`
	SpecHash string                 `json:"spec_hash,omitempty"`
	Domain   string                 `json:"domain,omitempty"`
	CI       verdict.CIProjection   `json:"ci"`
	Clauses  []verdict.TableRow     `json:"clauses"`
	Stages   []pipeline.StageRecord `json:"stages"`
	Error    string                 `json:"error,omitempty"`
}

func renderResult(f *OutputFormatter, res *pipeline.Result) error {
	report := verifyReport{
		RunID:    res.RunID,
		SpecHash: res.SpecHash,
		Domain:   res.Domain,
		CI:       verdict.Project(res.Decision),
		Clauses:  verdict.Table(res.Clauses),
		Stages:   res.Stages,
		Error:    res.Error,
	}

	return f.Emit(report, func(w io.Writer) {
		fmt.Fprintf(w, "Run:     %s\n", res.RunID)
		if res.Domain != "" {
			fmt.Fprintf(w, "Domain:  %s\n", res.Domain)
		}
		fmt.Fprintf(w, "Verdict: %s\n", res.Decision.Verdict)
		fmt.Fprintf(w, "Score:   %d\n", res.Decision.Score)
		c := res.Decision.Counts
		fmt.Fprintf(w, "Clauses: %d total, %d proven, %d refuted, %d unknown\n",
			c.Total, c.Proven, c.Refuted, c.Unknown)
		if res.Decision.Tests.Total > 0 {
			t := res.Decision.Tests
			fmt.Fprintf(w, "Tests:   %d total, %d passed, %d failed\n", t.Total, t.Passed, t.Failed)
		}
		if res.Error != "" {
			fmt.Fprintf(w, "Error:   %s\n", res.Error)
		}

		if len(report.Clauses) > 0 {
			fmt.Fprintln(w)
			for _, row := range report.Clauses {
				scope := row.Behavior
				if scope == "" {
					scope = "global"
				}
				fmt.Fprintf(w, "  %-7s %-13s %-20s %s\n", row.Status, row.Kind, scope, shortID(row.ClauseID))
				if row.Detail != "" {
					fmt.Fprintf(w, "          %s\n", row.Detail)
				}
			}
		}

		if f.Verbose {
			fmt.Fprintln(w)
			for _, s := range res.Stages {
				line := fmt.Sprintf("  stage %-25s %s", s.Name, s.Status)
				if s.Elapsed > 0 {
					line += fmt.Sprintf(" (%s)", s.Elapsed.Round(time.Microsecond))
				}
				if s.Error != "" {
					line += " " + s.Error
				}
				fmt.Fprintln(w, line)
			}
		}
	})
}

// shortID abbreviates a clause ID for display; full IDs live in the
// JSON output and the proof bundle.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
