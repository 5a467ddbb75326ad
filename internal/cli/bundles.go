package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/trivetlabs/trivet/internal/bundle"
	"github.com/trivetlabs/trivet/internal/verdict"
)

// NewBundlesCommand creates the bundles command: list stored proof
// bundles, or show one run in full.
func NewBundlesCommand(root *RootOptions) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "bundles [run-id]",
		Short: "List stored proof bundles or show one run",
		Long: `Bundles reads the proof bundle store. Without arguments it lists every
stored run, oldest first. With a run ID it prints that run's full
clause-by-clause record.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := bundle.Open(dbPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "open proof bundle store", err)
			}
			defer store.Close()

			f := &OutputFormatter{Format: root.Format, Writer: cmd.OutOrStdout(), Verbose: root.Verbose}
			if len(args) == 1 {
				return showRun(cmd, f, store, args[0])
			}
			return listRuns(cmd, f, store)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "trivet.db", "proof bundle database path")
	return cmd
}

func listRuns(cmd *cobra.Command, f *OutputFormatter, store *bundle.Store) error {
	runs, err := store.ListRuns(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "list runs", err)
	}

	return f.Emit(runs, func(w io.Writer) {
		if len(runs) == 0 {
			fmt.Fprintln(w, "no stored runs")
			return
		}
		for _, r := range runs {
			fmt.Fprintf(w, "%s  %s  %-16s %-17s score %3d  %s\n",
				r.RunID, r.StartedAt.Format(time.RFC3339), r.Domain, r.Verdict, r.Score,
				shortID(r.SpecHash))
		}
	})
}

type runReport struct {
	bundle.RunSummary
	Duration time.Duration       `json:"duration_ns"`
	Tests    verdict.TestSummary `json:"tests"`
	Penalty  int                 `json:"penalty"`
	Error    string              `json:"error,omitempty"`
	Clauses  []verdict.TableRow  `json:"clauses"`
}

func showRun(cmd *cobra.Command, f *OutputFormatter, store *bundle.Store, runID string) error {
	run, err := store.GetRun(cmd.Context(), runID)
	if err != nil {
		if errors.Is(err, bundle.ErrRunNotFound) {
			return WrapExitError(ExitCommandError, "unknown run", err)
		}
		return WrapExitError(ExitCommandError, "read run", err)
	}

	report := runReport{
		RunSummary: run.RunSummary,
		Duration:   run.Duration,
		Tests:      run.Tests,
		Penalty:    run.Penalty,
		Error:      run.Error,
		Clauses:    verdict.Table(run.Clauses),
	}

	return f.Emit(report, func(w io.Writer) {
		fmt.Fprintf(w, "Run:       %s\n", run.RunID)
		fmt.Fprintf(w, "Bundle:    %s\n", run.BundleID)
		fmt.Fprintf(w, "Domain:    %s\n", run.Domain)
		fmt.Fprintf(w, "Spec hash: %s\n", run.SpecHash)
		fmt.Fprintf(w, "Started:   %s\n", run.StartedAt.Format(time.RFC3339))
		fmt.Fprintf(w, "Verdict:   %s\n", run.Verdict)
		fmt.Fprintf(w, "Score:     %d\n", run.Score)
		if run.Error != "" {
			fmt.Fprintf(w, "Error:     %s\n", run.Error)
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
	})
}
