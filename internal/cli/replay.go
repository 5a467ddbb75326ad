package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/trivetlabs/trivet/internal/bundle"
)

// NewReplayCommand creates the replay command: recompute a stored
// run's decision and check it against what was recorded.
func NewReplayCommand(root *RootOptions) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "replay <run-id>",
		Short: "Audit a stored proof bundle",
		Long: `Replay recomputes the verdict and score for a stored run from its
persisted clause results. The decision calculator is pure, so a mismatch
means the bundle was tampered with or the decision logic changed since
the run was recorded.

Exit codes: 0 audit matched, 1 mismatch, 3 command error.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := bundle.Open(dbPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "open proof bundle store", err)
			}
			defer store.Close()

			audit, err := store.Replay(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, bundle.ErrRunNotFound) {
					return WrapExitError(ExitCommandError, "unknown run", err)
				}
				return WrapExitError(ExitCommandError, "replay run", err)
			}

			f := &OutputFormatter{Format: root.Format, Writer: cmd.OutOrStdout(), Verbose: root.Verbose}
			if err := f.Emit(audit, func(w io.Writer) {
				fmt.Fprintf(w, "Run:        %s\n", audit.RunID)
				fmt.Fprintf(w, "Stored:     %s (score %d)\n", audit.StoredVerdict, audit.StoredScore)
				fmt.Fprintf(w, "Recomputed: %s (score %d)\n", audit.RecomputedVerdict, audit.RecomputedScore)
				if audit.Match {
					fmt.Fprintln(w, "Audit:      OK")
				} else {
					fmt.Fprintln(w, "Audit:      MISMATCH")
				}
			}); err != nil {
				return WrapExitError(ExitCommandError, "render audit", err)
			}

			if !audit.Match {
				return NewExitError(ExitFailed, fmt.Sprintf("audit mismatch for run %s", audit.RunID))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "trivet.db", "proof bundle database path")
	return cmd
}
