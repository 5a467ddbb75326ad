package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/trivetlabs/trivet/internal/ir"
	"github.com/trivetlabs/trivet/internal/spec"
)

// NewInspectCommand creates the inspect command: parse a specification
// and list its extracted clauses without running anything.
func NewInspectCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <spec-file>",
		Short: "Parse a specification and list its clauses",
		Long: `Inspect loads and validates a specification file, then prints the
content hash and every clause the engine would evaluate, in declaration
order. Useful for checking what a spec actually claims before verifying
against it.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, root, args[0])
		},
	}
}

type inspectReport struct {
	Domain    string      `json:"domain"`
	SpecHash  string      `json:"spec_hash"`
	Behaviors int         `json:"behaviors"`
	Clauses   []ir.Clause `json:"clauses"`
}

func runInspect(cmd *cobra.Command, root *RootOptions, path string) error {
	doc, err := spec.Load(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "load specification", err)
	}
	hash, err := doc.ContentHash()
	if err != nil {
		return WrapExitError(ExitCommandError, "hash specification", err)
	}
	clauses, err := spec.ExtractClauses(doc)
	if err != nil {
		return WrapExitError(ExitCommandError, "extract clauses", err)
	}

	report := inspectReport{
		Domain:    doc.Domain,
		SpecHash:  hash,
		Behaviors: len(doc.Behaviors),
		Clauses:   clauses,
	}

	f := &OutputFormatter{Format: root.Format, Writer: cmd.OutOrStdout(), Verbose: root.Verbose}
	return f.Emit(report, func(w io.Writer) {
		fmt.Fprintf(w, "Domain:    %s\n", report.Domain)
		fmt.Fprintf(w, "Spec hash: %s\n", report.SpecHash)
		fmt.Fprintf(w, "Behaviors: %d\n", report.Behaviors)
		fmt.Fprintf(w, "Clauses:   %d\n\n", len(clauses))
		for _, c := range clauses {
			fmt.Fprintf(w, "  %s  %-13s %-20s %s\n", shortID(c.ID), c.Kind, c.Scope, c.Expression)
		}
	})
}
