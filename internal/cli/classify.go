package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trivetlabs/trivet/internal/ir"
	"github.com/trivetlabs/trivet/internal/mitigate"
)

// knownCategories lists every UNKNOWN category a result can carry, in
// documentation order.
var knownCategories = []ir.UnknownCategory{
	ir.UnknownMissingBinding,
	ir.UnknownUnboundedQuantifier,
	ir.UnknownUnsupportedOperator,
	ir.UnknownInsufficientTraces,
	ir.UnknownOther,
	ir.UnknownSMTTimeout,
	ir.UnknownSMTUndecided,
}

// NewClassifyCommand creates the classify command: print the
// mitigation plan for an UNKNOWN category.
func NewClassifyCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <category>",
		Short: "Show the mitigation plan for an UNKNOWN category",
		Long: `Classify prints the ordered mitigation plan the engine follows for a
given UNKNOWN category. Solver-produced categories (smt_timeout,
smt_undecided) have no plan: escalation has already happened by the
time they appear.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			category := ir.UnknownCategory(args[0])
			if !validCategory(category) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("unknown category %q: must be one of %s", args[0], categoryList()))
			}

			plan := mitigate.Suggest(category)
			report := struct {
				Category ir.UnknownCategory  `json:"category"`
				Plan     []ir.MitigationKind `json:"plan"`
			}{Category: category, Plan: plan}

			f := &OutputFormatter{Format: root.Format, Writer: cmd.OutOrStdout(), Verbose: root.Verbose}
			return f.Emit(report, func(w io.Writer) {
				if len(plan) == 0 {
					fmt.Fprintf(w, "%s: no mitigation plan (terminal category)\n", category)
					return
				}
				fmt.Fprintf(w, "%s:\n", category)
				for i, kind := range plan {
					fmt.Fprintf(w, "  %d. %s\n", i+1, kind)
				}
			})
		},
	}
}

func validCategory(c ir.UnknownCategory) bool {
	for _, known := range knownCategories {
		if c == known {
			return true
		}
	}
	return false
}

func categoryList() string {
	names := make([]string, len(knownCategories))
	for i, c := range knownCategories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
