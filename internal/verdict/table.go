package verdict

import (
	"fmt"
	"strings"

	"github.com/trivetlabs/trivet/internal/ir"
)

// TableRow is one line of the human-facing clause evaluation table.
type TableRow struct {
	ClauseID string        `json:"clause_id"`
	Kind     ir.ClauseKind `json:"kind"`
	Behavior string        `json:"behavior,omitempty"`
	Status   ir.Status     `json:"status"`
	Detail   string        `json:"detail,omitempty"`
	Evidence []string      `json:"evidence,omitempty"`
}

// Table projects clause results into display rows, preserving the
// declaration order of the clauses.
func Table(results []ir.ClauseResult) []TableRow {
	rows := make([]TableRow, 0, len(results))
	for _, r := range results {
		row := TableRow{
			ClauseID: r.ClauseID,
			Kind:     r.Kind,
			Behavior: r.Behavior,
			Status:   r.Status,
			Detail:   rowDetail(r),
		}
		for _, ref := range r.EvidenceRefs {
			row.Evidence = append(row.Evidence, fmt.Sprintf("%s:%s", ref.Kind, ref.ID))
		}
		rows = append(rows, row)
	}
	return rows
}

func rowDetail(r ir.ClauseResult) string {
	switch r.Status {
	case ir.StatusRefuted:
		if r.Violation != nil {
			return fmt.Sprintf("expected %v, got %v", r.Violation.Expected, r.Violation.Actual)
		}
	case ir.StatusUnknown:
		if r.UnknownReason != nil {
			detail := fmt.Sprintf("%s: %s", r.UnknownReason.Category, r.UnknownReason.Detail)
			if len(r.UnknownReason.SuggestedMitigations) > 0 {
				kinds := make([]string, len(r.UnknownReason.SuggestedMitigations))
				for i, k := range r.UnknownReason.SuggestedMitigations {
					kinds[i] = string(k)
				}
				detail += " (try: " + strings.Join(kinds, ", ") + ")"
			}
			return detail
		}
	}
	return ""
}
