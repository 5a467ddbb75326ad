package spec

import (
	"fmt"

	"github.com/trivetlabs/trivet/internal/ir"
)

// ExtractClauses walks the document and emits immutable clauses in
// declaration order: per behavior, preconditions then postconditions
// then invariants, followed by global invariants.
//
// Clause IDs are content-addressed from (scope, kind, index, expression),
// so the same document always yields the same IDs. The index is the
// position within its (scope, kind) list, which disambiguates repeated
// expressions without making IDs order-sensitive across unrelated
// clauses.
func ExtractClauses(doc *Document) ([]ir.Clause, error) {
	var clauses []ir.Clause

	appendClauses := func(scope string, kind ir.ClauseKind, exprs []string) error {
		for i, expression := range exprs {
			id, err := ir.ClauseID(scope, kind, i, expression)
			if err != nil {
				return fmt.Errorf("clause id for %s %s[%d]: %w", scope, kind, i, err)
			}
			clauses = append(clauses, ir.Clause{
				ID:         id,
				Kind:       kind,
				Scope:      scope,
				Expression: expression,
				Location:   ir.Location{File: doc.SourceFile},
			})
		}
		return nil
	}

	for _, b := range doc.Behaviors {
		if err := appendClauses(b.Name, ir.KindPrecondition, b.Preconditions); err != nil {
			return nil, err
		}
		if err := appendClauses(b.Name, ir.KindPostcondition, b.Postconditions); err != nil {
			return nil, err
		}
		if err := appendClauses(b.Name, ir.KindInvariant, b.Invariants); err != nil {
			return nil, err
		}
	}
	if err := appendClauses(ir.GlobalScope, ir.KindInvariant, doc.GlobalInvariants); err != nil {
		return nil, err
	}

	return clauses, nil
}

// FilterByKind returns the clauses of a single kind, preserving order.
func FilterByKind(clauses []ir.Clause, kind ir.ClauseKind) []ir.Clause {
	var out []ir.Clause
	for _, c := range clauses {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}
