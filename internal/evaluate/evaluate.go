package evaluate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"

	"github.com/trivetlabs/trivet/internal/ir"
	"github.com/trivetlabs/trivet/internal/trace"
)

// Outcome is the tri-state answer for one clause against one set of
// bindings.
type Outcome struct {
	Status    ir.Status
	Reason    *ir.UnknownReason
	Violation *ir.Violation
}

// quantifierKeywords mark specification-language quantifier syntax that
// has no bounded encoding over trace bindings.
var quantifierKeywords = regexp.MustCompile(`\b(forall|exists)\b`)

// Evaluate checks one clause expression against bindings.
//
// Deterministic and side-effect-free: identical (clause, bindings)
// always produce the identical Outcome. Reasons for UNKNOWN always cite
// the unresolved construct.
func Evaluate(c ir.Clause, bindings trace.Bindings) Outcome {
	tree, err := parser.Parse(c.Expression)
	if err != nil {
		if quantifierKeywords.MatchString(c.Expression) {
			return unknown(ir.UnknownUnboundedQuantifier,
				fmt.Sprintf("quantifier syntax in %q has no bounded encoding over trace bindings", c.Expression))
		}
		return unknown(ir.UnknownUnsupportedOperator,
			fmt.Sprintf("cannot parse %q: %v", c.Expression, err))
	}

	r := collectRefs(tree.Node)

	// Undefined functions would fail at runtime anyway; reporting them
	// up front names the construct instead of an opaque runtime error.
	if len(r.funcs) > 0 {
		return unknown(ir.UnknownUnsupportedOperator,
			fmt.Sprintf("function %q is not supported in clause expressions", r.funcs[0]))
	}

	// Closed-world completeness check: every referenced path must
	// resolve before PROVEN/REFUTED may be reported.
	for _, path := range r.paths {
		if _, ok := bindings.Lookup(path); ok {
			continue
		}
		dotted := strings.Join(path, ".")
		if r.quantRange[dotted] {
			return unknown(ir.UnknownUnboundedQuantifier,
				fmt.Sprintf("quantifier range %q is not available in bindings", dotted))
		}
		return unknown(ir.UnknownMissingBinding,
			fmt.Sprintf("binding %q is not present in trace evidence", dotted))
	}

	program, err := expr.Compile(c.Expression)
	if err != nil {
		return unknown(ir.UnknownUnsupportedOperator,
			fmt.Sprintf("cannot compile %q: %v", c.Expression, err))
	}

	out, err := expr.Run(program, map[string]any(bindings))
	if err != nil {
		return unknown(ir.UnknownUnsupportedOperator,
			fmt.Sprintf("evaluation of %q failed: %v", c.Expression, err))
	}

	truth, ok := out.(bool)
	if !ok {
		return unknown(ir.UnknownUnsupportedOperator,
			fmt.Sprintf("expression %q evaluates to %T, not bool", c.Expression, out))
	}

	if truth {
		return Outcome{Status: ir.StatusProven}
	}
	return Outcome{
		Status:    ir.StatusRefuted,
		Violation: violationDetail(tree.Node, bindings),
	}
}

func unknown(category ir.UnknownCategory, detail string) Outcome {
	return Outcome{
		Status: ir.StatusUnknown,
		Reason: &ir.UnknownReason{Category: category, Detail: detail},
	}
}

// comparisonOps are the operators for which a refutation can report the
// two sides as expected vs actual.
var comparisonOps = map[string]bool{
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
}

// violationDetail extracts expected/actual values for a refuted
// comparison. For anything more structured the refutation stands on the
// whole expression and no side decomposition is attempted.
func violationDetail(node ast.Node, bindings trace.Bindings) *ir.Violation {
	bin, ok := node.(*ast.BinaryNode)
	if !ok || !comparisonOps[bin.Operator] {
		return &ir.Violation{Expected: true, Actual: false}
	}

	left := evalSide(bin.Left, bindings)
	right := evalSide(bin.Right, bindings)
	return &ir.Violation{Expected: right, Actual: left}
}

// evalSide evaluates one side of a comparison for diagnostics only.
// Completeness was already checked, so failures degrade to nil rather
// than changing the clause status.
func evalSide(node ast.Node, bindings trace.Bindings) any {
	src := node.String()
	program, err := expr.Compile(src)
	if err != nil {
		return nil
	}
	out, err := expr.Run(program, map[string]any(bindings))
	if err != nil {
		return nil
	}
	return out
}
