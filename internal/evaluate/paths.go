package evaluate

import (
	"github.com/expr-lang/expr/parser"

	"github.com/trivetlabs/trivet/internal/trace"
)

// MissingPaths returns the binding paths an expression references that
// do not resolve in the given bindings. A nil slice with ok=true means
// the expression is fully bound; ok=false means the expression could
// not be parsed at all.
func MissingPaths(expression string, bindings trace.Bindings) (missing [][]string, ok bool) {
	tree, err := parser.Parse(expression)
	if err != nil {
		return nil, false
	}
	r := collectRefs(tree.Node)
	for _, path := range r.paths {
		if _, found := bindings.Lookup(path); !found {
			missing = append(missing, path)
		}
	}
	return missing, true
}
