package evaluate

import (
	"sort"
	"strings"

	"github.com/expr-lang/expr/ast"
)

// refs is everything an expression reaches for: binding paths, called
// functions, and the collections quantifier builtins iterate over.
type refs struct {
	paths      [][]string
	funcs      []string
	quantRange map[string]bool // dotted path -> used as a quantifier range
}

// quantifierBuiltins iterate a collection; if that collection is not in
// the bindings the truth of the clause depends on an unavailable range.
var quantifierBuiltins = map[string]bool{
	"all": true, "any": true, "one": true, "none": true,
	"filter": true, "map": true, "count": true, "sum": true,
}

// collectRefs walks the parse tree and gathers references.
//
// The walk is pre-order and owns its recursion instead of using
// ast.Walk: a member chain like result.token.expires_at must be
// recorded as one path without also recording its inner nodes, and a
// call's callee identifier is a function name, not a binding.
func collectRefs(node ast.Node) *refs {
	r := &refs{quantRange: make(map[string]bool)}
	r.walk(node, false)
	r.dedup()
	return r
}

func (r *refs) walk(node ast.Node, inQuantRange bool) {
	if node == nil {
		return
	}
	switch n := node.(type) {
	case *ast.IdentifierNode:
		r.addPath([]string{n.Value}, inQuantRange)

	case *ast.MemberNode:
		if path, ok := memberPath(n); ok {
			r.addPath(path, inQuantRange)
			return
		}
		r.walk(n.Node, false)
		r.walk(n.Property, false)

	case *ast.CallNode:
		if id, ok := n.Callee.(*ast.IdentifierNode); ok {
			r.funcs = append(r.funcs, id.Value)
		} else {
			r.walk(n.Callee, false)
		}
		for _, arg := range n.Arguments {
			r.walk(arg, false)
		}

	case *ast.BuiltinNode:
		for i, arg := range n.Arguments {
			r.walk(arg, i == 0 && quantifierBuiltins[n.Name])
		}

	case *ast.ChainNode:
		r.walk(n.Node, false)

	case *ast.UnaryNode:
		r.walk(n.Node, false)

	case *ast.BinaryNode:
		r.walk(n.Left, false)
		r.walk(n.Right, false)

	case *ast.ConditionalNode:
		r.walk(n.Cond, false)
		r.walk(n.Exp1, false)
		r.walk(n.Exp2, false)

	case *ast.ArrayNode:
		for _, elem := range n.Nodes {
			r.walk(elem, false)
		}

	case *ast.MapNode:
		for _, pair := range n.Pairs {
			r.walk(pair, false)
		}

	case *ast.PairNode:
		r.walk(n.Key, false)
		r.walk(n.Value, false)

	case *ast.SliceNode:
		r.walk(n.Node, false)
		r.walk(n.From, false)
		r.walk(n.To, false)

	case *ast.PredicateNode:
		r.walk(n.Node, false)

	case *ast.VariableDeclaratorNode:
		r.walk(n.Value, false)
		r.walk(n.Expr, false)

	case *ast.PointerNode:
		// Predicate-local cursor (#), not a binding reference.

	default:
		// Literals and anything newer we don't model carry no references.
	}
}

func (r *refs) addPath(path []string, quantRange bool) {
	r.paths = append(r.paths, path)
	if quantRange {
		r.quantRange[strings.Join(path, ".")] = true
	}
}

// memberPath flattens a member chain into a dotted path. Returns false
// for computed access (a[b], #.x) which cannot be pre-checked.
func memberPath(n ast.Node) ([]string, bool) {
	switch m := n.(type) {
	case *ast.IdentifierNode:
		return []string{m.Value}, true
	case *ast.MemberNode:
		base, ok := memberPath(m.Node)
		if !ok {
			return nil, false
		}
		prop, ok := m.Property.(*ast.StringNode)
		if !ok {
			return nil, false
		}
		return append(base, prop.Value), true
	}
	return nil, false
}

// dedup keeps only maximal paths: if both result and result.status are
// referenced, checking result.status subsumes checking result.
func (r *refs) dedup() {
	dotted := make([]string, len(r.paths))
	for i, p := range r.paths {
		dotted[i] = strings.Join(p, ".")
	}

	keep := make([][]string, 0, len(r.paths))
	for i, p := range r.paths {
		maximal := true
		for j, other := range dotted {
			if i == j {
				continue
			}
			if strings.HasPrefix(other, dotted[i]+".") {
				maximal = false
				break
			}
			// Exact duplicates: keep the first occurrence only.
			if other == dotted[i] && j < i {
				maximal = false
				break
			}
		}
		if maximal {
			keep = append(keep, p)
		}
	}

	sort.Slice(keep, func(i, j int) bool {
		return strings.Join(keep[i], ".") < strings.Join(keep[j], ".")
	})
	r.paths = keep
	sort.Strings(r.funcs)
}
