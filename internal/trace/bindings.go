package trace

// Binding roots available to clause expressions.
const (
	RootInput  = "input"
	RootResult = "result"
	RootState  = "state"
)

// Bindings is the variable environment a clause is evaluated in: the
// union of trace-derived input.*, result.* and state.* values.
type Bindings map[string]any

// DeriveBindings builds the evaluation environment from one trace.
// Missing sections stay absent (not empty maps): the evaluator must be
// able to tell "no result was recorded" from "result was an empty
// object", because only the former makes a clause UNKNOWN.
func DeriveBindings(t ExecutionTrace) Bindings {
	b := make(Bindings, 3)
	if t.Inputs != nil {
		b[RootInput] = t.Inputs
	}
	if t.Outputs != nil {
		b[RootResult] = t.Outputs
	}
	if t.State != nil {
		b[RootState] = t.State
	}
	return b
}

// Lookup resolves a dotted path (e.g. "result.token.expires_at") in the
// bindings. The second return is false when any step of the path is
// absent.
func (b Bindings) Lookup(path []string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	var cur any
	root, ok := b[path[0]]
	if !ok {
		return nil, false
	}
	cur = root
	for _, step := range path[1:] {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[step]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Clone returns a deep-enough copy for safe augmentation: the top map
// and each section map are copied, values are shared. Mitigations add
// sampled values to a clone so the originating trace store is never
// touched.
func (b Bindings) Clone() Bindings {
	out := make(Bindings, len(b))
	for k, v := range b {
		if m, ok := v.(map[string]any); ok {
			cp := make(map[string]any, len(m))
			for mk, mv := range m {
				cp[mk] = mv
			}
			out[k] = cp
			continue
		}
		out[k] = v
	}
	return out
}

// Set places a value at a dotted path, creating intermediate maps as
// needed. Used by mitigation after Clone; panics are avoided by
// overwriting non-map intermediates.
func (b Bindings) Set(path []string, value any) {
	if len(path) == 0 {
		return
	}
	if len(path) == 1 {
		b[path[0]] = value
		return
	}
	cur, ok := b[path[0]].(map[string]any)
	if !ok {
		cur = make(map[string]any)
		b[path[0]] = cur
	}
	for _, step := range path[1 : len(path)-1] {
		next, ok := cur[step].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[step] = next
		}
		cur = next
	}
	cur[path[len(path)-1]] = value
}
