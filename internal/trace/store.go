package trace

import "sort"

// Store holds ingested traces keyed by behavior and outcome.
//
// The store is read-only after construction: ingestion happens once,
// lookups never mutate, and returned slices are copies so callers
// cannot disturb the evidence other clauses are evaluated against.
type Store struct {
	byBehavior map[string][]ExecutionTrace
	behaviors  []string
	total      int
}

// NewStore builds a store from ingested traces. Trace order within a
// behavior follows ingestion order, which LoadDir keeps deterministic.
func NewStore(traces []ExecutionTrace) *Store {
	s := &Store{byBehavior: make(map[string][]ExecutionTrace)}
	for _, t := range traces {
		if _, ok := s.byBehavior[t.Behavior]; !ok {
			s.behaviors = append(s.behaviors, t.Behavior)
		}
		s.byBehavior[t.Behavior] = append(s.byBehavior[t.Behavior], t)
		s.total++
	}
	sort.Strings(s.behaviors)
	return s
}

// Len returns the total number of ingested traces.
func (s *Store) Len() int { return s.total }

// Behaviors returns the behaviors that have at least one trace, sorted.
func (s *Store) Behaviors() []string {
	out := make([]string, len(s.behaviors))
	copy(out, s.behaviors)
	return out
}

// ByBehavior returns all traces for a behavior, any outcome.
func (s *Store) ByBehavior(behavior string) []ExecutionTrace {
	ts := s.byBehavior[behavior]
	out := make([]ExecutionTrace, len(ts))
	copy(out, ts)
	return out
}

// ByOutcome returns the traces for a behavior with a specific outcome.
func (s *Store) ByOutcome(behavior, outcome string) []ExecutionTrace {
	var out []ExecutionTrace
	for _, t := range s.byBehavior[behavior] {
		if t.Outcome == outcome {
			out = append(out, t)
		}
	}
	return out
}

// All returns every trace in behavior-sorted, ingestion order.
func (s *Store) All() []ExecutionTrace {
	out := make([]ExecutionTrace, 0, s.total)
	for _, behavior := range s.behaviors {
		out = append(out, s.byBehavior[behavior]...)
	}
	return out
}
