package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Flatten reduces a trace document to one ExecutionTrace per behavior.
//
// For each behavior appearing in the document:
//   - inputs come from the last call event
//   - outputs come from the last return event
//   - state comes from the last state-bearing event, falling back to the
//     document's initial state
//   - outcome is the code of the last error event, or OutcomeSuccess
//
// Values are kept exactly as recorded. Clause evaluation must see the
// real evidence; redaction applies only when results leave the pipeline
// (RedactValue at the publication boundary).
func Flatten(doc *Document) []ExecutionTrace {
	type behaviorAcc struct {
		inputs  map[string]any
		outputs map[string]any
		state   map[string]any
		errCode string
	}

	order := make([]string, 0, 4)
	acc := make(map[string]*behaviorAcc)

	get := func(behavior string) *behaviorAcc {
		a, ok := acc[behavior]
		if !ok {
			a = &behaviorAcc{}
			acc[behavior] = a
			order = append(order, behavior)
		}
		return a
	}

	for _, ev := range doc.Events {
		if ev.Behavior == "" {
			continue
		}
		a := get(ev.Behavior)
		switch ev.Type {
		case EventCall:
			if ev.Input != nil {
				a.inputs = ev.Input
			}
		case EventReturn:
			a.outputs = outputsAsMap(ev.Output)
			if ev.StateAfter != nil {
				a.state = ev.StateAfter
			}
		case EventStateChange:
			if ev.StateAfter != nil {
				a.state = ev.StateAfter
			}
		case EventError:
			if ev.Error != nil && ev.Error.Code != "" {
				a.errCode = ev.Error.Code
			} else {
				a.errCode = "UNKNOWN"
			}
		}
	}

	traces := make([]ExecutionTrace, 0, len(order))
	for _, behavior := range order {
		a := acc[behavior]
		outcome := OutcomeSuccess
		if a.errCode != "" {
			outcome = a.errCode
		}
		state := a.state
		if state == nil {
			state = doc.InitialState
		}
		traces = append(traces, ExecutionTrace{
			TraceID:  doc.ID,
			Behavior: behavior,
			Outcome:  outcome,
			Inputs:   a.inputs,
			Outputs:  a.outputs,
			State:    state,
		})
	}
	return traces
}

// outputsAsMap normalizes a return value into a map. Non-object returns
// are wrapped under the "value" key so binding paths stay uniform.
func outputsAsMap(output any) map[string]any {
	if output == nil {
		return nil
	}
	if m, ok := output.(map[string]any); ok {
		return m
	}
	return map[string]any{"value": output}
}

// LoadFile reads a trace document from a JSON file and flattens it.
func LoadFile(path string) ([]ExecutionTrace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trace %s: %w", path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse trace %s: %w", path, err)
	}
	if doc.ID == "" {
		doc.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return Flatten(&doc), nil
}

// LoadDir loads every *.json trace document in a directory, in
// lexicographic filename order for deterministic ingestion.
func LoadDir(dir string) ([]ExecutionTrace, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read trace dir %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var traces []ExecutionTrace
	for _, name := range names {
		ts, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		traces = append(traces, ts...)
	}
	return traces, nil
}
