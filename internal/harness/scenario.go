package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/trivetlabs/trivet/internal/ir"
)

// Scenario defines a conformance test for the verification pipeline:
// a spec, a set of traces, a test tally, and the expected outcome.
type Scenario struct {
	// Name uniquely identifies this scenario; golden files are keyed
	// by it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// Spec is the path to the compiled specification JSON, relative to
	// the scenario file.
	Spec string `yaml:"spec"`

	// Traces lists trace document paths, relative to the scenario file.
	Traces []string `yaml:"traces"`

	// Tests is the pre-recorded test suite tally fed to the pipeline.
	Tests TestTally `yaml:"tests"`

	// Solver optionally points at a fixture oracle YAML; when set the
	// solver stage runs.
	Solver string `yaml:"solver,omitempty"`

	// Penalty overrides the violation penalty. Nil means default.
	Penalty *int `yaml:"penalty,omitempty"`

	// Expect states the outcome the pipeline must reach.
	Expect Expect `yaml:"expect"`
}

// TestTally mirrors the test runner summary in scenario files.
type TestTally struct {
	Total  int `yaml:"total"`
	Passed int `yaml:"passed"`
	Failed int `yaml:"failed"`
}

// Expect is the assertion block of a scenario.
type Expect struct {
	Verdict string `yaml:"verdict"`

	// Score is asserted only when present.
	Score *int `yaml:"score,omitempty"`

	// Clauses asserts individual clause statuses, matched by kind and
	// expression text.
	Clauses []ClauseExpect `yaml:"clauses,omitempty"`
}

// ClauseExpect pins the status of one clause.
type ClauseExpect struct {
	Kind       string `yaml:"kind"`
	Expression string `yaml:"expression"`
	Status     string `yaml:"status"`
}

// LoadScenario reads a scenario from a YAML file. Unknown keys are
// rejected, and relative paths are resolved against the scenario file's
// directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := sc.validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	sc.Spec = resolve(dir, sc.Spec)
	for i, tr := range sc.Traces {
		sc.Traces[i] = resolve(dir, tr)
	}
	if sc.Solver != "" {
		sc.Solver = resolve(dir, sc.Solver)
	}
	return &sc, nil
}

func (sc *Scenario) validate() error {
	if sc.Name == "" {
		return fmt.Errorf("name is required")
	}
	if sc.Spec == "" {
		return fmt.Errorf("spec is required")
	}
	if _, err := ir.ParseVerdict(sc.Expect.Verdict); err != nil {
		return fmt.Errorf("expect.verdict: %w", err)
	}
	for i, ce := range sc.Expect.Clauses {
		if _, err := ir.ParseStatus(ce.Status); err != nil {
			return fmt.Errorf("expect.clauses[%d]: %w", i, err)
		}
		if !ir.ValidKind(ir.ClauseKind(ce.Kind)) {
			return fmt.Errorf("expect.clauses[%d]: unknown kind %q", i, ce.Kind)
		}
	}
	return nil
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
