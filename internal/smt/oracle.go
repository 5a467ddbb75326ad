// Package smt escalates still-UNKNOWN clauses to an external solver
// oracle and folds the answer back into the clause lifecycle.
package smt

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/trivetlabs/trivet/internal/trace"
)

// Result is the oracle's trichotomy. Distinct from clause status on
// purpose: an oracle speaks about formulas, the pipeline about clauses.
type Result string

const (
	ResultProven  Result = "proven"
	ResultRefuted Result = "refuted"
	ResultUnknown Result = "unknown"
)

// Request is one formula submitted to an oracle.
type Request struct {
	ClauseID string
	Formula  string
	Bindings trace.Bindings
	Timeout  time.Duration
}

// Response is the oracle's answer. Evidence carries the model or unsat
// core in solver-native text; it is stored verbatim in the bundle.
type Response struct {
	Result   Result `yaml:"result"`
	Evidence string `yaml:"evidence,omitempty"`
}

// Oracle is a solver backend. Implementations must be deterministic for
// identical requests within a run.
type Oracle interface {
	Name() string
	Check(ctx context.Context, req Request) (Response, error)
}

// FixtureOracle answers from a static table keyed by clause ID. It
// backs offline runs and tests: the scenario author states what the
// solver would say, and the run stays reproducible.
type FixtureOracle struct {
	name    string
	answers map[string]Response
}

// NewFixtureOracle builds a fixture oracle from an in-memory table.
func NewFixtureOracle(name string, answers map[string]Response) *FixtureOracle {
	return &FixtureOracle{name: name, answers: answers}
}

// fixtureFile is the on-disk shape of a fixture oracle.
type fixtureFile struct {
	Solver  string              `yaml:"solver"`
	Answers map[string]Response `yaml:"answers"`
}

// LoadFixtureOracle reads a fixture oracle from a YAML file. Unknown
// keys are rejected so a typo in a fixture fails loudly.
func LoadFixtureOracle(path string) (*FixtureOracle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read solver fixture: %w", err)
	}
	var file fixtureFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse solver fixture %s: %w", path, err)
	}
	if file.Solver == "" {
		file.Solver = "fixture"
	}
	for id, resp := range file.Answers {
		switch resp.Result {
		case ResultProven, ResultRefuted, ResultUnknown:
		default:
			return nil, fmt.Errorf("solver fixture %s: clause %s has invalid result %q", path, id, resp.Result)
		}
	}
	return &FixtureOracle{name: file.Solver, answers: file.Answers}, nil
}

func (o *FixtureOracle) Name() string { return o.name }

// Check answers from the table. Clauses without a fixture entry come
// back unknown, mirroring a real solver giving up.
func (o *FixtureOracle) Check(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if resp, ok := o.answers[req.ClauseID]; ok {
		return resp, nil
	}
	return Response{Result: ResultUnknown, Evidence: "no fixture answer"}, nil
}
