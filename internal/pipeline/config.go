package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/trivetlabs/trivet/internal/verdict"
)

// Config controls a verification run. Loaded from YAML with strict
// field checking; zero values are filled in by Default before use.
type Config struct {
	// SpecFile is the behavioral specification to verify against.
	SpecFile string `yaml:"spec"`

	// TraceDir holds the execution trace JSON files.
	TraceDir string `yaml:"traces"`

	// TestSummaryFile points at the external runner's test tally
	// ({total, passed, failed} YAML). Empty means no suite ran, which
	// counts as zero tests, not as a failure.
	TestSummaryFile string `yaml:"test_summary,omitempty"`

	// Workers bounds concurrent clause evaluation.
	Workers int `yaml:"workers,omitempty"`

	// ViolationPenalty is the score deduction weight per refuted
	// clause. Negative means "use the default"; zero is a valid choice.
	ViolationPenalty int `yaml:"violation_penalty,omitempty"`

	// StageTimeout bounds each stage's execution.
	StageTimeout time.Duration `yaml:"stage_timeout,omitempty"`

	SMT    SMTConfig    `yaml:"smt,omitempty"`
	Bundle BundleConfig `yaml:"bundle,omitempty"`
}

// SMTConfig controls the optional solver escalation stage.
type SMTConfig struct {
	Enabled bool `yaml:"enabled"`

	// Fixture and RetryFixture are fixture oracle files (primary and
	// alternate backend). Fixture-backed oracles keep runs reproducible.
	Fixture      string        `yaml:"fixture,omitempty"`
	RetryFixture string        `yaml:"retry_fixture,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
}

// BundleConfig controls the optional proof bundle stage.
type BundleConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// Default fills in unset fields. ViolationPenalty is special-cased
// because 0 is meaningful: a file that omits the key gets the default
// via the -1 sentinel set during load.
func (c *Config) Default() {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = 30 * time.Second
	}
	if c.ViolationPenalty < 0 {
		c.ViolationPenalty = verdict.DefaultViolationPenalty
	}
	if c.SMT.Timeout <= 0 {
		c.SMT.Timeout = 5 * time.Second
	}
	if c.Bundle.Enabled && c.Bundle.Path == "" {
		c.Bundle.Path = "trivet.db"
	}
}

// Validate rejects configs that cannot drive a run.
func (c *Config) Validate() error {
	if c.SpecFile == "" {
		return fmt.Errorf("config: spec file is required")
	}
	if c.TraceDir == "" {
		return fmt.Errorf("config: trace directory is required")
	}
	if c.SMT.Enabled && c.SMT.Fixture == "" {
		return fmt.Errorf("config: smt.fixture is required when smt is enabled")
	}
	return nil
}

// LoadConfig reads a run config from a YAML file. Unknown keys are
// rejected so typos fail loudly instead of silently using defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{ViolationPenalty: -1}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Default()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
