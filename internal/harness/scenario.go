package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a translation conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Trees lists source tree files to translate as one batch.
	// Paths are relative to the scenario file location.
	Trees []string `yaml:"trees"`

	// Config is optional ferrule.cue source; empty means defaults.
	Config string `yaml:"config,omitempty"`

	// Assertions validate the outcome of the batch.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates one outcome of a scenario run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Unit names the unit the assertion is about. Required for every type.
	Unit string `yaml:"unit"`

	// Text is the substring for source_contains and source_excludes.
	Text string `yaml:"text,omitempty"`

	// Code is the diagnostic code for diagnostic, and optionally failed.
	Code string `yaml:"code,omitempty"`

	// Count is the expected number of diagnostics for diagnostic_count.
	Count *int `yaml:"count,omitempty"`

	// Function, Params and Shape describe a signature: parameter name to
	// mode, and the return shape. Unlisted parameters are not checked.
	Function string            `yaml:"function,omitempty"`
	Params   map[string]string `yaml:"params,omitempty"`
	Shape    string            `yaml:"shape,omitempty"`

	// Crate is the external crate name for crate.
	Crate string `yaml:"crate,omitempty"`
}

// Assertion type constants.
const (
	AssertEmitted         = "emitted"
	AssertFailed          = "failed"
	AssertSourceContains  = "source_contains"
	AssertSourceExcludes  = "source_excludes"
	AssertDiagnostic      = "diagnostic"
	AssertDiagnosticCount = "diagnostic_count"
	AssertSignature       = "signature"
	AssertCrate           = "crate"
)

// LoadScenario reads and parses a scenario YAML file, resolving tree
// paths relative to the file. Returns an error if the file doesn't exist,
// is malformed, contains unknown fields (typos), or is missing required
// fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for i, tree := range scenario.Trees {
		if !filepath.IsAbs(tree) {
			scenario.Trees[i] = filepath.Join(base, tree)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Trees) == 0 {
		return fmt.Errorf("trees list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for _, tree := range s.Trees {
		if _, err := os.Stat(tree); os.IsNotExist(err) {
			return fmt.Errorf("tree file not found: %s", tree)
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Unit == "" {
		return fmt.Errorf("assertions[%d]: unit is required", index)
	}

	switch a.Type {
	case AssertEmitted, AssertFailed:
	case AssertSourceContains, AssertSourceExcludes:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for %s", index, a.Type)
		}
	case AssertDiagnostic:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for diagnostic", index)
		}
	case AssertDiagnosticCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for diagnostic_count", index)
		}
	case AssertSignature:
		if a.Function == "" {
			return fmt.Errorf("assertions[%d]: function is required for signature", index)
		}
	case AssertCrate:
		if a.Crate == "" {
			return fmt.Errorf("assertions[%d]: crate is required for crate", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
