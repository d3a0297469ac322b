package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/emmsync/internal/directory"
	"github.com/roach88/emmsync/internal/fragment"
	"github.com/roach88/emmsync/internal/reconcile"
)

// Scenario defines one reconciliation scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Directory is the directory snapshot principals resolve against.
	Directory directory.Snapshot `yaml:"directory"`

	// Users is the managed population.
	Users []string `yaml:"users"`

	Assignments []fragment.Assignment `yaml:"assignments,omitempty"`

	// Fragments maps fragment names ("default" or an assignment name) to
	// documents.
	Fragments map[string]any `yaml:"fragments,omitempty"`

	// Policies is the policy store content before the first pass.
	Policies map[string]any `yaml:"policies,omitempty"`

	// Failures are injected into the policy store for every pass.
	Failures []Failure `yaml:"failures,omitempty"`

	// Passes is the number of passes to run. Defaults to 1.
	Passes int `yaml:"passes,omitempty"`

	// Assertions validate the trace and the final store.
	Assertions []Assertion `yaml:"assertions"`
}

// Failure makes one policy store call fail.
type Failure struct {
	// Op is "get", "patch" or "delete".
	Op    string `yaml:"op"`
	Name  string `yaml:"name"`
	Error string `yaml:"error"`
}

// Assertion validates a trace or the final state.
type Assertion struct {
	// Type is one of outcome, final_policy, writes, run_counts.
	Type string `yaml:"type"`

	// Pass selects the pass (1-based) for outcome and writes. Zero means
	// the last pass.
	Pass int `yaml:"pass,omitempty"`

	// Name is the policy name (outcome, final_policy).
	Name string `yaml:"name,omitempty"`

	// Outcome is the expected outcome name (outcome).
	Outcome string `yaml:"outcome,omitempty"`

	// Label, if set, must match the record label exactly (outcome).
	Label string `yaml:"label,omitempty"`

	// Expect is the expected document (final_policy).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Absent expects no stored document (final_policy).
	Absent bool `yaml:"absent,omitempty"`

	// Count is the expected number of writes (writes).
	Count *int `yaml:"count,omitempty"`

	// Counts are the expected outcome counts (run_counts).
	Counts map[string]int `yaml:"counts,omitempty"`
}

// Assertion type constants.
const (
	AssertOutcome     = "outcome"
	AssertFinalPolicy = "final_policy"
	AssertWrites      = "writes"
	AssertRunCounts   = "run_counts"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict fields catch typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
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
	if len(s.Users) == 0 {
		return fmt.Errorf("users list is required and must be non-empty")
	}
	if err := fragment.ValidateAssignments(s.Assignments); err != nil {
		return err
	}
	if s.Passes < 0 {
		return fmt.Errorf("passes must be non-negative")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, f := range s.Failures {
		switch f.Op {
		case "get", "patch", "delete":
		default:
			return fmt.Errorf("failures[%d]: unknown op %q", i, f.Op)
		}
		if f.Name == "" {
			return fmt.Errorf("failures[%d]: name is required", i)
		}
	}

	passes := s.passes()
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], passes); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, passes int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Pass < 0 || a.Pass > passes {
		return fmt.Errorf("assertions[%d]: pass %d out of range 1..%d", index, a.Pass, passes)
	}

	switch a.Type {
	case AssertOutcome:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for outcome", index)
		}
		if _, err := reconcile.ParseOutcome(a.Outcome); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertFinalPolicy:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for final_policy", index)
		}
		if a.Absent == (a.Expect != nil) {
			return fmt.Errorf("assertions[%d]: final_policy needs exactly one of expect or absent", index)
		}
	case AssertWrites:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for writes", index)
		}
	case AssertRunCounts:
		if len(a.Counts) == 0 {
			return fmt.Errorf("assertions[%d]: counts is required for run_counts", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func (s *Scenario) passes() int {
	if s.Passes == 0 {
		return 1
	}
	return s.Passes
}
