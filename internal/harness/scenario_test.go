package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validScenario = `
name: valid
description: "a valid scenario"
directory:
  users:
    - { sid: S-1-5-21-1-1001, name: Alice }
users: [Alice]
passes: 2
assertions:
  - type: outcome
    pass: 2
    name: S-1-5-21-1-1001
    outcome: UpToDate
`

func TestLoadScenario_Valid(t *testing.T) {
	s, err := LoadScenario(writeScenario(t, validScenario))
	require.NoError(t, err)
	assert.Equal(t, "valid", s.Name)
	assert.Equal(t, 2, s.passes())
	require.Len(t, s.Directory.Users, 1)
	assert.Equal(t, "Alice", s.Directory.Users[0].Name)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	_, err := LoadScenario(writeScenario(t, validScenario+"assertion: []\n"))
	assert.ErrorContains(t, err, "failed to parse YAML")
}

func TestValidateScenario(t *testing.T) {
	count := 1
	base := func() *Scenario {
		return &Scenario{
			Name:        "s",
			Description: "d",
			Users:       []string{"Alice"},
			Assertions:  []Assertion{{Type: AssertWrites, Count: &count}},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Scenario)
		want   string
	}{
		{"no name", func(s *Scenario) { s.Name = "" }, "name is required"},
		{"no description", func(s *Scenario) { s.Description = "" }, "description is required"},
		{"no users", func(s *Scenario) { s.Users = nil }, "users list is required"},
		{"no assertions", func(s *Scenario) { s.Assertions = nil }, "assertions list is required"},
		{"negative passes", func(s *Scenario) { s.Passes = -1 }, "passes must be non-negative"},
		{"bad failure op", func(s *Scenario) { s.Failures = []Failure{{Op: "list", Name: "x"}} }, `unknown op "list"`},
		{"failure without name", func(s *Scenario) { s.Failures = []Failure{{Op: "patch"}} }, "name is required"},
		{"pass out of range", func(s *Scenario) { s.Assertions[0].Pass = 2 }, "out of range"},
		{"unknown type", func(s *Scenario) { s.Assertions[0].Type = "trace_order" }, "unknown assertion type"},
		{"bad outcome", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertOutcome, Name: "x", Outcome: "Skipped"}}
		}, `unknown outcome "Skipped"`},
		{"final policy without expect", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertFinalPolicy, Name: "x"}}
		}, "exactly one of expect or absent"},
		{"writes without count", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertWrites}}
		}, "count must be non-negative"},
		{"empty run counts", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertRunCounts}}
		}, "counts is required"},
	}

	require.NoError(t, validateScenario(base()))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base()
			tt.mutate(s)
			err := validateScenario(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
