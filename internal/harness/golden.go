package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/emmsync/internal/doc"
)

// Snapshot renders the trace and final policies of a result as canonical
// indented JSON: object keys sorted, one trailing newline.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	trace := make(doc.Array, len(result.Trace))
	for i, ev := range result.Trace {
		trace[i] = doc.Object{
			"pass":    doc.Int(ev.Pass),
			"seq":     doc.Int(ev.Seq),
			"name":    doc.String(ev.Name),
			"label":   doc.String(ev.Label),
			"outcome": doc.String(ev.Outcome),
		}
	}
	policies := make(doc.Object, len(result.Policies))
	for name, obj := range result.Policies {
		policies[name] = obj
	}

	out, err := doc.MarshalIndent(doc.Object{
		"scenario_name": doc.String(scenarioName),
		"trace":         trace,
		"policies":      policies,
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, snapshot)
	return nil
}
