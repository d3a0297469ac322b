package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/emmsync/internal/doc"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Diff     string       // go-cmp diff for document mismatches
	Trace    []TraceEvent // Trace of the asserted pass
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if e.Diff != "" {
		fmt.Fprintf(&buf, "  Diff (-want +got):\n%s", e.Diff)
	}

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nTrace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d.%d] %s %s\n", ev.Pass, ev.Seq, ev.Outcome, ev.Label)
		}
	}
	return buf.String()
}

// assertOutcome checks the outcome and label of one record in a pass.
func assertOutcome(result *Result, a Assertion, pass int) error {
	trace := result.events(pass)
	for _, ev := range trace {
		if ev.Name != a.Name {
			continue
		}
		if ev.Outcome != a.Outcome || (a.Label != "" && ev.Label != a.Label) {
			return &AssertionError{
				Type:     AssertOutcome,
				Expected: describeOutcome(a.Name, a.Outcome, a.Label),
				Actual:   describeOutcome(ev.Name, ev.Outcome, ev.Label),
				Trace:    trace,
			}
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertOutcome,
		Expected: describeOutcome(a.Name, a.Outcome, a.Label),
		Actual:   fmt.Sprintf("%s not reconciled in pass %d", a.Name, pass),
		Trace:    trace,
	}
}

func describeOutcome(name, outcome, label string) string {
	if label == "" {
		return fmt.Sprintf("%s %s", name, outcome)
	}
	return fmt.Sprintf("%s %s %q", name, outcome, label)
}

// assertFinalPolicy compares the stored document after the last pass.
func assertFinalPolicy(result *Result, a Assertion) error {
	got, ok := result.Policies[a.Name]
	if a.Absent {
		if ok {
			return &AssertionError{Type: AssertFinalPolicy, Expected: a.Name + " absent", Actual: a.Name + " stored"}
		}
		return nil
	}
	if !ok {
		return &AssertionError{Type: AssertFinalPolicy, Expected: a.Name + " stored", Actual: a.Name + " absent"}
	}

	want, err := doc.FromAny(a.Expect)
	if err != nil {
		return fmt.Errorf("final_policy %s: %w", a.Name, err)
	}
	if !doc.Equal(want, got) {
		return &AssertionError{
			Type:     AssertFinalPolicy,
			Expected: a.Name + " matches expect",
			Actual:   a.Name + " differs",
			Diff:     cmp.Diff(doc.ToAny(want), doc.ToAny(got)),
		}
	}
	return nil
}

// assertWrites counts patch and delete calls in a pass.
func assertWrites(result *Result, a Assertion, pass int) error {
	if a.Count == nil {
		return fmt.Errorf("writes: count is required")
	}
	writes := result.Writes[pass-1]
	if len(writes) == *a.Count {
		return nil
	}
	calls := make([]string, len(writes))
	for i, c := range writes {
		calls[i] = c.Op + " " + c.Name
	}
	return &AssertionError{
		Type:     AssertWrites,
		Expected: fmt.Sprintf("%d writes in pass %d", *a.Count, pass),
		Actual:   fmt.Sprintf("%d writes [%s]", len(writes), strings.Join(calls, ", ")),
		Trace:    result.events(pass),
	}
}

// assertRunCounts checks outcome counts of the last logged run.
func assertRunCounts(result *Result, a Assertion) error {
	if cmp.Equal(a.Counts, result.Run.Counts) {
		return nil
	}
	return &AssertionError{
		Type:     AssertRunCounts,
		Expected: formatCounts(a.Counts),
		Actual:   formatCounts(result.Run.Counts),
		Diff:     cmp.Diff(a.Counts, result.Run.Counts),
	}
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[k])
	}
	return strings.Join(parts, " ")
}

// EvaluateAssertions evaluates all assertions against the result of a
// scenario that ran the given number of passes.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, passes int) []string {
	var errors []string

	for i, a := range assertions {
		pass := a.Pass
		if pass == 0 {
			pass = passes
		}

		var err error
		switch a.Type {
		case AssertOutcome:
			err = assertOutcome(result, a, pass)
		case AssertFinalPolicy:
			err = assertFinalPolicy(result, a)
		case AssertWrites:
			if pass > len(result.Writes) {
				err = fmt.Errorf("assertion[%d]: pass %d did not run", i, pass)
			} else {
				err = assertWrites(result, a, pass)
			}
		case AssertRunCounts:
			err = assertRunCounts(result, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
