package reconcile

import "fmt"

// Outcome is the terminal state of one record in a pass.
type Outcome int

const (
	UpToDate Outcome = iota
	Updated
	Ignored
	Deleted
)

var outcomeNames = [...]string{
	UpToDate: "UpToDate",
	Updated:  "Updated",
	Ignored:  "Ignored",
	Deleted:  "Deleted",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
	return outcomeNames[o]
}

// MarshalText renders the outcome by name in JSON and YAML output.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// ParseOutcome is the inverse of Outcome.String.
func ParseOutcome(s string) (Outcome, error) {
	for i, name := range outcomeNames {
		if name == s {
			return Outcome(i), nil
		}
	}
	return 0, fmt.Errorf("unknown outcome %q", s)
}

// Stage names the step of the record state machine a failure happened in.
type Stage string

const (
	StageResolve Stage = "resolve"
	StageDelete  Stage = "delete"
	StageBuild   Stage = "build"
	StageCompare Stage = "compare"
	StagePatch   Stage = "patch"
)

// Result is the outcome of one record.
type Result struct {
	// Seq numbers the records of a pass from 1 in listing order.
	Seq     int64   `json:"seq"`
	Name    string  `json:"name"`
	Label   string  `json:"label"`
	Outcome Outcome `json:"outcome"`

	// Err is the failure annotated into Label, if any, and Stage the step
	// it happened in.
	Err   error `json:"-"`
	Stage Stage `json:"stage,omitempty"`
}

// annotate appends a "[kind: message]" annotation to the label.
func (r *Result) annotate(kind string, stage Stage, err error) {
	r.Label = fmt.Sprintf("%s [%s: %s]", r.Label, kind, failure(err))
	r.Err = err
	r.Stage = stage
}
