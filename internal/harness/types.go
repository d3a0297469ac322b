package harness

import (
	"github.com/roach88/emmsync/internal/doc"
	"github.com/roach88/emmsync/internal/store"
	"github.com/roach88/emmsync/internal/testutil"
)

// TraceEvent is one record result of one pass.
type TraceEvent struct {
	Pass    int    `json:"pass"`
	Seq     int64  `json:"seq"`
	Name    string `json:"name"`
	Label   string `json:"label"`
	Outcome string `json:"outcome"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every pass completed and every
	// assertion held.
	Pass bool `json:"pass"`

	// Trace holds the results of all passes in order.
	Trace []TraceEvent `json:"trace"`

	// Writes holds the patch and delete calls of each pass.
	Writes [][]testutil.Call `json:"writes"`

	// Policies is the policy store content after the last pass.
	Policies map[string]doc.Object `json:"policies"`

	// Run is the last run read back from the run log.
	Run store.Run `json:"run"`

	// Errors contains pass failures and failed assertions.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Policies: map[string]doc.Object{},
		Errors:   []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// events returns the trace of pass p.
func (r *Result) events(p int) []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Pass == p {
			out = append(out, ev)
		}
	}
	return out
}
