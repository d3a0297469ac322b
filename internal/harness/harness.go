package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/emmsync/internal/catalog"
	"github.com/roach88/emmsync/internal/directory"
	"github.com/roach88/emmsync/internal/doc"
	"github.com/roach88/emmsync/internal/engine"
	"github.com/roach88/emmsync/internal/reconcile"
	"github.com/roach88/emmsync/internal/store"
	"github.com/roach88/emmsync/internal/testutil"
)

// epoch is the start of the deterministic clock.
var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Run executes a scenario and returns the result.
//
// Each scenario runs against fresh fakes and a fresh in-memory run log.
// Setup errors (bad directory, bad documents) are returned; pass and
// assertion failures are recorded in the result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	dir, err := directory.NewFile(scenario.Directory)
	if err != nil {
		return nil, fmt.Errorf("failed to load directory: %w", err)
	}
	fragments, err := toValues(scenario.Fragments)
	if err != nil {
		return nil, fmt.Errorf("failed to load fragments: %w", err)
	}
	initial, err := toObjects(scenario.Policies)
	if err != nil {
		return nil, fmt.Errorf("failed to load policies: %w", err)
	}

	policies := testutil.NewStore(initial)
	for _, f := range scenario.Failures {
		policies.Fail(f.Op, f.Name, errors.New(f.Error))
	}

	root, err := catalog.Policy(catalog.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to compile catalog: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec, err := reconcile.New(reconcile.Config{
		Schema:      root,
		Store:       policies,
		Directory:   dir,
		Fragments:   testutil.NewFragments(fragments),
		Users:       scenario.Users,
		Assignments: scenario.Assignments,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create reconciler: %w", err)
	}

	runLog, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer runLog.Close()

	eng := engine.New(rec,
		engine.WithRunLog(runLog),
		engine.WithRunIDs(&testutil.IDs{}),
		engine.WithClock(testutil.NewClock(epoch)),
		engine.WithLogger(logger))

	result := NewResult()
	for p := 1; p <= scenario.passes(); p++ {
		policies.Reset()
		_, err := eng.Pass(ctx, func(res reconcile.Result) {
			result.Trace = append(result.Trace, TraceEvent{
				Pass:    p,
				Seq:     res.Seq,
				Name:    res.Name,
				Label:   res.Label,
				Outcome: res.Outcome.String(),
			})
		})
		if err != nil {
			result.AddError(fmt.Sprintf("pass %d: %v", p, err))
		}
		result.Writes = append(result.Writes, policies.Writes())
	}

	result.Policies = policies.Snapshot()
	if result.Run, err = runLog.LatestRun(ctx); err != nil {
		return nil, fmt.Errorf("failed to read run log: %w", err)
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions, scenario.passes()) {
		result.AddError(msg)
	}
	return result, nil
}

func toValues(in map[string]any) (map[string]doc.Value, error) {
	out := make(map[string]doc.Value, len(in))
	for name, raw := range in {
		v, err := doc.FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func toObjects(in map[string]any) (map[string]doc.Object, error) {
	values, err := toValues(in)
	if err != nil {
		return nil, err
	}
	out := make(map[string]doc.Object, len(values))
	for name, v := range values {
		switch obj := v.(type) {
		case doc.Object:
			out[name] = obj
		case doc.Null:
			out[name] = doc.Object{}
		default:
			return nil, fmt.Errorf("%s: Object expected but got %s", name, doc.TypeName(v))
		}
	}
	return out, nil
}
