package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/emmsync/internal/metrics"
	"github.com/roach88/emmsync/internal/reconcile"
	"github.com/roach88/emmsync/internal/remote"
	"github.com/roach88/emmsync/internal/store"
)

// Reconciler produces the record results of one pass.
type Reconciler interface {
	Sync(ctx context.Context) iter.Seq2[reconcile.Result, error]
}

// RunLog persists passes. *store.Store implements it.
type RunLog interface {
	BeginRun(ctx context.Context, id string, started time.Time) error
	RecordOutcome(ctx context.Context, runID string, o store.Outcome) error
	FinishRun(ctx context.Context, id string, finished time.Time, runErr error) error
}

// Clock is the wall clock source; *testutil.Clock stands in for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// ErrNoPass is returned by LatestRun before the first pass.
var ErrNoPass = errors.New("no pass has run yet")

// Engine runs reconciliation passes one at a time.
//
// Thread-safety model:
//   - Pass() and Run(): one caller at a time; Pass serialises itself
//   - LatestRun(): safe from any goroutine
type Engine struct {
	rec     Reconciler
	log     RunLog
	metrics *metrics.Metrics
	ids     RunIDGenerator
	clock   Clock
	logger  *slog.Logger

	passMu sync.Mutex

	mu     sync.Mutex
	passes int64
	latest *store.Run
}

// Option configures an Engine.
type Option func(*Engine)

// WithRunLog records every pass in log.
func WithRunLog(log RunLog) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics reports passes to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithRunIDs replaces the UUIDv7 run id generator.
func WithRunIDs(ids RunIDGenerator) Option {
	return func(e *Engine) { e.ids = ids }
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger replaces slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine around rec.
func New(rec Reconciler, opts ...Option) *Engine {
	e := &Engine{
		rec:    rec,
		ids:    UUIDv7Generator{},
		clock:  systemClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Summary describes a finished pass.
type Summary struct {
	RunID    string
	Started  time.Time
	Finished time.Time

	// Counts records per outcome name.
	Counts map[string]int

	// Failed counts records with a [Failed] or [Forced] annotation.
	Failed int
}

// Total is the number of records the pass reached.
func (s Summary) Total() int {
	n := 0
	for _, c := range s.Counts {
		n += c
	}
	return n
}

// Pass runs one reconciliation pass. observe, if non-nil, sees each result
// as it is produced. The returned error is the listing failure or context
// error that ended the pass early; the summary is valid either way.
func (e *Engine) Pass(ctx context.Context, observe func(reconcile.Result)) (Summary, error) {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	sum := Summary{
		RunID:   e.ids.Generate(),
		Started: e.clock.Now(),
		Counts:  make(map[string]int),
	}
	logger := e.logger.With("run", sum.RunID)
	logger.Info("pass starting")

	if e.log != nil {
		if err := e.log.BeginRun(ctx, sum.RunID, sum.Started); err != nil {
			logger.Error("run log write failed", "error", err)
		}
	}

	e.mu.Lock()
	e.passes++
	run := &store.Run{ID: sum.RunID, Seq: e.passes, StartedAt: sum.Started, Counts: map[string]int{}, Outcomes: []store.Outcome{}}
	e.mu.Unlock()

	var passErr error
	for res, err := range e.rec.Sync(ctx) {
		if err != nil {
			passErr = err
			break
		}
		e.record(ctx, logger, &sum, run, res)
		if observe != nil {
			observe(res)
		}
	}

	sum.Finished = e.clock.Now()
	if e.log != nil {
		if err := e.log.FinishRun(context.WithoutCancel(ctx), sum.RunID, sum.Finished, passErr); err != nil {
			logger.Error("run log write failed", "error", err)
		}
	}

	e.mu.Lock()
	finished := sum.Finished
	run.FinishedAt = &finished
	if passErr != nil {
		run.Error = passErr.Error()
	}
	e.latest = run
	e.mu.Unlock()

	e.metrics.ObservePass(sum.Finished.Sub(sum.Started), sum.Finished, passErr == nil)
	if passErr != nil {
		reason := "list"
		switch {
		case errors.Is(passErr, context.Canceled) || errors.Is(passErr, context.DeadlineExceeded):
			reason = "canceled"
		case remote.IsAPIError(passErr):
			reason = "api"
		}
		e.metrics.IncrementAborted(reason)
		logger.Error("pass ended early", "error", passErr, "records", sum.Total())
		return sum, fmt.Errorf("run %s: %w", sum.RunID, passErr)
	}

	logger.Info("pass finished",
		"records", sum.Total(),
		"updated", sum.Counts[reconcile.Updated.String()],
		"deleted", sum.Counts[reconcile.Deleted.String()],
		"failed", sum.Failed,
		"duration", sum.Finished.Sub(sum.Started))
	return sum, nil
}

func (e *Engine) record(ctx context.Context, logger *slog.Logger, sum *Summary, run *store.Run, res reconcile.Result) {
	outcome := res.Outcome.String()
	sum.Counts[outcome]++
	e.metrics.IncrementOutcome(outcome)
	if res.Err != nil {
		sum.Failed++
		e.metrics.IncrementFailure(string(res.Stage))
		logger.Warn("record failed", "policy", res.Name, "stage", string(res.Stage), "error", res.Err)
	}

	o := store.Outcome{Seq: res.Seq, Name: res.Name, Label: res.Label, Outcome: outcome}
	e.mu.Lock()
	run.Counts[outcome]++
	run.Outcomes = append(run.Outcomes, o)
	e.mu.Unlock()

	if e.log != nil {
		if err := e.log.RecordOutcome(ctx, sum.RunID, o); err != nil {
			logger.Error("run log write failed", "policy", res.Name, "error", err)
		}
	}
}

// Run repeats passes every interval until ctx is done. The first pass
// starts immediately. A pass that ends early is logged and the loop goes
// on. Returns nil when ctx is cancelled.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("engine: interval must be positive, got %s", interval)
	}
	e.logger.Info("engine starting", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		// Errors are logged by Pass.
		_, _ = e.Pass(ctx, nil)

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			return nil
		case <-ticker.C:
		}
	}
}

// LatestRun returns a copy of the most recently finished pass.
func (e *Engine) LatestRun(_ context.Context) (store.Run, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.latest == nil {
		return store.Run{}, ErrNoPass
	}
	run := *e.latest
	run.Counts = make(map[string]int, len(e.latest.Counts))
	for k, v := range e.latest.Counts {
		run.Counts[k] = v
	}
	run.Outcomes = append([]store.Outcome(nil), e.latest.Outcomes...)
	return run, nil
}
