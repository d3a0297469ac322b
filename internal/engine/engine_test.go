package engine

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/emmsync/internal/catalog"
	"github.com/roach88/emmsync/internal/directory"
	"github.com/roach88/emmsync/internal/doc"
	"github.com/roach88/emmsync/internal/metrics"
	"github.com/roach88/emmsync/internal/reconcile"
	"github.com/roach88/emmsync/internal/remote"
	"github.com/roach88/emmsync/internal/store"
	"github.com/roach88/emmsync/internal/testutil"
)

var start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const (
	aliceSID = "S-1-5-21-9-1001"
	carolSID = "S-1-5-21-9-1003"
)

func newReconciler(t *testing.T, policies *testutil.Store) *reconcile.Reconciler {
	t.Helper()
	dir, err := directory.NewFile(directory.Snapshot{
		Groups: []directory.Entry{{SID: "S-1-5-21-9-2001", Name: "Mobile Users"}},
		Users: []directory.Entry{
			{SID: aliceSID, Name: "Alice", Groups: []string{"Mobile Users"}},
			{SID: carolSID, Name: "Carol"},
		},
	})
	require.NoError(t, err)
	root, err := catalog.Policy(catalog.Options{})
	require.NoError(t, err)
	rec, err := reconcile.New(reconcile.Config{
		Schema:    root,
		Store:     policies,
		Directory: dir,
		Fragments: testutil.NewFragments(map[string]doc.Value{
			"default": doc.Object{"addUserDisabled": doc.Bool(true)},
		}),
		Users: []string{"Mobile Users"},
	})
	require.NoError(t, err)
	return rec
}

func openRunLog(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPass_RecordsRunLogAndMetrics(t *testing.T) {
	policies := testutil.NewStore(map[string]doc.Object{
		aliceSID:  {},
		carolSID:  {},
		"default": {},
	})
	policies.Fail("delete", carolSID, errors.New("permission denied"))
	runLog := openRunLog(t)
	m := metrics.New(prometheus.NewRegistry())

	e := New(newReconciler(t, policies),
		WithRunLog(runLog),
		WithMetrics(m),
		WithRunIDs(&testutil.IDs{}),
		WithClock(testutil.NewClock(start)))

	var seen []string
	sum, err := e.Pass(context.Background(), func(res reconcile.Result) {
		seen = append(seen, res.Name)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{aliceSID, carolSID, "default"}, seen)
	assert.Equal(t, "run-0001", sum.RunID)
	assert.Equal(t, start, sum.Started)
	assert.Equal(t, start.Add(time.Second), sum.Finished)
	assert.Equal(t, map[string]int{"Updated": 1, "Deleted": 1, "Ignored": 1}, sum.Counts)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 3, sum.Total())

	run, err := runLog.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-0001", run.ID)
	require.NotNil(t, run.FinishedAt)
	assert.Empty(t, run.Error)
	require.Len(t, run.Outcomes, 3)
	assert.Equal(t, store.Outcome{Seq: 2, Name: carolSID, Label: carolSID + " (Carol) [Failed: permission denied]", Outcome: "Deleted"}, run.Outcomes[1])

	assert.Equal(t, 1.0, promtest.ToFloat64(m.Records.WithLabelValues("Updated")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Failures.WithLabelValues("delete")))
	assert.Equal(t, float64(sum.Finished.Unix()), promtest.ToFloat64(m.LastSuccess))

	latest, err := e.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, run.Outcomes, latest.Outcomes)
	assert.Equal(t, run.Counts, latest.Counts)
	assert.Equal(t, int64(1), latest.Seq)
}

func TestPass_ListFailureFinishesRunWithError(t *testing.T) {
	policies := testutil.NewStore(map[string]doc.Object{aliceSID: {}, carolSID: {}})
	policies.ListErr = errors.New("503 unavailable")
	policies.ListErrAfter = 1
	runLog := openRunLog(t)
	m := metrics.New(prometheus.NewRegistry())

	e := New(newReconciler(t, policies), WithRunLog(runLog), WithMetrics(m),
		WithRunIDs(&testutil.IDs{}), WithClock(testutil.NewClock(start)))

	sum, err := e.Pass(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, reconcile.IsRemoteError(err))
	assert.Contains(t, err.Error(), "run-0001")
	assert.Equal(t, 1, sum.Total())

	run, err := runLog.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Contains(t, run.Error, "503 unavailable")
	assert.Len(t, run.Outcomes, 1)

	assert.Equal(t, 1.0, promtest.ToFloat64(m.Aborted.WithLabelValues("list")))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.LastSuccess))
}

func TestPass_APIRejectionAbortReason(t *testing.T) {
	policies := testutil.NewStore(map[string]doc.Object{aliceSID: {}})
	policies.ListErr = &remote.APIError{Status: http.StatusForbidden, Message: "Caller lacks permission"}
	m := metrics.New(prometheus.NewRegistry())

	e := New(newReconciler(t, policies), WithMetrics(m), WithRunIDs(&testutil.IDs{}))

	_, err := e.Pass(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Aborted.WithLabelValues("api")))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.Aborted.WithLabelValues("list")))
}

func TestPass_WithoutRunLog(t *testing.T) {
	e := New(newReconciler(t, testutil.NewStore(map[string]doc.Object{aliceSID: {}})))

	_, err := e.LatestRun(context.Background())
	assert.ErrorIs(t, err, ErrNoPass)

	sum, err := e.Pass(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, sum.RunID, 36)

	latest, err := e.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sum.RunID, latest.ID)
	assert.Equal(t, map[string]int{"Updated": 1}, latest.Counts)
}

// stubReconciler signals each pass and yields one ignored record.
type stubReconciler struct {
	passes chan struct{}
}

func (s *stubReconciler) Sync(context.Context) iter.Seq2[reconcile.Result, error] {
	return func(yield func(reconcile.Result, error) bool) {
		select {
		case s.passes <- struct{}{}:
		default:
		}
		yield(reconcile.Result{Seq: 1, Name: "default", Label: "default", Outcome: reconcile.Ignored}, nil)
	}
}

func TestRun_RepeatsUntilCancelled(t *testing.T) {
	stub := &stubReconciler{passes: make(chan struct{}, 16)}
	e := New(stub, WithRunIDs(&testutil.IDs{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, 10*time.Millisecond) }()

	for i := 0; i < 2; i++ {
		select {
		case <-stub.passes:
		case <-time.After(5 * time.Second):
			t.Fatal("pass did not run")
		}
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	latest, err := e.LatestRun(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, latest.Seq, int64(2))
}

func TestRun_RejectsNonPositiveInterval(t *testing.T) {
	e := New(&stubReconciler{passes: make(chan struct{}, 1)})
	assert.Error(t, e.Run(context.Background(), 0))
}

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.NotEqual(t, a, b)
	assert.Equal(t, byte('7'), a[14])
}
