package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/emmsync/internal/engine"
	"github.com/roach88/emmsync/internal/metrics"
	"github.com/roach88/emmsync/internal/store"
)

type fakeRuns struct {
	run store.Run
	err error
}

func (f fakeRuns) LatestRun(context.Context) (store.Run, error) {
	return f.run, f.err
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	ok := Check{Name: "store", Probe: func(context.Context) error { return nil }}
	router := NewRouter(NewHandler(fakeRuns{}, prometheus.NewRegistry(), nil, ok))

	rec := get(t, router, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"store":"ok"}}`, rec.Body.String())
}

func TestHealthFailingCheck(t *testing.T) {
	bad := Check{Name: "store", Probe: func(context.Context) error { return errors.New("database is locked") }}
	router := NewRouter(NewHandler(fakeRuns{}, prometheus.NewRegistry(), nil, bad))

	rec := get(t, router, "/healthz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable","checks":{"store":"database is locked"}}`, rec.Body.String())
}

func TestLatestRun(t *testing.T) {
	finished := time.Date(2026, 3, 1, 9, 0, 5, 0, time.UTC)
	run := store.Run{
		ID:         "run-0001",
		Seq:        1,
		StartedAt:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		FinishedAt: &finished,
		Counts:     map[string]int{"Updated": 1},
		Outcomes:   []store.Outcome{{Seq: 1, Name: "S-1-5-21-1", Label: "S-1-5-21-1 (Alice)", Outcome: "Updated"}},
	}
	router := NewRouter(NewHandler(fakeRuns{run: run}, prometheus.NewRegistry(), nil))

	rec := get(t, router, "/runs/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got store.Run
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, run.Outcomes, got.Outcomes)
	assert.True(t, finished.Equal(*got.FinishedAt))
}

func TestLatestRunMissing(t *testing.T) {
	for _, err := range []error{store.ErrNoRuns, engine.ErrNoPass} {
		router := NewRouter(NewHandler(fakeRuns{err: err}, prometheus.NewRegistry(), nil))
		rec := get(t, router, "/runs/latest")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	router := NewRouter(NewHandler(fakeRuns{err: errors.New("disk I/O error")}, prometheus.NewRegistry(), nil))
	rec := get(t, router, "/runs/latest")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk")
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.IncrementOutcome("Deleted")
	router := NewRouter(NewHandler(fakeRuns{}, reg, nil))

	rec := get(t, router, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `emmsync_records_total{outcome="Deleted"} 1`)
}

func TestUnknownRoute(t *testing.T) {
	router := NewRouter(NewHandler(fakeRuns{}, prometheus.NewRegistry(), nil))
	assert.Equal(t, http.StatusNotFound, get(t, router, "/nope").Code)

	req := httptest.NewRequest(http.MethodPost, "/healthz", strings.NewReader(""))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	srv := New(addr, NewRouter(NewHandler(fakeRuns{}, prometheus.NewRegistry(), nil)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, srv) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}
