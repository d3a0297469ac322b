package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/emmsync/internal/doc"
)

// openPolicyDB opens an empty policy database under t.TempDir.
func openPolicyDB(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "policies.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedPolicies patches each named document into s.
func seedPolicies(t *testing.T, s *Store, docs map[string]doc.Object) {
	t.Helper()
	for name, obj := range docs {
		if _, err := s.Patch(context.Background(), name, obj); err != nil {
			t.Fatalf("Patch(%s) failed: %v", name, err)
		}
	}
}

// logRun records a complete run with the given outcomes.
func logRun(t *testing.T, s *Store, id string, started time.Time, runErr error, outcomes ...Outcome) {
	t.Helper()
	ctx := context.Background()
	if err := s.BeginRun(ctx, id, started); err != nil {
		t.Fatalf("BeginRun(%s) failed: %v", id, err)
	}
	for _, o := range outcomes {
		if err := s.RecordOutcome(ctx, id, o); err != nil {
			t.Fatalf("RecordOutcome(%s, %s) failed: %v", id, o.Name, err)
		}
	}
	if err := s.FinishRun(ctx, id, started.Add(time.Second), runErr); err != nil {
		t.Fatalf("FinishRun(%s) failed: %v", id, err)
	}
}
