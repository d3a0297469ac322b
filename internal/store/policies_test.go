package store

import (
	"context"
	"errors"
	"testing"

	"github.com/roach88/emmsync/internal/doc"
	"github.com/roach88/emmsync/internal/emm"
)

func TestPatch_CreatesAndVersions(t *testing.T) {
	s := openPolicyDB(t)
	ctx := context.Background()

	got, err := s.Patch(ctx, "S-1-5-21-1", doc.Object{"addUserDisabled": doc.Bool(true)})
	if err != nil {
		t.Fatalf("Patch() failed: %v", err)
	}
	if !doc.Equal(got, doc.Object{"addUserDisabled": doc.Bool(true)}) {
		t.Errorf("Patch() returned %v", got)
	}

	info, err := s.Info(ctx, "S-1-5-21-1")
	if err != nil {
		t.Fatalf("Info() failed: %v", err)
	}
	if info.Version != 1 {
		t.Errorf("Version = %d, want 1", info.Version)
	}
	firstHash := info.ContentHash

	if _, err := s.Patch(ctx, "S-1-5-21-1", doc.Object{"addUserDisabled": doc.Bool(false)}); err != nil {
		t.Fatalf("second Patch() failed: %v", err)
	}
	info, err = s.Info(ctx, "S-1-5-21-1")
	if err != nil {
		t.Fatalf("Info() failed: %v", err)
	}
	if info.Version != 2 {
		t.Errorf("Version = %d, want 2", info.Version)
	}
	if info.UpdatedSeq != 2 {
		t.Errorf("UpdatedSeq = %d, want 2", info.UpdatedSeq)
	}
	if info.ContentHash == firstHash {
		t.Error("content hash did not change")
	}
}

func TestPatch_RejectsInvalidName(t *testing.T) {
	s := openPolicyDB(t)

	if _, err := s.Patch(context.Background(), "a/b", doc.Object{}); err == nil {
		t.Error("Patch() with slash in name succeeded")
	}
}

func TestGet_NotFound(t *testing.T) {
	s := openPolicyDB(t)

	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, emm.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestList_OrderedByName(t *testing.T) {
	s := openPolicyDB(t)
	ctx := context.Background()

	seedPolicies(t, s, map[string]doc.Object{
		"default":    {"name": doc.String("default")},
		"S-1-5-21-2": {"name": doc.String("S-1-5-21-2")},
		"S-1-5-21-1": {"name": doc.String("S-1-5-21-1")},
	})

	var names []string
	for rec, err := range s.List(ctx) {
		if err != nil {
			t.Fatalf("List() failed: %v", err)
		}
		names = append(names, rec.Name)
		if got := rec.Document.Get("name"); got != doc.String(rec.Name) {
			t.Errorf("record %s has document %v", rec.Name, rec.Document)
		}
	}

	want := []string{"S-1-5-21-1", "S-1-5-21-2", "default"}
	if len(names) != len(want) {
		t.Fatalf("List() returned %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %s, want %s", i, names[i], want[i])
		}
	}
}

func TestList_WritesDuringIteration(t *testing.T) {
	s := openPolicyDB(t)
	ctx := context.Background()

	seedPolicies(t, s, map[string]doc.Object{"a": {}, "b": {}})

	for rec, err := range s.List(ctx) {
		if err != nil {
			t.Fatalf("List() failed: %v", err)
		}
		if err := s.Delete(ctx, rec.Name); err != nil {
			t.Fatalf("Delete(%s) during List failed: %v", rec.Name, err)
		}
	}

	for _, err := range s.List(ctx) {
		if err != nil {
			t.Fatalf("List() failed: %v", err)
		}
		t.Error("store not empty after deleting every record")
	}
}

func TestList_StopsEarly(t *testing.T) {
	s := openPolicyDB(t)
	ctx := context.Background()

	seedPolicies(t, s, map[string]doc.Object{"a": {}, "b": {}, "c": {}})

	count := 0
	for range s.List(ctx) {
		count++
		if count == 2 {
			break
		}
	}
	if count != 2 {
		t.Errorf("visited %d records, want 2", count)
	}
}

func TestDelete(t *testing.T) {
	s := openPolicyDB(t)
	ctx := context.Background()

	seedPolicies(t, s, map[string]doc.Object{"p": {}})
	if err := s.Delete(ctx, "p"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if err := s.Delete(ctx, "p"); !errors.Is(err, emm.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestDocument_LargeIntegers(t *testing.T) {
	s := openPolicyDB(t)
	ctx := context.Background()

	big := doc.Int(1<<62 + 1)
	if _, err := s.Patch(ctx, "p", doc.Object{"n": big}); err != nil {
		t.Fatalf("Patch() failed: %v", err)
	}
	got, err := s.Get(ctx, "p")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Get("n") != big {
		t.Errorf("n = %v, want %v", got.Get("n"), big)
	}
}

func TestApplications(t *testing.T) {
	s := openPolicyDB(t)
	ctx := context.Background()

	app := &emm.Application{
		Name:  "enterprises/LC01/applications/com.example.mail",
		Title: "Mail",
		ManagedProperties: []emm.ManagedProperty{
			{Key: "port", Type: "INTEGER", DefaultValue: float64(143)},
		},
	}
	if err := s.PutApplication(ctx, app); err != nil {
		t.Fatalf("PutApplication() failed: %v", err)
	}

	got, err := s.Application(ctx, "com.example.mail")
	if err != nil {
		t.Fatalf("Application() failed: %v", err)
	}
	if got.Title != "Mail" || len(got.ManagedProperties) != 1 {
		t.Errorf("Application() = %+v", got)
	}
	if got.ManagedProperties[0].DefaultValue != float64(143) {
		t.Errorf("DefaultValue = %v", got.ManagedProperties[0].DefaultValue)
	}

	if _, err := s.Application(ctx, "com.unknown"); !errors.Is(err, emm.ErrNotFound) {
		t.Errorf("Application(unknown) error = %v, want ErrNotFound", err)
	}
}
