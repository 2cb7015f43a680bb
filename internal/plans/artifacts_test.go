package plans

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/droverhq/drover/internal/registry"
)

func TestListArtifacts(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, 0)

	writePlan(t, dir, "zeta")
	writePlan(t, dir, "alpha")
	// Files that do not follow the naming convention are invisible.
	if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "plan-.md"), []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := r.ListArtifacts()
	if len(got) != 2 || got[0] != "alpha" || got[1] != "zeta" {
		t.Errorf("expected [alpha zeta], got %v", got)
	}
}

func TestListArtifactsMissingDir(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "absent"), 0)
	if got := r.ListArtifacts(); len(got) != 0 {
		t.Errorf("expected empty, got %v", got)
	}
}

func TestFindClosestAmbiguousAtBothTiers(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, 0)
	writePlan(t, dir, "auth-login")
	writePlan(t, dir, "auth-logout")

	res, candidates, err := r.FindClosest("auth")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if res != nil {
		t.Fatalf("expected ambiguous resolution to be nil, got %+v", res)
	}
	if len(candidates) != 2 {
		t.Errorf("expected both candidates reported, got %v", candidates)
	}
}

func TestFindClosestUniqueSubstring(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, 0)
	writePlan(t, dir, "auth-login")
	writePlan(t, dir, "auth-logout")

	res, _, err := r.FindClosest("login")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if res == nil || res.Plan != "auth-login" {
		t.Fatalf("expected auth-login, got %+v", res)
	}
	if res.Path != r.ArtifactPath("auth-login") {
		t.Errorf("unexpected artifact path %s", res.Path)
	}
}

func TestFindClosestUniquePrefix(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, 0)
	writePlan(t, dir, "auth-login")
	writePlan(t, dir, "db-migrate")

	res, _, err := r.FindClosest("db")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if res == nil || res.Plan != "db-migrate" {
		t.Fatalf("expected db-migrate, got %+v", res)
	}
}

func TestFindClosestCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, 0)
	writePlan(t, dir, "auth-login")

	res, _, err := r.FindClosest("AUTH-LOGIN")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if res == nil || res.Plan != "auth-login" {
		t.Fatalf("expected auth-login, got %+v", res)
	}
}

func TestFindClosestNoMatch(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, 0)
	writePlan(t, dir, "auth-login")

	res, candidates, err := r.FindClosest("payments")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if res != nil || len(candidates) != 0 {
		t.Fatalf("expected no match, got %+v / %v", res, candidates)
	}
}

func TestFindClosestEmptyPartial(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, 0)
	writePlan(t, dir, "auth-login")

	res, _, err := r.FindClosest("   ")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil for blank partial, got %+v", res)
	}
}

func TestFindClosestAttachesNewestEntry(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, 0)
	writePlan(t, dir, "auth-login")

	old := Record{
		Plan:      "auth-login",
		CreatedAt: registry.Time{Time: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		Status:    StatusExecuted,
	}
	newer := Record{
		Plan:      "auth-login",
		CreatedAt: registry.Time{Time: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)},
		Status:    StatusCreated,
	}
	if err := registry.Save(r.Path(), map[string]Record{"older-ke": old, "newer-ke": newer}); err != nil {
		t.Fatalf("seed registry: %v", err)
	}

	res, _, err := r.FindClosest("auth-login")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if res == nil || res.Record == nil {
		t.Fatal("expected a resolution with a registry entry")
	}
	if res.Key != "newer-ke" {
		t.Errorf("expected newest entry, got key %s", res.Key)
	}
	if res.Record.Status != StatusCreated {
		t.Errorf("expected newest record status created, got %s", res.Record.Status)
	}
}

func TestIsArtifactPath(t *testing.T) {
	cases := []struct {
		stateDir string
		path     string
		wantName string
		wantOK   bool
	}{
		{".ai", ".ai/plan-auth-login.md", "auth-login", true},
		{".ai", "/repo/project/.ai/plan-db.md", "db", true},
		{".ai", ".ai/notes.md", "", false},
		{".ai", ".ai/plan-.md", "", false},
		{".ai", "docs/plan-auth.md", "", false},
		{".ai", "plan-auth.md", "", false},
		{"/abs/state", "/abs/state/plan-x.md", "x", true},
		{".ai", "", "", false},
	}
	for _, c := range cases {
		name, ok := IsArtifactPath(c.stateDir, c.path)
		if ok != c.wantOK || name != c.wantName {
			t.Errorf("IsArtifactPath(%q, %q) = (%q, %v), want (%q, %v)",
				c.stateDir, c.path, name, ok, c.wantName, c.wantOK)
		}
	}
}
