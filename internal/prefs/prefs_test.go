package prefs

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestListMissingNamespace(t *testing.T) {
	got, err := testStore(t).List(t.Context(), "ns")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("List() = %v, want empty map", got)
	}
}

func TestSetUpsertsAndKeepsOtherKeys(t *testing.T) {
	s := testStore(t)
	ctx := t.Context()

	if err := s.Set(ctx, "ns", map[string]string{"a": "1", "b": "1"}); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if err := s.Set(ctx, "ns", map[string]string{"a": "2"}); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	got, err := s.List(ctx, "ns")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got["a"] != "2" || got["b"] != "1" {
		t.Errorf("List() = %v, want {a:2, b:1}", got)
	}
}

func TestClearIsolatesNamespaces(t *testing.T) {
	s := testStore(t)
	ctx := t.Context()

	_ = s.Set(ctx, "ns", map[string]string{"a": "1", "b": "2"})
	_ = s.Set(ctx, "other", map[string]string{"c": "3"})

	if err := s.Clear(ctx, "ns"); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	empty, err := s.List(ctx, "ns")
	if err != nil {
		t.Fatal(err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("List() after clear = %v, want empty map", empty)
	}
	if other, _ := s.List(ctx, "other"); other["c"] != "3" {
		t.Error("clear touched another namespace")
	}
	// Clearing an empty namespace is not an error.
	if err := s.Clear(ctx, "nope"); err != nil {
		t.Errorf("Clear(empty) error: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	p, err := Load(t.Context(), testStore(t))
	if err != nil {
		t.Fatal(err)
	}
	if *p != *Defaults() || p.Context != DefaultContext || p.UseContext {
		t.Errorf("Load() = %+v, want defaults", p)
	}
	if p.ActiveContext() != "" {
		t.Error("ActiveContext() should be empty while switched off")
	}
}

func TestSaveReloadReset(t *testing.T) {
	s := testStore(t)
	ctx := t.Context()

	p := &UserPreferences{Context: "I teach Go.", UseContext: true}
	if err := p.Save(ctx, s); err != nil {
		t.Fatal(err)
	}
	got, err := Load(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if *got != *p {
		t.Errorf("Load() = %+v, want %+v", got, p)
	}
	if got.ActiveContext() != "I teach Go." {
		t.Errorf("ActiveContext() = %q", got.ActiveContext())
	}

	// An explicitly cleared context stays cleared.
	got.Context = ""
	_ = got.Save(ctx, s)
	again, _ := Load(ctx, s)
	if again.Context != "" {
		t.Errorf("cleared context reloaded as %q", again.Context)
	}

	reset, err := Reset(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	after, _ := Load(ctx, s)
	if *reset != *Defaults() || *after != *Defaults() {
		t.Errorf("after reset: returned %+v, loaded %+v", reset, after)
	}
}

func TestPersistAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "prefs.db")

	open := func() (*sql.DB, *Store) {
		db, err := sql.Open("sqlite", dbPath)
		if err != nil {
			t.Fatal(err)
		}
		s, err := NewStore(db)
		if err != nil {
			t.Fatal(err)
		}
		return db, s
	}

	db1, s1 := open()
	if err := (&UserPreferences{Context: "kept", UseContext: true}).Save(t.Context(), s1); err != nil {
		t.Fatal(err)
	}
	db1.Close()

	db2, s2 := open()
	defer db2.Close()
	p, err := Load(t.Context(), s2)
	if err != nil {
		t.Fatal(err)
	}
	if p.Context != "kept" || !p.UseContext {
		t.Errorf("reopened prefs = %+v", p)
	}
}

func TestActiveContext_NilSafe(t *testing.T) {
	var p *UserPreferences
	if p.ActiveContext() != "" {
		t.Error("nil preferences should have no active context")
	}
}
