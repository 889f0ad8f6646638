package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fieldworks/satchel/internal/record"
)

func testDefs() []record.Definition {
	return []record.Definition{
		{Name: "part_catalog", Scope: record.ScopeGlobal, TTL: time.Hour, Endpoint: "/parts", Preload: true},
		{Name: "machines", Scope: record.ScopeTenant, TTL: time.Hour, Endpoint: "/machines", Preload: true},
		{Name: "orders", Scope: record.ScopeTenant, TTL: 30 * time.Minute, Endpoint: "/orders", SubEndpoint: "/orders/{parent}/items", Preload: true},
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "satchel.db")
	s, err := Open(path, testDefs())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "satchel.db")

	s, err := Open(path, testDefs())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "satchel.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path, testDefs())
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestOpen_AppliesPragmas(t *testing.T) {
	s := openTestStore(t)

	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
	if err := s.verifyPragma("foreign_keys", "1"); err != nil {
		t.Error(err)
	}
}

func TestOpen_RejectsInvalidDefinitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "satchel.db")

	tests := []struct {
		name string
		defs []record.Definition
	}{
		{"empty name", []record.Definition{{Name: "", Scope: record.ScopeGlobal}}},
		{"invalid scope", []record.Definition{{Name: "parts", Scope: record.Scope("regional")}}},
		{"duplicate name", []record.Definition{
			{Name: "parts", Scope: record.ScopeGlobal},
			{Name: "parts", Scope: record.ScopeTenant},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Open(path, tt.defs); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestOpen_SetsSchemaVersion(t *testing.T) {
	s := openTestStore(t)

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("query user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestDefinition_Unknown(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.Definition("no_such_store"); err == nil {
		t.Error("expected error for unknown store, got nil")
	}
}

func TestMaxSeq_EmptyQueue(t *testing.T) {
	s := openTestStore(t)

	max, err := s.MaxSeq(context.Background())
	if err != nil {
		t.Fatalf("MaxSeq() failed: %v", err)
	}
	if max != 0 {
		t.Errorf("MaxSeq() = %d, want 0", max)
	}
}

func TestMaxSeq_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "satchel.db")
	ctx := context.Background()

	s1, err := Open(path, testDefs())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	_, err = s1.PutWithMutation(ctx, tenantRecord("orders", "o1", "t1"), testMutation("orders", "o1", record.OpCreate, 7))
	if err != nil {
		t.Fatalf("PutWithMutation() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path, testDefs())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	max, err := s2.MaxSeq(ctx)
	if err != nil {
		t.Fatalf("MaxSeq() failed: %v", err)
	}
	if max != 7 {
		t.Errorf("MaxSeq() = %d, want 7", max)
	}
}
