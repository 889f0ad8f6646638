package store

import (
	"context"
	"testing"

	"github.com/fieldworks/satchel/internal/record"
)

func TestGetAll_TenantFiltering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Interleaved writes from two tenants.
	for i, tenant := range []string{"t1", "t2", "t1", "t2", "t1"} {
		rec := tenantRecord("machines", "m"+string(rune('0'+i)), tenant)
		if err := s.PutRecord(ctx, rec); err != nil {
			t.Fatalf("PutRecord() failed: %v", err)
		}
	}

	recs, err := s.GetAll(ctx, "machines", record.AccessContext{UserID: "u1", TenantID: "t1"})
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records for t1, want 3", len(recs))
	}
	for _, rec := range recs {
		if rec.TenantID != "t1" {
			t.Errorf("record %q has tenant %q, want t1", rec.ID, rec.TenantID)
		}
	}
}

func TestGetAll_GlobalStoreIgnoresContext(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"p1", "p2"} {
		if err := s.PutRecord(ctx, globalRecord("part_catalog", id)); err != nil {
			t.Fatalf("PutRecord() failed: %v", err)
		}
	}

	// Identical result for every context, zero context included.
	contexts := []record.AccessContext{
		{},
		{UserID: "u1", TenantID: "t1"},
		{UserID: "u2", TenantID: "t2"},
		{UserID: "admin", AllTenants: true},
	}
	for _, access := range contexts {
		recs, err := s.GetAll(ctx, "part_catalog", access)
		if err != nil {
			t.Fatalf("GetAll(%+v) failed: %v", access, err)
		}
		if len(recs) != 2 {
			t.Errorf("GetAll(%+v) returned %d records, want 2", access, len(recs))
		}
	}
}

func TestGetAll_ZeroContextFailsClosed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.PutRecord(ctx, tenantRecord("machines", "m1", "t1")); err != nil {
		t.Fatalf("PutRecord() failed: %v", err)
	}

	recs, err := s.GetAll(ctx, "machines", record.AccessContext{})
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("zero context returned %d records, want 0 (fail closed)", len(recs))
	}
}

func TestGetAll_AllTenantsBypassesFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.PutRecord(ctx, tenantRecord("machines", "m1", "t1")); err != nil {
		t.Fatalf("PutRecord() failed: %v", err)
	}
	if err := s.PutRecord(ctx, tenantRecord("machines", "m2", "t2")); err != nil {
		t.Fatalf("PutRecord() failed: %v", err)
	}

	recs, err := s.GetAll(ctx, "machines", record.AccessContext{UserID: "admin", AllTenants: true})
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("all-tenants context returned %d records, want 2", len(recs))
	}
}

func TestGetAll_UnknownStore(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetAll(context.Background(), "no_such_store", record.AccessContext{TenantID: "t1"}); err == nil {
		t.Error("expected error for unknown store, got nil")
	}
}

func TestPutRecord_TenantInvariants(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Tenant-scoped record without tenant id.
	missing := tenantRecord("machines", "m1", "t1")
	missing.TenantID = ""
	if err := s.PutRecord(ctx, missing); err == nil {
		t.Error("expected error for tenant-scoped record without tenant id")
	}

	// Global record carrying a tenant id.
	tagged := globalRecord("part_catalog", "p1")
	tagged.TenantID = "t1"
	if err := s.PutRecord(ctx, tagged); err == nil {
		t.Error("expected error for global record with tenant id")
	}

	// Scope mismatch with the store definition.
	wrongScope := tenantRecord("part_catalog", "p2", "t1")
	if err := s.PutRecord(ctx, wrongScope); err == nil {
		t.Error("expected error for scope mismatch")
	}
}

func TestGetRecord_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.GetRecord(context.Background(), "machines", "missing")
	if err != nil {
		t.Fatalf("GetRecord() failed: %v", err)
	}
	if ok {
		t.Error("GetRecord() reported a missing record as found")
	}
}

func TestPutFetched_PreservesUnsyncedRecords(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Optimistic local write, unconfirmed.
	rec := tenantRecord("orders", "o1", "t1")
	rec.Payload["status"] = "completed"
	if _, err := s.PutWithMutation(ctx, rec, testMutation("orders", "o1", record.OpCreate, nextSeq())); err != nil {
		t.Fatalf("PutWithMutation() failed: %v", err)
	}

	// A fetch arrives carrying the server's stale copy of the same id.
	serverCopy := tenantRecord("orders", "o1", "t1")
	serverCopy.Payload["status"] = "open"
	serverCopy.RemoteID = "srv-1"
	if err := s.PutFetched(ctx, "orders", []record.CachedRecord{serverCopy}, 1000); err != nil {
		t.Fatalf("PutFetched() failed: %v", err)
	}

	got, ok, err := s.GetRecord(ctx, "orders", "o1")
	if err != nil || !ok {
		t.Fatalf("GetRecord() failed: ok=%v err=%v", ok, err)
	}
	if got.Payload["status"] != "completed" {
		t.Errorf("fetch clobbered unsynced local write: status = %v, want completed", got.Payload["status"])
	}
	if got.Synced {
		t.Error("unsynced record marked synced by fetch")
	}
}

func TestPutFetched_UpdatesSyncedRecordsAndMeta(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := tenantRecord("orders", "o1", "t1")
	first.RemoteID = "srv-1"
	if err := s.PutFetched(ctx, "orders", []record.CachedRecord{first}, 1000); err != nil {
		t.Fatalf("first PutFetched() failed: %v", err)
	}

	updated := tenantRecord("orders", "o1", "t1")
	updated.Payload["status"] = "closed"
	updated.RemoteID = "srv-1"
	if err := s.PutFetched(ctx, "orders", []record.CachedRecord{updated}, 2000); err != nil {
		t.Fatalf("second PutFetched() failed: %v", err)
	}

	got, ok, err := s.GetRecord(ctx, "orders", "o1")
	if err != nil || !ok {
		t.Fatalf("GetRecord() failed: ok=%v err=%v", ok, err)
	}
	if got.Payload["status"] != "closed" {
		t.Errorf("status = %v, want closed", got.Payload["status"])
	}

	at, ok, err := s.LastFetched(ctx, "orders")
	if err != nil || !ok {
		t.Fatalf("LastFetched() failed: ok=%v err=%v", ok, err)
	}
	if at != 2000 {
		t.Errorf("last_fetched_at = %d, want 2000", at)
	}
}

func TestClearTenantScoped_LeavesGlobalData(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.PutRecord(ctx, globalRecord("part_catalog", "p1")); err != nil {
		t.Fatalf("PutRecord() failed: %v", err)
	}
	if err := s.PutRecord(ctx, tenantRecord("machines", "m1", "t1")); err != nil {
		t.Fatalf("PutRecord() failed: %v", err)
	}
	if err := s.TouchFetched(ctx, "machines", 1000); err != nil {
		t.Fatalf("TouchFetched() failed: %v", err)
	}

	if err := s.ClearTenantScoped(ctx); err != nil {
		t.Fatalf("ClearTenantScoped() failed: %v", err)
	}

	machines, err := s.GetAll(ctx, "machines", record.AccessContext{UserID: "u", TenantID: "t1"})
	if err != nil {
		t.Fatalf("GetAll(machines) failed: %v", err)
	}
	if len(machines) != 0 {
		t.Errorf("tenant store still has %d records after clear", len(machines))
	}

	parts, err := s.GetAll(ctx, "part_catalog", record.AccessContext{})
	if err != nil {
		t.Fatalf("GetAll(part_catalog) failed: %v", err)
	}
	if len(parts) != 1 {
		t.Errorf("global store lost records: got %d, want 1", len(parts))
	}

	// Fetch metadata for the cleared store is gone, so the next read
	// treats it as never fetched.
	if _, ok, _ := s.LastFetched(ctx, "machines"); ok {
		t.Error("fetch metadata survived ClearTenantScoped")
	}
}

func TestClear_DoesNotTouchQueue(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.PutWithMutation(ctx, tenantRecord("orders", "o1", "t1"), testMutation("orders", "o1", record.OpCreate, nextSeq())); err != nil {
		t.Fatalf("PutWithMutation() failed: %v", err)
	}

	if err := s.Clear(ctx, "orders"); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}

	n, err := s.PendingCount(ctx, "orders")
	if err != nil {
		t.Fatalf("PendingCount() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("queue lost entries on Clear: pending = %d, want 1", n)
	}
}
