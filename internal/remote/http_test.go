package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPClient_FetchAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/parts" {
			t.Errorf("path = %s, want /parts", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": "p1", "name": "pump"},
			{"id": "p2", "tenant_id": "t1", "name": "valve"},
		})
	}))
	defer srv.Close()

	recs, err := NewHTTPClient(srv.URL).FetchAll(context.Background(), "/parts")
	if err != nil {
		t.Fatalf("FetchAll() failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].ID != "p1" || recs[0].TenantID != "" {
		t.Errorf("record 0 = %+v, want id p1, no tenant", recs[0])
	}
	if recs[1].ID != "p2" || recs[1].TenantID != "t1" {
		t.Errorf("record 1 = %+v, want id p2, tenant t1", recs[1])
	}
}

func TestHTTPClient_CreateReturnsServerID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		// Terminal-state fields must arrive intact.
		if payload["status"] != "completed" {
			t.Errorf("status = %v, want completed", payload["status"])
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "srv-42"})
	}))
	defer srv.Close()

	id, err := NewHTTPClient(srv.URL).Create(context.Background(), "/orders", map[string]any{"status": "completed"})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if id != "srv-42" {
		t.Errorf("id = %q, want srv-42", id)
	}
}

func TestHTTPClient_StatusErrorClassification(t *testing.T) {
	tests := []struct {
		status     int
		transient  bool
		schemaRej  bool
	}{
		{422, false, true},
		{400, false, true},
		{500, true, false},
		{429, true, false},
		{404, false, false},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		_, err := NewHTTPClient(srv.URL).FetchAll(context.Background(), "/orders")
		srv.Close()

		if err == nil {
			t.Fatalf("status %d: expected error, got nil", tt.status)
		}
		if got := IsTransient(err); got != tt.transient {
			t.Errorf("status %d: IsTransient = %v, want %v", tt.status, got, tt.transient)
		}
		if got := IsSchemaRejection(err); got != tt.schemaRej {
			t.Errorf("status %d: IsSchemaRejection = %v, want %v", tt.status, got, tt.schemaRej)
		}
	}
}

func TestHTTPClient_UnreachableIsTransient(t *testing.T) {
	// Closed server: transport-level failure.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewHTTPClient(url)
	_, err := c.FetchAll(context.Background(), "/orders")
	if err == nil {
		t.Fatal("expected error against closed server")
	}
	if !IsTransient(err) {
		t.Errorf("transport failure not classified transient: %v", err)
	}
	if IsSchemaRejection(err) {
		t.Errorf("transport failure classified as schema rejection: %v", err)
	}
	if c.Online(context.Background()) {
		t.Error("Online() = true against closed server")
	}
}

func TestHTTPClient_Online(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound) // any answer means reachable
	}))
	defer srv.Close()

	if !NewHTTPClient(srv.URL).Online(context.Background()) {
		t.Error("Online() = false against a responding server")
	}
}
