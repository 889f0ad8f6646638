package store

import (
	"context"
	"testing"
	"time"
)

func TestIsStale_NeverFetched(t *testing.T) {
	s := openTestStore(t)

	stale, err := s.IsStale(context.Background(), "orders", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("IsStale() failed: %v", err)
	}
	if !stale {
		t.Error("never-fetched store reported fresh")
	}
}

func TestIsStale_WithinTTL(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if err := s.TouchFetched(ctx, "orders", now.Add(-10*time.Minute).UnixMilli()); err != nil {
		t.Fatalf("TouchFetched() failed: %v", err)
	}

	stale, err := s.IsStale(ctx, "orders", 30*time.Minute, now)
	if err != nil {
		t.Fatalf("IsStale() failed: %v", err)
	}
	if stale {
		t.Error("store reported stale within TTL")
	}
}

func TestIsStale_BeyondTTL(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if err := s.TouchFetched(ctx, "orders", now.Add(-2*time.Hour).UnixMilli()); err != nil {
		t.Fatalf("TouchFetched() failed: %v", err)
	}

	stale, err := s.IsStale(ctx, "orders", 30*time.Minute, now)
	if err != nil {
		t.Fatalf("IsStale() failed: %v", err)
	}
	if !stale {
		t.Error("store reported fresh beyond TTL")
	}
}

func TestIsStale_ZeroTTLNeverStale(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if err := s.TouchFetched(ctx, "orders", now.Add(-1000*time.Hour).UnixMilli()); err != nil {
		t.Fatalf("TouchFetched() failed: %v", err)
	}

	stale, err := s.IsStale(ctx, "orders", 0, now)
	if err != nil {
		t.Fatalf("IsStale() failed: %v", err)
	}
	if stale {
		t.Error("zero TTL store reported stale")
	}
}
