package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// LastFetched returns when the store was last refreshed from the
// remote system, in unix milliseconds. Returns (0, false, nil) if the
// store has never been fetched.
func (s *Store) LastFetched(ctx context.Context, storeName string) (int64, bool, error) {
	var at int64
	err := s.db.QueryRowContext(ctx, `
		SELECT last_fetched_at FROM fetch_meta WHERE store = ?
	`, storeName).Scan(&at)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("last fetched: %w", err)
	}
	return at, true, nil
}

// TouchFetched stamps the store's last fetch time.
func (s *Store) TouchFetched(ctx context.Context, storeName string, atMillis int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fetch_meta (store, last_fetched_at)
		VALUES (?, ?)
		ON CONFLICT(store) DO UPDATE SET last_fetched_at = excluded.last_fetched_at
	`, storeName, atMillis)
	if err != nil {
		return fmt.Errorf("touch fetched: %w", err)
	}
	return nil
}

// IsStale reports whether the store's cached data is older than ttl at
// the given instant. A never-fetched store is always stale. A zero ttl
// means the store never goes stale once fetched.
func (s *Store) IsStale(ctx context.Context, storeName string, ttl time.Duration, now time.Time) (bool, error) {
	at, ok, err := s.LastFetched(ctx, storeName)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	if ttl == 0 {
		return false, nil
	}
	age := now.Sub(time.UnixMilli(at))
	return age >= ttl, nil
}
