package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/fieldworks/satchel/internal/record"
)

// PutRecord upserts a cached record. The record's scope must match the
// store definition, and a tenant-scoped record must carry a tenant id
// (the schema CHECK enforces this too; validating here produces a
// better error than a raw constraint violation).
func (s *Store) PutRecord(ctx context.Context, rec record.CachedRecord) error {
	if err := s.validateRecord(rec); err != nil {
		return err
	}

	payload, err := record.MarshalCanonical(rec.Payload)
	if err != nil {
		return fmt.Errorf("put record: marshal payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (store, id, payload, scope, tenant_id, remote_id, synced)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(store, id) DO UPDATE SET
			payload = excluded.payload,
			tenant_id = excluded.tenant_id,
			remote_id = excluded.remote_id,
			synced = excluded.synced
	`,
		rec.Store, rec.ID, string(payload), string(rec.Scope),
		rec.TenantID, rec.RemoteID, boolToInt(rec.Synced),
	)
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

// PutFetched upserts a batch of records arriving from a successful
// remote fetch and stamps the store's fetch time, in one transaction.
//
// Rows with unconfirmed local writes (synced = 0) are NOT overwritten:
// the server copy must not clobber intent that has not replayed yet.
func (s *Store) PutFetched(ctx context.Context, storeName string, recs []record.CachedRecord, fetchedAtMillis int64) error {
	def, err := s.Definition(storeName)
	if err != nil {
		return fmt.Errorf("put fetched: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put fetched: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, rec := range recs {
		if rec.Store != storeName {
			return fmt.Errorf("put fetched: record %q belongs to store %q, not %q", rec.ID, rec.Store, storeName)
		}
		rec.Scope = def.Scope
		rec.Synced = true
		if err := s.validateRecord(rec); err != nil {
			return fmt.Errorf("put fetched: %w", err)
		}

		payload, err := record.MarshalCanonical(rec.Payload)
		if err != nil {
			return fmt.Errorf("put fetched: marshal payload for %q: %w", rec.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO records (store, id, payload, scope, tenant_id, remote_id, synced)
			VALUES (?, ?, ?, ?, ?, ?, 1)
			ON CONFLICT(store, id) DO UPDATE SET
				payload = excluded.payload,
				tenant_id = excluded.tenant_id,
				remote_id = excluded.remote_id,
				synced = 1
			WHERE records.synced = 1
		`,
			rec.Store, rec.ID, string(payload), string(rec.Scope),
			rec.TenantID, rec.RemoteID,
		)
		if err != nil {
			return fmt.Errorf("put fetched: upsert %q: %w", rec.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO fetch_meta (store, last_fetched_at)
		VALUES (?, ?)
		ON CONFLICT(store) DO UPDATE SET last_fetched_at = excluded.last_fetched_at
	`, storeName, fetchedAtMillis)
	if err != nil {
		return fmt.Errorf("put fetched: touch meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put fetched: commit: %w", err)
	}
	return nil
}

// GetRecord returns one cached record by id. The second return value
// is false if the record does not exist.
func (s *Store) GetRecord(ctx context.Context, storeName, id string) (record.CachedRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT store, id, payload, scope, tenant_id, remote_id, synced
		FROM records
		WHERE store = ? AND id = ?
	`, storeName, id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return record.CachedRecord{}, false, nil
	}
	if err != nil {
		return record.CachedRecord{}, false, fmt.Errorf("get record: %w", err)
	}
	return rec, true, nil
}

// GetAll returns the cached records of a store visible to the given
// access context.
//
// Global stores are never tenant-filtered: their records carry no
// tenant attribute, and filtering them would silently empty the result.
// Tenant-scoped stores return only the context's tenant unless the
// context operates across all tenants. A zero context fails closed:
// empty result, not "all data".
func (s *Store) GetAll(ctx context.Context, storeName string, access record.AccessContext) ([]record.CachedRecord, error) {
	def, err := s.Definition(storeName)
	if err != nil {
		return nil, fmt.Errorf("get all: %w", err)
	}

	query := `
		SELECT store, id, payload, scope, tenant_id, remote_id, synced
		FROM records
		WHERE store = ?
		ORDER BY id COLLATE BINARY ASC
	`
	args := []any{storeName}

	if !def.Global() {
		if access.Zero() {
			// Fail closed: no identity, no tenant data.
			return []record.CachedRecord{}, nil
		}
		if !access.AllTenants {
			query = `
				SELECT store, id, payload, scope, tenant_id, remote_id, synced
				FROM records
				WHERE store = ? AND tenant_id = ?
				ORDER BY id COLLATE BINARY ASC
			`
			args = append(args, access.TenantID)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get all: query: %w", err)
	}
	defer rows.Close()

	var recs []record.CachedRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("get all: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get all: iterate: %w", err)
	}

	// Return empty slice instead of nil
	if recs == nil {
		recs = []record.CachedRecord{}
	}
	return recs, nil
}

// Clear removes all cached records of one store and its fetch metadata.
// The mutation queue is untouched: cache is disposable, intent is not.
func (s *Store) Clear(ctx context.Context, storeName string) error {
	if _, err := s.Definition(storeName); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return s.clearStores(ctx, []string{storeName})
}

// ClearAll removes every cached record and all fetch metadata.
func (s *Store) ClearAll(ctx context.Context) error {
	names := make([]string, 0, len(s.defs))
	for name := range s.defs {
		names = append(names, name)
	}
	return s.clearStores(ctx, names)
}

// ClearTenantScoped removes the cached records and fetch metadata of
// every tenant-scoped store, leaving global reference data in place.
// Called as an explicit step of the identity transition, never as a
// reactive effect.
func (s *Store) ClearTenantScoped(ctx context.Context) error {
	var names []string
	for name, def := range s.defs {
		if !def.Global() {
			names = append(names, name)
		}
	}
	return s.clearStores(ctx, names)
}

func (s *Store) clearStores(ctx context.Context, names []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clear: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, name := range names {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE store = ?`, name); err != nil {
			return fmt.Errorf("clear records %q: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM fetch_meta WHERE store = ?`, name); err != nil {
			return fmt.Errorf("clear meta %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("clear: commit: %w", err)
	}
	return nil
}

func (s *Store) validateRecord(rec record.CachedRecord) error {
	def, err := s.Definition(rec.Store)
	if err != nil {
		return err
	}
	if rec.Scope != def.Scope {
		return fmt.Errorf("record %q: scope %q does not match store scope %q", rec.ID, rec.Scope, def.Scope)
	}
	if def.Global() && rec.TenantID != "" {
		return fmt.Errorf("record %q: global store %q must not carry a tenant id", rec.ID, rec.Store)
	}
	if !def.Global() && rec.TenantID == "" {
		return fmt.Errorf("record %q: tenant-scoped store %q requires a tenant id", rec.ID, rec.Store)
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanRecord.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (record.CachedRecord, error) {
	var rec record.CachedRecord
	var payload, scope string
	var synced int

	err := row.Scan(&rec.Store, &rec.ID, &payload, &scope, &rec.TenantID, &rec.RemoteID, &synced)
	if err != nil {
		return record.CachedRecord{}, err
	}

	if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
		return record.CachedRecord{}, fmt.Errorf("unmarshal payload for %q: %w", rec.ID, err)
	}
	rec.Scope = record.Scope(scope)
	rec.Synced = synced != 0
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
