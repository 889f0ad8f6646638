package store

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldworks/satchel/internal/record"
)

// PutWithMutation atomically applies an optimistic cache write and
// appends its mutation to the queue in a single transaction. A crash
// between the two is impossible by construction; no caller may write
// the cache directly and enqueue separately, or durability of intent
// is lost.
//
// The queue's partial unique index on action_key claims the logical
// action atomically: if an unconfirmed mutation for the same action
// already exists, nothing is written and inserted=false is returned.
// This is what keeps one user action from producing two remote
// creations through two code paths.
func (s *Store) PutWithMutation(ctx context.Context, rec record.CachedRecord, mut record.PendingMutation) (inserted bool, err error) {
	if err := s.validateRecord(rec); err != nil {
		return false, fmt.Errorf("put with mutation: %w", err)
	}
	if !mut.Operation.Valid() {
		return false, fmt.Errorf("put with mutation: invalid operation %q", mut.Operation)
	}
	if mut.TargetStore != rec.Store || mut.RecordID != rec.ID {
		return false, fmt.Errorf("put with mutation: mutation targets %s/%s, record is %s/%s",
			mut.TargetStore, mut.RecordID, rec.Store, rec.ID)
	}
	if mut.CorrelationID == "" {
		return false, fmt.Errorf("put with mutation: empty correlation id")
	}

	recPayload, err := record.MarshalCanonical(rec.Payload)
	if err != nil {
		return false, fmt.Errorf("put with mutation: marshal record payload: %w", err)
	}
	mutPayload, err := record.MarshalCanonical(mut.Payload)
	if err != nil {
		return false, fmt.Errorf("put with mutation: marshal mutation payload: %w", err)
	}
	actionKey := record.ActionKey(mut.TargetStore, mut.RecordID, mut.Operation)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("put with mutation: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	// Step 1: Try to claim the logical action via the partial unique
	// index on (action_key) over unconfirmed mutations.
	res, err := tx.ExecContext(ctx, `
		INSERT INTO mutations
		(correlation_id, action_key, target_store, record_id, operation,
		 endpoint, payload, status, attempts,
		 parent_id, parent_store, parent_record,
		 seq, created_at, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', 0, ?, ?, ?, ?, ?, '')
		ON CONFLICT DO NOTHING
	`,
		mut.CorrelationID, actionKey, mut.TargetStore, mut.RecordID, string(mut.Operation),
		mut.Endpoint, string(mutPayload),
		mut.ParentID, mut.ParentStore, mut.ParentRecord,
		mut.Seq, timeToMillis(mut.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("put with mutation: insert mutation: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("put with mutation: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Same logical action already unconfirmed. The first enqueue
		// applied the optimistic write; nothing more to do.
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("put with mutation: commit (duplicate): %w", err)
		}
		return false, nil
	}

	// Step 2: Apply the optimistic cache write. The record is
	// unsynced until the mutation is confirmed remotely.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (store, id, payload, scope, tenant_id, remote_id, synced)
		VALUES (?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(store, id) DO UPDATE SET
			payload = excluded.payload,
			tenant_id = excluded.tenant_id,
			synced = 0
	`,
		rec.Store, rec.ID, string(recPayload), string(rec.Scope),
		rec.TenantID, rec.RemoteID,
	)
	if err != nil {
		return false, fmt.Errorf("put with mutation: write record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("put with mutation: commit: %w", err)
	}
	return true, nil
}

func timeToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func timeFromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
