package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/fieldworks/satchel/internal/record"
)

// NextPending returns the head of a store's queue if it is eligible
// to replay, preserving intra-store enqueue order. Only the oldest
// queued mutation of the store can ever be eligible: a failed head
// blocks everything behind it until it is manually retried or removed,
// so a later update can never reach the server before the create it
// depends on. A mutation whose parent is still queued (pending,
// syncing, or failed) is likewise not eligible: it replays only after
// the parent's server id is known.
//
// The second return value is false when the store's queue has no
// eligible entry.
func (s *Store) NextPending(ctx context.Context, storeName string) (record.PendingMutation, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+mutationColumns+`
		FROM mutations m
		WHERE m.target_store = ?
		  AND m.status = 'pending'
		  AND NOT EXISTS (
		      SELECT 1 FROM mutations e
		      WHERE e.target_store = m.target_store AND e.seq < m.seq
		  )
		  AND (m.parent_id = '' OR NOT EXISTS (
		      SELECT 1 FROM mutations p WHERE p.correlation_id = m.parent_id
		  ))
		ORDER BY m.seq ASC
		LIMIT 1
	`, storeName)

	mut, err := scanMutation(row)
	if err == sql.ErrNoRows {
		return record.PendingMutation{}, false, nil
	}
	if err != nil {
		return record.PendingMutation{}, false, fmt.Errorf("next pending: %w", err)
	}
	return mut, true, nil
}

// UnconfirmedMutation returns the queued mutation for a logical
// action, whatever its status, or ok=false if the action has no entry.
// The writer uses this to chain a dependent sub-mutation to a parent
// create that has not confirmed yet.
func (s *Store) UnconfirmedMutation(ctx context.Context, storeName, recordID string, op record.Operation) (record.PendingMutation, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+mutationColumns+`
		FROM mutations m
		WHERE m.target_store = ? AND m.record_id = ? AND m.operation = ?
		ORDER BY m.seq ASC
		LIMIT 1
	`, storeName, recordID, string(op))

	mut, err := scanMutation(row)
	if err == sql.ErrNoRows {
		return record.PendingMutation{}, false, nil
	}
	if err != nil {
		return record.PendingMutation{}, false, fmt.Errorf("unconfirmed mutation: %w", err)
	}
	return mut, true, nil
}

// PendingCount returns the number of unconfirmed (pending or syncing)
// mutations for a store. Drives "N pending sync" indicators.
func (s *Store) PendingCount(ctx context.Context, storeName string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM mutations
		WHERE target_store = ? AND status IN ('pending', 'syncing')
	`, storeName).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pending count: %w", err)
	}
	return n, nil
}

// FailedMutations returns every mutation whose retry budget is
// exhausted, oldest first. These are surfaced to the user for manual
// retry and never silently dropped.
func (s *Store) FailedMutations(ctx context.Context) ([]record.PendingMutation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+mutationColumns+`
		FROM mutations m
		WHERE m.status = 'failed'
		ORDER BY m.seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed mutations: %w", err)
	}
	defer rows.Close()

	return collectMutations(rows)
}

// MarkSyncing transitions a pending mutation to syncing. Returns an
// error if the mutation does not exist or is not pending, which would
// indicate two processors draining the same queue.
func (s *Store) MarkSyncing(ctx context.Context, correlationID string) error {
	return s.transition(ctx, correlationID, "pending", "syncing", "")
}

// MarkPending returns a syncing mutation to pending after a transient
// failure, incrementing its attempt count and recording the error.
func (s *Store) MarkPending(ctx context.Context, correlationID string, lastError string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE mutations
		SET status = 'pending', attempts = attempts + 1, last_error = ?
		WHERE correlation_id = ? AND status = 'syncing'
	`, lastError, correlationID)
	if err != nil {
		return fmt.Errorf("mark pending: %w", err)
	}
	return requireOneRow(res, "mark pending", correlationID)
}

// MarkFailed transitions a mutation to failed: retry budget exhausted
// or payload structurally rejected. The row is kept for manual retry.
func (s *Store) MarkFailed(ctx context.Context, correlationID string, lastError string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE mutations
		SET status = 'failed', attempts = attempts + 1, last_error = ?
		WHERE correlation_id = ? AND status IN ('pending', 'syncing')
	`, lastError, correlationID)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return requireOneRow(res, "mark failed", correlationID)
}

// RetryFailed returns a failed mutation to pending with a fresh
// attempt budget. This is the manual-retry affordance.
func (s *Store) RetryFailed(ctx context.Context, correlationID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE mutations
		SET status = 'pending', attempts = 0, last_error = ''
		WHERE correlation_id = ? AND status = 'failed'
	`, correlationID)
	if err != nil {
		return fmt.Errorf("retry failed: %w", err)
	}
	return requireOneRow(res, "retry failed", correlationID)
}

// CompleteMutation records a successful replay: the local record
// learns its server-assigned id and is marked synced, and the mutation
// is removed, in one transaction. Removal is the only way a mutation
// leaves the queue besides explicit manual deletion of a failed entry.
func (s *Store) CompleteMutation(ctx context.Context, mut record.PendingMutation, remoteID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("complete mutation: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if remoteID != "" {
		_, err = tx.ExecContext(ctx, `
			UPDATE records SET remote_id = ?, synced = 1
			WHERE store = ? AND id = ?
		`, remoteID, mut.TargetStore, mut.RecordID)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE records SET synced = 1
			WHERE store = ? AND id = ?
		`, mut.TargetStore, mut.RecordID)
	}
	if err != nil {
		return fmt.Errorf("complete mutation: update record: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM mutations WHERE correlation_id = ?
	`, mut.CorrelationID)
	if err != nil {
		return fmt.Errorf("complete mutation: delete: %w", err)
	}
	if err := requireOneRow(res, "complete mutation", mut.CorrelationID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("complete mutation: commit: %w", err)
	}
	return nil
}

func (s *Store) transition(ctx context.Context, correlationID, from, to, lastError string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE mutations SET status = ?, last_error = ?
		WHERE correlation_id = ? AND status = ?
	`, to, lastError, correlationID, from)
	if err != nil {
		return fmt.Errorf("transition %s -> %s: %w", from, to, err)
	}
	return requireOneRow(res, fmt.Sprintf("transition %s -> %s", from, to), correlationID)
}

func requireOneRow(res sql.Result, op, correlationID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n != 1 {
		return fmt.Errorf("%s: mutation %s not in expected state", op, correlationID)
	}
	return nil
}

const mutationColumns = `
	m.correlation_id, m.action_key, m.target_store, m.record_id, m.operation,
	m.endpoint, m.payload, m.status, m.attempts,
	m.parent_id, m.parent_store, m.parent_record,
	m.seq, m.created_at, m.last_error
`

func scanMutation(row rowScanner) (record.PendingMutation, error) {
	var mut record.PendingMutation
	var actionKey, operation, payload, status string
	var createdAt int64

	err := row.Scan(
		&mut.CorrelationID, &actionKey, &mut.TargetStore, &mut.RecordID, &operation,
		&mut.Endpoint, &payload, &status, &mut.Attempts,
		&mut.ParentID, &mut.ParentStore, &mut.ParentRecord,
		&mut.Seq, &createdAt, &mut.LastError,
	)
	if err != nil {
		return record.PendingMutation{}, err
	}

	if err := json.Unmarshal([]byte(payload), &mut.Payload); err != nil {
		return record.PendingMutation{}, fmt.Errorf("unmarshal payload for %s: %w", mut.CorrelationID, err)
	}
	mut.Operation = record.Operation(operation)
	mut.Status = record.MutationStatus(status)
	mut.CreatedAt = timeFromMillis(createdAt)
	return mut, nil
}

func collectMutations(rows *sql.Rows) ([]record.PendingMutation, error) {
	var muts []record.PendingMutation
	for rows.Next() {
		mut, err := scanMutation(rows)
		if err != nil {
			return nil, err
		}
		muts = append(muts, mut)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mutations: %w", err)
	}
	if muts == nil {
		muts = []record.PendingMutation{}
	}
	return muts, nil
}
