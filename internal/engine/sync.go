package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/fieldworks/satchel/internal/record"
	"github.com/fieldworks/satchel/internal/remote"
)

// SyncReport summarizes one queue drain.
type SyncReport struct {
	Synced   int
	Retried  int
	Failed   int
	Offline  bool
	Duration time.Duration

	// PerStore counts the mutations confirmed per store.
	PerStore map[string]int

	// Failures holds the mutations left failed by this drain. Each
	// error is a *SyncPermanentFailure or *SchemaMismatchError.
	Failures []error
}

// SyncOnce drains the mutation queue against the remote system.
// Callers trigger it on connectivity restoration, on a periodic tick,
// or as an explicit user action; all three paths converge here.
//
// Per store, mutations replay in enqueue order with the complete
// locally known payload. A transient failure retries with bounded
// exponential backoff until the attempt budget is exhausted, then the
// mutation is marked failed and surfaced, never dropped. A failed
// mutation stops its own store's drain (to preserve intra-store
// ordering) but other stores drain independently.
//
// Single-flight: a concurrent call returns ErrSyncInProgress.
func (e *Engine) SyncOnce(ctx context.Context) (*SyncReport, error) {
	if !e.syncMu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer e.syncMu.Unlock()

	start := e.now()
	report := &SyncReport{PerStore: make(map[string]int)}

	if !e.probe.Online(ctx) {
		report.Offline = true
		e.logger.Info("sync skipped, offline")
		return report, nil
	}

	// Deterministic store order; intra-store order is the queue's.
	defs := e.store.Definitions()
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })

	for _, def := range defs {
		if err := e.drainStore(ctx, def.Name, report); err != nil {
			return report, err
		}
	}

	report.Duration = e.now().Sub(start)
	e.logger.Info("sync finished",
		slog.Int("synced", report.Synced),
		slog.Int("retried", report.Retried),
		slog.Int("failed", report.Failed))
	return report, nil
}

// drainStore replays one store's queue FIFO until it is empty or its
// head mutation fails permanently. Returns an error only for local
// store faults; remote failures are accounted in the report.
func (e *Engine) drainStore(ctx context.Context, storeName string, report *SyncReport) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		mut, ok, err := e.store.NextPending(ctx, storeName)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		res := e.replay(ctx, mut, report)
		switch res.Outcome {
		case record.OutcomeSuccess:
			if err := e.store.CompleteMutation(ctx, mut, res.RemoteID); err != nil {
				return err
			}
			report.Synced++
			report.PerStore[mut.TargetStore]++
			e.logger.Info("mutation synced",
				slog.String("correlation_id", mut.CorrelationID),
				slog.String("store", mut.TargetStore),
				slog.String("operation", string(mut.Operation)))

		case record.OutcomeError:
			report.Failed++
			report.Failures = append(report.Failures, res.Err)
			e.logger.Error("mutation failed permanently",
				slog.String("correlation_id", mut.CorrelationID),
				slog.String("store", mut.TargetStore),
				slog.String("error", res.Err.Error()))
			// Later mutations of this store stay pending behind the
			// failed entry until it is manually retried or removed.
			return nil

		case record.OutcomeCancelled:
			// Not counted as failed: the mutation is still pending
			// and the next drain resumes with it.
			return res.Err
		}
	}
}

// replay drives one mutation through pending -> syncing -> confirmed,
// retrying transient failures in place with exponential backoff. The
// attempt count is persisted after every failure so a crash mid-drain
// loses no budget accounting.
func (e *Engine) replay(ctx context.Context, mut record.PendingMutation, report *SyncReport) record.SyncResult {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.backoffBase
	bo.MaxInterval = e.backoffMax

	attempts := mut.Attempts
	for {
		if err := e.store.MarkSyncing(ctx, mut.CorrelationID); err != nil {
			return e.fail(ctx, mut, attempts, err)
		}

		remoteID, err := e.invoke(ctx, mut)
		if err == nil {
			return record.SyncResult{
				CorrelationID: mut.CorrelationID,
				Outcome:       record.OutcomeSuccess,
				RemoteID:      remoteID,
				SyncedAt:      e.now(),
			}
		}

		if remote.IsSchemaRejection(err) {
			// Retrying a structurally invalid payload cannot succeed.
			smErr := &SchemaMismatchError{Store: mut.TargetStore, Err: err}
			if markErr := e.store.MarkFailed(ctx, mut.CorrelationID, smErr.Error()); markErr != nil {
				e.logger.Error("mark failed", slog.String("error", markErr.Error()))
			}
			return record.SyncResult{
				CorrelationID: mut.CorrelationID,
				Outcome:       record.OutcomeError,
				Err:           smErr,
			}
		}

		attempts++
		if attempts >= e.maxAttempts || !remote.IsTransient(err) {
			return e.fail(ctx, mut, attempts, err)
		}

		// Transient: back to pending with the attempt recorded, wait,
		// then claim the mutation again.
		if markErr := e.store.MarkPending(ctx, mut.CorrelationID, err.Error()); markErr != nil {
			return e.fail(ctx, mut, attempts, markErr)
		}
		report.Retried++
		wait := bo.NextBackOff()
		e.logger.Warn("mutation retry scheduled",
			slog.String("correlation_id", mut.CorrelationID),
			slog.Int("attempts", attempts),
			slog.Duration("backoff", wait),
			slog.String("error", err.Error()))

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			// Left pending; the next trigger resumes where we stopped.
			return record.SyncResult{
				CorrelationID: mut.CorrelationID,
				Outcome:       record.OutcomeCancelled,
				Err:           ctx.Err(),
			}
		}
	}
}

// fail exhausts a mutation: marked failed, kept for manual retry.
func (e *Engine) fail(ctx context.Context, mut record.PendingMutation, attempts int, cause error) record.SyncResult {
	permErr := &SyncPermanentFailure{
		CorrelationID: mut.CorrelationID,
		Store:         mut.TargetStore,
		Attempts:      attempts,
		Err:           cause,
	}
	if markErr := e.store.MarkFailed(ctx, mut.CorrelationID, cause.Error()); markErr != nil {
		e.logger.Error("mark failed", slog.String("error", markErr.Error()))
	}
	return record.SyncResult{
		CorrelationID: mut.CorrelationID,
		Outcome:       record.OutcomeError,
		Err:           permErr,
	}
}

// invoke calls the remote operation with the mutation's complete
// payload. Terminal-state fields travel with the one call; there is no
// second finalize request to race or silently fail.
func (e *Engine) invoke(ctx context.Context, mut record.PendingMutation) (remoteID string, err error) {
	switch mut.Operation {
	case record.OpCreate:
		return e.remote.Create(ctx, mut.Endpoint, mut.Payload)

	case record.OpUpdate:
		id, err := e.remoteIDFor(ctx, mut.TargetStore, mut.RecordID)
		if err != nil {
			return "", err
		}
		return "", e.remote.Update(ctx, mut.Endpoint, id, mut.Payload)

	case record.OpCompleteSub:
		endpoint, err := e.resolveSubEndpoint(ctx, mut)
		if err != nil {
			return "", err
		}
		return "", e.remote.CreateSub(ctx, endpoint, mut.Payload)

	default:
		return "", fmt.Errorf("unknown operation %q", mut.Operation)
	}
}

// resolveSubEndpoint substitutes the parent's server-assigned id into
// the sub-resource endpoint template.
func (e *Engine) resolveSubEndpoint(ctx context.Context, mut record.PendingMutation) (string, error) {
	parent, ok, err := e.store.GetRecord(ctx, mut.ParentStore, mut.ParentRecord)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("parent record %s/%s not cached", mut.ParentStore, mut.ParentRecord)
	}
	if parent.RemoteID == "" {
		return "", fmt.Errorf("parent record %s/%s has no remote id yet", mut.ParentStore, mut.ParentRecord)
	}
	return strings.ReplaceAll(mut.Endpoint, record.ParentPlaceholder, parent.RemoteID), nil
}

// remoteIDFor resolves the server id of a cached record, falling back
// to the record id itself for records that originated remotely.
func (e *Engine) remoteIDFor(ctx context.Context, storeName, recordID string) (string, error) {
	rec, ok, err := e.store.GetRecord(ctx, storeName, recordID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("record %s/%s not cached", storeName, recordID)
	}
	if rec.RemoteID != "" {
		return rec.RemoteID, nil
	}
	return recordID, nil
}

// Run drives periodic syncs until ctx is cancelled. Trigger wakes the
// loop early (connectivity restored, explicit user action).
func (e *Engine) Run(ctx context.Context, interval time.Duration, trigger <-chan struct{}) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-trigger:
		}

		if _, err := e.SyncOnce(ctx); err != nil && err != ErrSyncInProgress {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Error("sync pass failed", slog.String("error", err.Error()))
		}
	}
}
